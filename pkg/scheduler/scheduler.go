package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/korjavin/warbot/pkg/logger"
	"github.com/korjavin/warbot/pkg/models"
	"github.com/korjavin/warbot/pkg/storage"
)

var (
	// ErrNotFuture is returned when a war is scheduled for a time that has passed
	ErrNotFuture = errors.New("war time is not in the future")
	// ErrNothingToCancel is returned by Cancel when the server has no war
	ErrNothingToCancel = errors.New("no war to cancel")
	// ErrStopped is returned once the scheduler has been stopped
	ErrStopped = errors.New("scheduler stopped")
)

// Notifier delivers the announcement of a war whose time has come
type Notifier interface {
	NotifyWar(ctx context.Context, war models.WarRecord) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, war models.WarRecord) error

// NotifyWar calls f
func (f NotifierFunc) NotifyWar(ctx context.Context, war models.WarRecord) error {
	return f(ctx, war)
}

// RecoveryReport lists what Start did with the persisted wars
type RecoveryReport struct {
	Rearmed []models.WarRecord
	Missed  []models.WarRecord
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithNotifyTimeout bounds how long a single announcement may take
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) { s.notifyTimeout = d }
}

type entry struct {
	war    models.WarRecord
	ctx    context.Context
	cancel context.CancelFunc
}

// Service arms one timer per server and keeps the armed timers and the
// persisted wars in step. Schedule, Cancel and firing of the same server are
// serialized by a per-server lock; different servers never wait on each other.
type Service struct {
	store         *storage.WarStore
	notifier      Notifier
	clock         Clock
	notifyTimeout time.Duration
	logger        *logger.Logger

	baseCtx context.Context
	stopAll context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex // guards timers, locks and stopped
	timers  map[int64]*entry
	locks   map[int64]*sync.Mutex
	stopped bool
}

// New creates a new war scheduler
func New(store *storage.WarStore, notifier Notifier, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		store:         store,
		notifier:      notifier,
		clock:         SystemClock{},
		notifyTimeout: 30 * time.Second,
		logger:        logger.New("scheduler"),
		baseCtx:       ctx,
		stopAll:       cancel,
		timers:        make(map[int64]*entry),
		locks:         make(map[int64]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the scheduler's current time
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// Start recovers the persisted wars: future wars are armed again, wars whose
// time passed while the bot was down are dropped without an announcement.
func (s *Service) Start() (RecoveryReport, error) {
	s.logger.Info("Starting war scheduler")

	var report RecoveryReport
	wars, err := s.store.Load()
	if err != nil {
		return report, fmt.Errorf("failed to load wars: %w", err)
	}

	ids := make([]int64, 0, len(wars))
	for id := range wars {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		war := wars[id]
		war.ServerID = id
		rearmed, err := s.recoverOne(war)
		if err != nil {
			s.logger.Error("Failed to recover war for server %d: %v", id, err)
			continue
		}
		if rearmed {
			report.Rearmed = append(report.Rearmed, war)
		} else {
			report.Missed = append(report.Missed, war)
		}
	}

	s.logger.Info("Recovered wars: %d re-armed, %d missed", len(report.Rearmed), len(report.Missed))
	return report, nil
}

func (s *Service) recoverOne(war models.WarRecord) (bool, error) {
	unlock := s.lockServer(war.ServerID)
	defer unlock()

	if s.Active(war.ServerID) {
		return true, nil
	}
	if war.FireAt.After(s.clock.Now()) {
		return true, s.armLocked(war)
	}

	s.logger.Warn("War for server %d against %s was due at %s; dropping it", war.ServerID, war.Opponent, war.FireAt.Format(time.RFC3339))
	if _, err := s.store.Remove(war.ServerID); err != nil {
		return false, err
	}
	return false, nil
}

// Schedule persists war and arms its timer, replacing any war the server
// already has. The old timer is canceled before the new one is armed.
func (s *Service) Schedule(war models.WarRecord) error {
	unlock := s.lockServer(war.ServerID)
	defer unlock()

	if s.isStopped() {
		return ErrStopped
	}
	if !war.FireAt.After(s.clock.Now()) {
		return ErrNotFuture
	}
	if err := s.store.Put(war); err != nil {
		return fmt.Errorf("failed to persist war: %w", err)
	}

	if old := s.detach(war.ServerID); old != nil {
		s.logger.Info("Replacing war for server %d against %s", war.ServerID, old.war.Opponent)
	}
	if err := s.armLocked(war); err != nil {
		// Keep the store consistent with the timers.
		if _, rmErr := s.store.Remove(war.ServerID); rmErr != nil {
			s.logger.Error("Failed to roll back war for server %d: %v", war.ServerID, rmErr)
		}
		return err
	}

	s.logger.Info("Armed war for server %d against %s at %s", war.ServerID, war.Opponent, war.FireAt.Format(time.RFC3339))
	return nil
}

// Cancel stops the server's war. check, when set, sees the current war first
// and can veto the cancellation by returning an error, which is passed through.
func (s *Service) Cancel(serverID int64, check func(models.WarRecord) error) (models.WarRecord, error) {
	unlock := s.lockServer(serverID)
	defer unlock()

	war, stored, err := s.store.Get(serverID)
	if err != nil {
		return models.WarRecord{}, fmt.Errorf("failed to load war: %w", err)
	}

	s.mu.Lock()
	e := s.timers[serverID]
	s.mu.Unlock()

	if !stored && e == nil {
		return models.WarRecord{}, ErrNothingToCancel
	}
	if !stored {
		war = e.war
	}
	if check != nil {
		if err := check(war); err != nil {
			return war, err
		}
	}

	s.detach(serverID)
	if stored {
		if _, err := s.store.Remove(serverID); err != nil {
			return war, fmt.Errorf("failed to delete war: %w", err)
		}
	}

	s.logger.Info("Canceled war for server %d against %s", serverID, war.Opponent)
	return war, nil
}

// Active reports whether the server has an armed timer
func (s *Service) Active(serverID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[serverID]
	return ok
}

// Armed returns the wars that currently have a timer, ordered by fire time
func (s *Service) Armed() []models.WarRecord {
	s.mu.Lock()
	wars := make([]models.WarRecord, 0, len(s.timers))
	for _, e := range s.timers {
		wars = append(wars, e.war)
	}
	s.mu.Unlock()

	sort.Slice(wars, func(i, j int) bool { return wars[i].FireAt.Before(wars[j].FireAt) })
	return wars
}

// Stop cancels every pending wait and waits for the timer goroutines to exit.
// Persisted wars are left untouched so that Start can recover them.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.timers = make(map[int64]*entry)
	s.mu.Unlock()

	s.logger.Info("Stopping war scheduler")
	s.stopAll()
	s.wg.Wait()
}

func (s *Service) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// lockServer locks the per-server mutex and returns its unlock function
func (s *Service) lockServer(serverID int64) func() {
	s.mu.Lock()
	m, ok := s.locks[serverID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[serverID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// detach cancels and unregisters the server's timer. Caller holds the server lock.
func (s *Service) detach(serverID int64) *entry {
	s.mu.Lock()
	e := s.timers[serverID]
	delete(s.timers, serverID)
	s.mu.Unlock()

	if e != nil {
		e.cancel()
	}
	return e
}

// armLocked registers a timer for war. Caller holds the server lock.
func (s *Service) armLocked(war models.WarRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	e := &entry{war: war, ctx: ctx, cancel: cancel}
	timer := s.clock.NewTimer(war.FireAt.Sub(s.clock.Now()))
	s.timers[war.ServerID] = e

	s.wg.Add(1)
	go s.wait(e, timer)
	return nil
}

// wait blocks until the war is due or canceled. It never fires early: a timer
// that wakes before FireAt is re-armed for the remainder.
func (s *Service) wait(e *entry, timer Timer) {
	defer s.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
		}

		remaining := e.war.FireAt.Sub(s.clock.Now())
		if remaining <= 0 {
			s.fire(e)
			return
		}
		s.logger.Debug("Timer for server %d woke %v early", e.war.ServerID, remaining)
		timer = s.clock.NewTimer(remaining)
	}
}

// fire sends the announcement if the entry still owns the server, then
// removes the war from the timers and from the store.
func (s *Service) fire(e *entry) {
	serverID := e.war.ServerID
	unlock := s.lockServer(serverID)
	defer unlock()

	// The fire-or-cancel decision is made here, under the server lock.
	s.mu.Lock()
	owned := s.timers[serverID] == e && e.ctx.Err() == nil
	if owned {
		delete(s.timers, serverID)
	}
	s.mu.Unlock()
	if !owned {
		return
	}
	e.cancel()

	s.logger.Info("War time for server %d against %s", serverID, e.war.Opponent)
	if err := s.notify(e.war); err != nil {
		s.logger.Error("Failed to announce war for server %d: %v", serverID, err)
	}
	if _, err := s.store.Remove(serverID); err != nil {
		s.logger.Error("Failed to delete fired war for server %d: %v", serverID, err)
	}
}

func (s *Service) notify(war models.WarRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
	defer cancel()
	return s.notifier.NotifyWar(ctx, war)
}
