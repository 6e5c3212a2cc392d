package war

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/korjavin/warbot/pkg/logger"
	"github.com/korjavin/warbot/pkg/models"
	"github.com/korjavin/warbot/pkg/scheduler"
	"github.com/korjavin/warbot/pkg/storage"
	"github.com/korjavin/warbot/pkg/wartime"
)

// MaxParticipants is the largest lineup a war accepts
const MaxParticipants = 5

var (
	// ErrTooManyParticipants is returned for a lineup above MaxParticipants
	ErrTooManyParticipants = errors.New("too many participants")
	// ErrMissingOpponent is returned when no opponent is named
	ErrMissingOpponent = errors.New("opponent is required")
	// ErrNoWar is returned when the server has no war scheduled
	ErrNoWar = errors.New("no war scheduled")
	// ErrInvalidToken is returned when a cancel token does not match the war
	ErrInvalidToken = errors.New("invalid confirmation token")
)

// SetWarRequest carries the user input of a "set war" command
type SetWarRequest struct {
	ServerID     int64
	Day          string
	Time         string
	Opponent     string
	Participants []models.Participant
	RequestedBy  int64
}

// Service provides war scheduling functionality
type Service struct {
	scheduler *scheduler.Service
	wars      *storage.WarStore
	loc       *time.Location
	newToken  func() string
	logger    *logger.Logger
}

// New creates a new war service. loc is the zone day selectors are resolved in.
func New(sched *scheduler.Service, wars *storage.WarStore, loc *time.Location) *Service {
	if loc == nil {
		loc = wartime.DefaultLocation
	}
	return &Service{
		scheduler: sched,
		wars:      wars,
		loc:       loc,
		newToken:  newToken,
		logger:    logger.New("war"),
	}
}

func newToken() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// Now returns the scheduler's current time
func (s *Service) Now() time.Time {
	return s.scheduler.Now()
}

// SetWar schedules the war of a server, replacing any war it already has
func (s *Service) SetWar(req SetWarRequest) (models.WarRecord, error) {
	opponent := strings.TrimSpace(req.Opponent)
	if opponent == "" {
		return models.WarRecord{}, ErrMissingOpponent
	}
	if len(req.Participants) > MaxParticipants {
		return models.WarRecord{}, fmt.Errorf("%w: %d > %d", ErrTooManyParticipants, len(req.Participants), MaxParticipants)
	}

	now := s.scheduler.Now()
	fireAt, err := wartime.Resolve(req.Day, req.Time, now, s.loc)
	if err != nil {
		return models.WarRecord{}, err
	}
	if !fireAt.After(now) {
		return models.WarRecord{}, scheduler.ErrNotFuture
	}

	war := models.WarRecord{
		ServerID:     req.ServerID,
		Token:        s.newToken(),
		Opponent:     opponent,
		FireAt:       fireAt,
		DaySelector:  req.Day,
		RawTime:      req.Time,
		DisplayTime:  wartime.Display(fireAt, s.loc),
		Participants: append([]models.Participant(nil), req.Participants...),
		CreatedBy:    req.RequestedBy,
		CreatedAt:    now,
	}
	if err := s.scheduler.Schedule(war); err != nil {
		return models.WarRecord{}, err
	}

	s.logger.Info("War set for server %d against %s at %s by %d", war.ServerID, war.Opponent, war.DisplayTime, war.CreatedBy)
	return war, nil
}

// CurrentWar returns the scheduled war of a server, including its cancel token
func (s *Service) CurrentWar(serverID int64) (models.WarRecord, error) {
	war, ok, err := s.wars.Get(serverID)
	if err != nil {
		return models.WarRecord{}, fmt.Errorf("failed to load war: %w", err)
	}
	if !ok {
		return models.WarRecord{}, ErrNoWar
	}
	return war, nil
}

// CancelWar cancels the war of a server. token must equal the war's token.
func (s *Service) CancelWar(serverID int64, token string) (models.WarRecord, error) {
	war, err := s.scheduler.Cancel(serverID, func(w models.WarRecord) error {
		if token != w.Token {
			return ErrInvalidToken
		}
		return nil
	})
	if err != nil {
		return models.WarRecord{}, err
	}
	return war, nil
}
