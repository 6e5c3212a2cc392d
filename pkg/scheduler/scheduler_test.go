package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/korjavin/warbot/pkg/models"
	"github.com/korjavin/warbot/pkg/scheduler"
	"github.com/korjavin/warbot/pkg/scheduler/schedulertest"
	"github.com/korjavin/warbot/pkg/storage"
)

var start = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type recorder struct {
	fired chan models.WarRecord
	mu    sync.Mutex
	fail  func(models.WarRecord) error
}

func newRecorder() *recorder {
	return &recorder{fired: make(chan models.WarRecord, 64)}
}

func (r *recorder) NotifyWar(_ context.Context, war models.WarRecord) error {
	r.fired <- war
	r.mu.Lock()
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return fail(war)
	}
	return nil
}

type fixture struct {
	clock *schedulertest.ManualClock
	wars  *storage.WarStore
	rec   *recorder
	svc   *scheduler.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory error: %v", err)
	}
	f := &fixture{
		clock: schedulertest.NewManualClock(start),
		wars:  storage.NewWarStore(store),
		rec:   newRecorder(),
	}
	f.svc = scheduler.New(f.wars, f.rec, scheduler.WithClock(f.clock))
	t.Cleanup(func() {
		f.svc.Stop()
		store.Close()
	})
	return f
}

func war(serverID int64, token string, in time.Duration) models.WarRecord {
	return models.WarRecord{
		ServerID: serverID,
		Token:    token,
		Opponent: "Clan " + token,
		FireAt:   start.Add(in),
	}
}

func expectFired(t *testing.T, r *recorder) models.WarRecord {
	t.Helper()
	select {
	case w := <-r.fired:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return models.WarRecord{}
	}
}

func expectSilence(t *testing.T, r *recorder) {
	t.Helper()
	select {
	case w := <-r.fired:
		t.Fatalf("unexpected notification for %+v", w)
	case <-time.After(50 * time.Millisecond):
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", what)
}

func stored(t *testing.T, ws *storage.WarStore, serverID int64) bool {
	t.Helper()
	_, ok, err := ws.Get(serverID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	return ok
}

func TestScheduleFiresOnceAndCleansUp(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.svc.Schedule(war(1, "a", time.Hour)); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if !f.svc.Active(1) || !stored(t, f.wars, 1) {
		t.Fatal("war should be armed and persisted")
	}

	f.clock.Advance(59 * time.Minute)
	expectSilence(t, f.rec)

	f.clock.Advance(time.Minute)
	if got := expectFired(t, f.rec); got.Token != "a" {
		t.Fatalf("fired token = %q", got.Token)
	}
	eventually(t, "war removed from store", func() bool { return !stored(t, f.wars, 1) })
	if f.svc.Active(1) {
		t.Fatal("timer should be gone after firing")
	}
	expectSilence(t, f.rec)
}

func TestScheduleRejectsPastAndNow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, in := range []time.Duration{0, -time.Minute} {
		if err := f.svc.Schedule(war(1, "a", in)); !errors.Is(err, scheduler.ErrNotFuture) {
			t.Fatalf("Schedule(%v) error = %v, want ErrNotFuture", in, err)
		}
	}
	if f.svc.Active(1) || stored(t, f.wars, 1) {
		t.Fatal("rejected war must not change state")
	}
}

func TestRejectedRescheduleKeepsExistingWar(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.svc.Schedule(war(1, "a", time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Schedule(war(1, "b", -time.Hour)); !errors.Is(err, scheduler.ErrNotFuture) {
		t.Fatalf("error = %v", err)
	}
	f.clock.Advance(time.Hour)
	if got := expectFired(t, f.rec); got.Token != "a" {
		t.Fatalf("fired token = %q, want a", got.Token)
	}
}

func TestRescheduleCancelsPreviousTimer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.svc.Schedule(war(1, "old", time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Schedule(war(1, "new", 2*time.Hour)); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(time.Hour)
	expectSilence(t, f.rec)

	f.clock.Advance(time.Hour)
	if got := expectFired(t, f.rec); got.Token != "new" {
		t.Fatalf("fired token = %q, want new", got.Token)
	}
	expectSilence(t, f.rec)

	rec, _, _ := f.wars.Get(1)
	if rec.Token == "old" {
		t.Fatal("old war must not survive the replacement")
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if _, err := f.svc.Cancel(1, nil); !errors.Is(err, scheduler.ErrNothingToCancel) {
		t.Fatalf("Cancel on empty server error = %v, want ErrNothingToCancel", err)
	}

	if err := f.svc.Schedule(war(1, "a", time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.Cancel(1, nil)
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if got.Token != "a" {
		t.Fatalf("Cancel returned %+v", got)
	}
	if f.svc.Active(1) || stored(t, f.wars, 1) {
		t.Fatal("cancel must clear timer and store")
	}

	f.clock.Advance(2 * time.Hour)
	expectSilence(t, f.rec)

	if _, err := f.svc.Cancel(1, nil); !errors.Is(err, scheduler.ErrNothingToCancel) {
		t.Fatalf("second Cancel error = %v", err)
	}
}

func TestCancelVetoLeavesWarArmed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.svc.Schedule(war(1, "a", time.Hour)); err != nil {
		t.Fatal(err)
	}
	veto := errors.New("wrong token")
	_, err := f.svc.Cancel(1, func(w models.WarRecord) error {
		if w.Token != "b" {
			return veto
		}
		return nil
	})
	if !errors.Is(err, veto) {
		t.Fatalf("Cancel error = %v, want veto", err)
	}
	if !f.svc.Active(1) || !stored(t, f.wars, 1) {
		t.Fatal("vetoed cancel must not change state")
	}

	f.clock.Advance(time.Hour)
	expectFired(t, f.rec)
}

func TestServersAreIndependent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.svc.Schedule(war(1, "one", time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Schedule(war(2, "two", 2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Cancel(1, nil); err != nil {
		t.Fatal(err)
	}
	if len(f.svc.Armed()) != 1 {
		t.Fatalf("Armed = %v", f.svc.Armed())
	}

	f.clock.Advance(2 * time.Hour)
	if got := expectFired(t, f.rec); got.ServerID != 2 {
		t.Fatalf("fired server = %d", got.ServerID)
	}
	expectSilence(t, f.rec)
}

func TestNeverFiresEarly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.svc.Schedule(war(1, "a", time.Hour)); err != nil {
		t.Fatal(err)
	}
	f.clock.WakeEarly()
	expectSilence(t, f.rec)
	eventually(t, "timer re-armed", func() bool { return f.clock.Pending() == 1 })

	f.clock.Advance(time.Hour)
	expectFired(t, f.rec)
}

func TestNotifierFailureStillCleansUp(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.rec.fail = func(w models.WarRecord) error {
		if w.ServerID == 1 {
			panic("send exploded")
		}
		return errors.New("chat unreachable")
	}

	if err := f.svc.Schedule(war(1, "a", time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Schedule(war(2, "b", 2*time.Hour)); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(time.Hour)
	expectFired(t, f.rec)
	eventually(t, "panicking war removed", func() bool { return !stored(t, f.wars, 1) })

	f.clock.Advance(time.Hour)
	expectFired(t, f.rec)
	eventually(t, "failing war removed", func() bool { return !stored(t, f.wars, 2) })
}

func TestCancelRacingFire(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for i := int64(1); i <= 50; i++ {
		w := models.WarRecord{ServerID: i, Token: "race", FireAt: f.clock.Now().Add(time.Hour)}
		if err := f.svc.Schedule(w); err != nil {
			t.Fatal(err)
		}

		var (
			wg        sync.WaitGroup
			cancelErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.clock.Advance(time.Hour)
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = f.svc.Cancel(i, nil)
		}()
		wg.Wait()

		switch {
		case cancelErr == nil:
			expectSilence(t, f.rec)
		case errors.Is(cancelErr, scheduler.ErrNothingToCancel):
			if got := expectFired(t, f.rec); got.ServerID != i {
				t.Fatalf("fired server %d, want %d", got.ServerID, i)
			}
			expectSilence(t, f.rec)
		default:
			t.Fatalf("Cancel error: %v", cancelErr)
		}
		eventually(t, "store cleared", func() bool { return !stored(t, f.wars, i) })
		if f.svc.Active(i) {
			t.Fatal("timer must be gone either way")
		}
	}
}

func TestStartRecoversPersistedWars(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.wars.Save(map[int64]models.WarRecord{
		1: war(1, "future", 2*time.Hour),
		2: war(2, "missed", -time.Minute),
		3: war(3, "due-now", 0),
	})
	if err != nil {
		t.Fatal(err)
	}

	report, err := f.svc.Start()
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if len(report.Rearmed) != 1 || report.Rearmed[0].Token != "future" {
		t.Fatalf("Rearmed = %+v", report.Rearmed)
	}
	if len(report.Missed) != 2 {
		t.Fatalf("Missed = %+v", report.Missed)
	}
	if stored(t, f.wars, 2) || stored(t, f.wars, 3) {
		t.Fatal("missed wars must be dropped from the store")
	}
	if !f.svc.Active(1) {
		t.Fatal("future war must be armed again")
	}
	expectSilence(t, f.rec)

	f.clock.Advance(2 * time.Hour)
	if got := expectFired(t, f.rec); got.Token != "future" {
		t.Fatalf("fired %q", got.Token)
	}
	expectSilence(t, f.rec)
	eventually(t, "fired war removed", func() bool { return !stored(t, f.wars, 1) })
}

func TestStopKeepsPersistedWars(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.svc.Schedule(war(1, "a", time.Hour)); err != nil {
		t.Fatal(err)
	}
	f.svc.Stop()

	if !stored(t, f.wars, 1) {
		t.Fatal("Stop must leave the war for recovery")
	}
	if f.svc.Active(1) {
		t.Fatal("Stop must drop timers")
	}
	if err := f.svc.Schedule(war(2, "b", time.Hour)); !errors.Is(err, scheduler.ErrStopped) {
		t.Fatalf("Schedule after Stop error = %v", err)
	}
	f.clock.Advance(time.Hour)
	expectSilence(t, f.rec)

	// A new process recovers the war.
	next := scheduler.New(f.wars, f.rec, scheduler.WithClock(f.clock))
	defer next.Stop()
	report, err := next.Start()
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Missed) != 1 {
		t.Fatalf("war due during downtime should be missed, got %+v", report)
	}
}
