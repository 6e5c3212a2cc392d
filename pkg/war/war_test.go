package war

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/korjavin/warbot/pkg/messages"
	"github.com/korjavin/warbot/pkg/models"
	"github.com/korjavin/warbot/pkg/scheduler"
	"github.com/korjavin/warbot/pkg/scheduler/schedulertest"
	"github.com/korjavin/warbot/pkg/storage"
	"github.com/korjavin/warbot/pkg/wartime"
)

// Monday 2026-10-19 09:00 in the war zone.
var mondayNine = time.Date(2026, 10, 19, 9, 0, 0, 0, wartime.DefaultLocation)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	sent chan sentMessage
}

func (f *fakeSender) SendHTML(chatID int64, text string) error {
	f.sent <- sentMessage{chatID: chatID, text: text}
	return nil
}

type fixture struct {
	clock  *schedulertest.ManualClock
	wars   *storage.WarStore
	sender *fakeSender
	sched  *scheduler.Service
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory error: %v", err)
	}
	f := &fixture{
		clock:  schedulertest.NewManualClock(mondayNine),
		wars:   storage.NewWarStore(store),
		sender: &fakeSender{sent: make(chan sentMessage, 8)},
	}
	announcer := NewAnnouncer(f.sender, messages.New(nil, "UTC+7"))
	f.sched = scheduler.New(f.wars, announcer, scheduler.WithClock(f.clock))
	f.svc = New(f.sched, f.wars, wartime.DefaultLocation)
	t.Cleanup(func() {
		f.sched.Stop()
		store.Close()
	})
	return f
}

func TestSetWar(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	war, err := f.svc.SetWar(SetWarRequest{
		ServerID:     -1001,
		Day:          "Monday",
		Time:         "10:00",
		Opponent:     "  Red Clan ",
		Participants: []models.Participant{{ID: 1, Name: "A"}},
		RequestedBy:  9,
	})
	if err != nil {
		t.Fatalf("SetWar error: %v", err)
	}
	if want := mondayNine.AddDate(0, 0, 7).Add(time.Hour); !war.FireAt.Equal(want) {
		t.Fatalf("FireAt = %v, want %v", war.FireAt, want)
	}
	if war.Opponent != "Red Clan" || war.DisplayTime != "Monday 10:00" || war.RawTime != "10:00" {
		t.Fatalf("war = %+v", war)
	}
	if len(war.Token) != 8 {
		t.Fatalf("Token = %q, want 8 chars", war.Token)
	}
	if !f.sched.Active(-1001) {
		t.Fatal("war should be armed")
	}

	listed, err := f.svc.CurrentWar(-1001)
	if err != nil {
		t.Fatalf("CurrentWar error: %v", err)
	}
	if listed.Token != war.Token || !listed.FireAt.Equal(war.FireAt) {
		t.Fatalf("CurrentWar = %+v", listed)
	}
}

func TestSetWarValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tooMany := make([]models.Participant, MaxParticipants+1)
	cases := []struct {
		name string
		req  SetWarRequest
		want error
	}{
		{name: "bad time", req: SetWarRequest{ServerID: 1, Day: "today", Time: "8pm", Opponent: "x"}, want: wartime.ErrInvalidFormat},
		{name: "no opponent", req: SetWarRequest{ServerID: 1, Day: "today", Time: "20:00", Opponent: " "}, want: ErrMissingOpponent},
		{name: "too many", req: SetWarRequest{ServerID: 1, Day: "today", Time: "20:00", Opponent: "x", Participants: tooMany}, want: ErrTooManyParticipants},
	}
	for _, tc := range cases {
		if _, err := f.svc.SetWar(tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: error = %v, want %v", tc.name, err, tc.want)
		}
	}
	if _, err := f.svc.CurrentWar(1); !errors.Is(err, ErrNoWar) {
		t.Fatalf("rejected wars must not be stored, err = %v", err)
	}
}

func TestCancelWarToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if _, err := f.svc.CancelWar(5, "anything"); !errors.Is(err, scheduler.ErrNothingToCancel) {
		t.Fatalf("error = %v, want ErrNothingToCancel", err)
	}

	f.svc.newToken = func() string { return "ab12cd34" }
	war, err := f.svc.SetWar(SetWarRequest{ServerID: 5, Day: "tomorrow", Time: "20:00", Opponent: "Blue"})
	if err != nil {
		t.Fatal(err)
	}

	for _, bad := range []string{"", strings.ToUpper(war.Token), war.Token + " ", "5"} {
		if _, err := f.svc.CancelWar(5, bad); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("CancelWar(%q) error = %v, want ErrInvalidToken", bad, err)
		}
	}
	if !f.sched.Active(5) {
		t.Fatal("invalid token must not cancel")
	}

	got, err := f.svc.CancelWar(5, war.Token)
	if err != nil {
		t.Fatalf("CancelWar error: %v", err)
	}
	if got.Opponent != "Blue" {
		t.Fatalf("CancelWar = %+v", got)
	}
	if _, err := f.svc.CurrentWar(5); !errors.Is(err, ErrNoWar) {
		t.Fatalf("war should be gone, err = %v", err)
	}
}

func TestSetWarAnnouncesAtFireTime(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if _, err := f.svc.SetWar(SetWarRequest{
		ServerID:     -42,
		Day:          "today",
		Time:         "11:00",
		Opponent:     "Green",
		Participants: []models.Participant{{ID: 7, Name: "Seven"}},
	}); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(2 * time.Hour)
	select {
	case msg := <-f.sender.sent:
		if msg.chatID != -42 {
			t.Fatalf("sent to %d", msg.chatID)
		}
		if !strings.Contains(msg.text, "WAR STARTED!") || !strings.Contains(msg.text, "tg://user?id=7") {
			t.Fatalf("announcement = %q", msg.text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no announcement sent")
	}
}
