package ranks

import (
	"errors"
	"testing"

	"github.com/korjavin/warbot/pkg/config"
	"github.com/korjavin/warbot/pkg/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, config.DefaultCatalog()), store
}

func TestRanksDefaults(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t)

	stats, err := s.Ranks(42)
	if err != nil {
		t.Fatalf("Ranks error: %v", err)
	}
	if len(stats) != 6 {
		t.Fatalf("len(stats) = %d", len(stats))
	}
	for _, st := range stats {
		if st.Rank != "F" {
			t.Fatalf("%s = %s, want default F", st.Name, st.Rank)
		}
	}
}

func TestSetRank(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t)

	stat, rank, err := s.SetRank(42, "counter_dash", "sss+")
	if err != nil {
		t.Fatalf("SetRank error: %v", err)
	}
	if stat != "Counter Dash" || rank != "SSS+" {
		t.Fatalf("SetRank = %q, %q", stat, rank)
	}
	if _, _, err := s.SetRank(42, "Rush", "A"); err != nil {
		t.Fatal(err)
	}

	stats, _ := s.Ranks(42)
	got := map[string]string{}
	for _, st := range stats {
		got[st.Name] = st.Rank
	}
	if got["Counter Dash"] != "SSS+" || got["Rush"] != "A" || got["Passive"] != "F" {
		t.Fatalf("Ranks = %v", got)
	}

	other, _ := s.Ranks(43)
	if other[0].Rank != "F" {
		t.Fatal("ranks must be per user")
	}
}

func TestSetRankValidation(t *testing.T) {
	t.Parallel()
	s, store := newTestService(t)

	if _, _, err := s.SetRank(1, "Flying", "A"); !errors.Is(err, ErrUnknownStat) {
		t.Fatalf("error = %v, want ErrUnknownStat", err)
	}
	if _, _, err := s.SetRank(1, "Rush", "Z"); !errors.Is(err, ErrUnknownRank) {
		t.Fatalf("error = %v, want ErrUnknownRank", err)
	}
	if ok, _ := store.Exists(ranksKey(1)); ok {
		t.Fatal("rejected SetRank must not store anything")
	}
}

func TestResetRank(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t)

	if err := s.ResetRank(7); !errors.Is(err, ErrNothingToReset) {
		t.Fatalf("error = %v, want ErrNothingToReset", err)
	}
	if _, _, err := s.SetRank(7, "Passive", "B"); err != nil {
		t.Fatal(err)
	}
	if err := s.ResetRank(7); err != nil {
		t.Fatalf("ResetRank error: %v", err)
	}
	stats, _ := s.Ranks(7)
	for _, st := range stats {
		if st.Rank != "F" {
			t.Fatalf("after reset %s = %s", st.Name, st.Rank)
		}
	}
	if err := s.ResetRank(7); !errors.Is(err, ErrNothingToReset) {
		t.Fatalf("second reset error = %v", err)
	}
}
