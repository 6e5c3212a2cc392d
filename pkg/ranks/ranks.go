package ranks

import (
	"errors"
	"fmt"
	"time"

	"github.com/korjavin/warbot/pkg/config"
	"github.com/korjavin/warbot/pkg/logger"
	"github.com/korjavin/warbot/pkg/models"
	"github.com/korjavin/warbot/pkg/storage"
)

var (
	// ErrUnknownStat is returned for a stat that is not in the catalog
	ErrUnknownStat = errors.New("unknown stat")
	// ErrUnknownRank is returned for a rank that is not in the catalog
	ErrUnknownRank = errors.New("unknown rank")
	// ErrNothingToReset is returned when a user has no ranks stored
	ErrNothingToReset = errors.New("nothing to reset")
)

// Stat is one catalog stat with the rank a user holds in it
type Stat struct {
	Name string
	Rank string
}

// Service provides rank tracking functionality
type Service struct {
	store   *storage.Store
	catalog *config.Catalog
	logger  *logger.Logger
}

// New creates a new rank service
func New(store *storage.Store, catalog *config.Catalog) *Service {
	return &Service{
		store:   store,
		catalog: catalog,
		logger:  logger.New("ranks"),
	}
}

func ranksKey(userID int64) string {
	return fmt.Sprintf("ranks:%d", userID)
}

// Catalog returns the catalog the service validates against
func (s *Service) Catalog() *config.Catalog {
	return s.catalog
}

// SetRank sets one stat of a user and returns the canonical stat and rank names
func (s *Service) SetRank(userID int64, stat, rank string) (string, string, error) {
	statName, ok := s.catalog.LookupStat(stat)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownStat, stat)
	}
	rankName, ok := s.catalog.LookupRank(rank)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownRank, rank)
	}

	var ranks models.UserRanks
	err := s.store.Get(ranksKey(userID), &ranks)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("Replacing unreadable ranks of user %d: %v", userID, err)
	}
	if ranks.Stats == nil {
		ranks.Stats = make(map[string]string)
	}
	ranks.UserID = userID
	ranks.Stats[statName] = rankName
	ranks.UpdatedAt = time.Now()

	if err := s.store.Set(ranksKey(userID), ranks); err != nil {
		return "", "", fmt.Errorf("failed to save ranks: %w", err)
	}
	s.logger.Info("Set %s of user %d to %s", statName, userID, rankName)
	return statName, rankName, nil
}

// ResetRank removes every stored rank of a user
func (s *Service) ResetRank(userID int64) error {
	exists, err := s.store.Exists(ranksKey(userID))
	if err != nil {
		return fmt.Errorf("failed to check ranks: %w", err)
	}
	if !exists {
		return ErrNothingToReset
	}
	if err := s.store.Delete(ranksKey(userID)); err != nil {
		return fmt.Errorf("failed to delete ranks: %w", err)
	}
	s.logger.Info("Reset ranks of user %d", userID)
	return nil
}

// Ranks returns every catalog stat of a user in catalog order. Stats that were
// never set hold the catalog's default rank.
func (s *Service) Ranks(userID int64) ([]Stat, error) {
	var ranks models.UserRanks
	err := s.store.Get(ranksKey(userID), &ranks)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("Ignoring unreadable ranks of user %d: %v", userID, err)
	}

	stats := make([]Stat, len(s.catalog.Stats))
	for i, name := range s.catalog.Stats {
		rank, ok := ranks.Stats[name]
		if !ok {
			rank = s.catalog.DefaultRank
		}
		stats[i] = Stat{Name: name, Rank: rank}
	}
	return stats, nil
}
