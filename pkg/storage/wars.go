package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/korjavin/warbot/pkg/logger"
	"github.com/korjavin/warbot/pkg/models"
)

const warsKey = "wars"

// WarStore persists the server -> war mapping as one document
type WarStore struct {
	store  *Store
	mu     sync.Mutex
	logger *logger.Logger
}

// NewWarStore creates a war store on top of a Store
func NewWarStore(store *Store) *WarStore {
	return &WarStore{
		store:  store,
		logger: logger.New("wars"),
	}
}

// Load returns every persisted war. A missing, empty or unreadable document
// yields an empty mapping.
func (w *WarStore) Load() (map[int64]models.WarRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := w.store.GetRaw(warsKey)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	return w.decode(data), nil
}

// Save replaces the whole persisted mapping
func (w *WarStore) Save(wars map[int64]models.WarRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := encodeWars(wars)
	if err != nil {
		return err
	}
	return w.store.Update(warsKey, func([]byte) ([]byte, error) {
		return data, nil
	})
}

// Update runs load-modify-save as one step. fn may mutate the mapping in place.
func (w *WarStore) Update(fn func(wars map[int64]models.WarRecord) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.store.Update(warsKey, func(current []byte) ([]byte, error) {
		wars := w.decode(current)
		if err := fn(wars); err != nil {
			return nil, err
		}
		return encodeWars(wars)
	})
}

// Get returns the war of one server
func (w *WarStore) Get(serverID int64) (models.WarRecord, bool, error) {
	wars, err := w.Load()
	if err != nil {
		return models.WarRecord{}, false, err
	}
	rec, ok := wars[serverID]
	return rec, ok, nil
}

// Put stores rec, replacing any war of the same server
func (w *WarStore) Put(rec models.WarRecord) error {
	return w.Update(func(wars map[int64]models.WarRecord) error {
		wars[rec.ServerID] = rec
		return nil
	})
}

// Remove deletes the war of one server and reports whether one existed
func (w *WarStore) Remove(serverID int64) (bool, error) {
	var existed bool
	err := w.Update(func(wars map[int64]models.WarRecord) error {
		_, existed = wars[serverID]
		delete(wars, serverID)
		return nil
	})
	return existed, err
}

func (w *WarStore) decode(data []byte) map[int64]models.WarRecord {
	wars := make(map[int64]models.WarRecord)
	if len(bytes.TrimSpace(data)) == 0 {
		return wars
	}
	if err := json.Unmarshal(data, &wars); err != nil {
		w.logger.Warn("Discarding unreadable war document: %v", err)
		return make(map[int64]models.WarRecord)
	}
	return wars
}

func encodeWars(wars map[int64]models.WarRecord) ([]byte, error) {
	if wars == nil {
		wars = map[int64]models.WarRecord{}
	}
	data, err := json.MarshalIndent(wars, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal wars: %w", err)
	}
	return data, nil
}
