package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/korjavin/warbot/pkg/logger"
	"github.com/robfig/cron/v3"
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("key not found")

// Store represents a BadgerDB storage instance
type Store struct {
	db   *badger.DB
	cron *cron.Cron
}

// New creates a new BadgerDB storage instance
func New(dataDir string) (*Store, error) {
	absPath, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	opts := badger.DefaultOptions(absPath)
	opts.Logger = nil // Disable Badger's internal logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	logger.Global.Info("BadgerDB opened at %s", absPath)
	return &Store{db: db}, nil
}

// NewInMemory creates a store that keeps everything in memory
func NewInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithMemTableSize(8 << 20)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory BadgerDB: %w", err)
	}
	return &Store{db: db}, nil
}

// Close stops the GC schedule and closes the BadgerDB database
func (s *Store) Close() error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Set stores a value for a key
func (s *Store) Set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Get retrieves a value for a key
func (s *Store) Get(key string, value interface{}) error {
	data, err := s.GetRaw(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, value)
}

// GetRaw retrieves the stored bytes for a key
func (s *Store) GetRaw(key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get value: %w", err)
	}
	return data, nil
}

// Update reads the bytes under key (nil when missing), passes them to fn and
// writes the result back in the same transaction. A nil result deletes the key.
func (s *Store) Update(key string, fn func(current []byte) ([]byte, error)) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var current []byte
		item, err := txn.Get([]byte(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return fmt.Errorf("failed to get value: %w", err)
		default:
			current, err = item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to copy value: %w", err)
			}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			if current == nil {
				return nil
			}
			return txn.Delete([]byte(key))
		}
		return txn.Set([]byte(key), next)
	})
}

// Delete removes a key from the database
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Exists reports whether a key is present
func (s *Store) Exists(key string) (bool, error) {
	_, err := s.GetRaw(key)
	if isNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// List returns all keys with a given prefix
func (s *Store) List(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			keys = append(keys, string(it.Item().Key()))
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	return keys, nil
}

// RunGC runs garbage collection on the database
func (s *Store) RunGC() error {
	return s.db.RunValueLogGC(0.5)
}

// StartGCSchedule runs value log garbage collection on a cron schedule
// such as "@every 10m"
func (s *Store) StartGCSchedule(spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := s.RunGC(); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			logger.Global.Error("BadgerDB GC error: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid GC schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	logger.Global.Info("Started BadgerDB GC schedule %q", spec)
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
