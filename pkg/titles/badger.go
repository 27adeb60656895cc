package titles

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/pypydance/roomlog/internal/logging"
)

const badgerKeyPrefix = "title:"

// BadgerCache is a cache stored in an embedded Badger database.
// Badger holds a directory lock, so only one process can open a given path.
type BadgerCache struct {
	db     *badger.DB
	owned  bool
	mu     sync.RWMutex
	closed bool
}

// OpenBadgerCache opens or creates a Badger database at dir.
func OpenBadgerCache(dir string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening title cache %s: %w", dir, err)
	}
	return &BadgerCache{db: db, owned: true}, nil
}

// NewBadgerCache wraps an open database. Close leaves db open.
func NewBadgerCache(db *badger.DB) *BadgerCache {
	return &BadgerCache{db: db}
}

func badgerKey(id string) []byte {
	return []byte(badgerKeyPrefix + id)
}

// Get returns the cached title for id.
func (c *BadgerCache) Get(_ context.Context, id string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return "", false, ErrCacheClosed
	}

	var title string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			title = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading title %s: %w", id, err)
	}
	return title, true, nil
}

// Put stores a title.
func (c *BadgerCache) Put(_ context.Context, id, title string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrCacheClosed
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(id), []byte(title))
	})
	if err != nil {
		return fmt.Errorf("storing title %s: %w", id, err)
	}
	return nil
}

// Len returns the number of cached titles, or 0 if the scan fails.
func (c *BadgerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0
	}

	count := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Title cache scan failed")
		return 0
	}
	return count
}

// Close closes the database if the cache opened it.
func (c *BadgerCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.owned {
		return c.db.Close()
	}
	return nil
}
