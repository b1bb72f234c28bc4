package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	badger "github.com/dgraph-io/badger/v3"
)

var hashPrefix = []byte("hash/")

// BadgerTracker keeps entries in an embedded BadgerDB under stateDir/badger,
// one JSON value per hash. In non-persisting mode new entries only live in
// memory while stored ones are still honored.
type BadgerTracker struct {
	pending *MemoryTracker
	db      *badger.DB
	persist bool
}

func NewBadgerTracker(stateDir string, persist bool) (*BadgerTracker, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	dir := filepath.Join(stateDir, "badger")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	// See: https://dgraph.io/docs/badger/get-started/#opening-a-database
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger state: %w", err)
	}

	return &BadgerTracker{
		pending: NewMemoryTracker(),
		db:      db,
		persist: persist,
	}, nil
}

func hashKey(hash string) []byte {
	return append(append([]byte{}, hashPrefix...), hash...)
}

func (b *BadgerTracker) Seen(hash string) bool {
	_, ok := b.Lookup(hash)
	return ok
}

func (b *BadgerTracker) Lookup(hash string) (Entry, bool) {
	if e, ok := b.pending.Lookup(hash); ok {
		return e, true
	}
	if hash == "" {
		return Entry{}, false
	}
	e, err := b.stored(hash)
	return e, err == nil
}

func (b *BadgerTracker) stored(hash string) (Entry, error) {
	var e Entry
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(hashKey(hash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	return e, err
}

func (b *BadgerTracker) Record(e Entry) error {
	if e.Hash == "" || b.Seen(e.Hash) {
		return nil
	}
	if !b.persist {
		b.pending.put(e)
		return nil
	}

	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode state entry: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(hashKey(e.Hash), val)
	})
	if err != nil {
		return fmt.Errorf("write state entry: %w", err)
	}
	return nil
}

// Snapshot adds up the stored entries and those only held in memory.
func (b *BadgerTracker) Snapshot() Snapshot {
	s := b.pending.Snapshot()
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = hashPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			s.add(e)
		}
		return nil
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return b.pending.Snapshot()
	}
	return s
}

func (b *BadgerTracker) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close badger state: %w", err)
	}
	return nil
}
