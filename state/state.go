package state

import (
	"fmt"
	"sync"
	"time"
)

const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Entry is what the tracker remembers about one exported mail.
type Entry struct {
	Hash      string    `json:"hash"`
	MessageID string    `json:"message_id"`
	Size      int64     `json:"size,omitempty"`
	Partial   bool      `json:"partial,omitempty"`
	ParsedAt  time.Time `json:"parsed_at"`
}

// Tracker remembers which raw mails have already been parsed and exported,
// keyed by the hash of the raw bytes. Entries without a hash are ignored.
type Tracker interface {
	Seen(hash string) bool
	Record(e Entry) error
	Lookup(hash string) (Entry, bool)
	Snapshot() Snapshot
	Close() error
}

// Snapshot summarizes the entries a tracker knows about.
type Snapshot struct {
	Processed int
	Partial   int
	Bytes     int64
}

func (s *Snapshot) add(e Entry) {
	s.Processed++
	s.Bytes += e.Size
	if e.Partial {
		s.Partial++
	}
}

// New opens the tracker for backend in stateDir. With persist false nothing
// is written to disk, but previously recorded hashes are still honored.
func New(backend, stateDir string, persist bool) (Tracker, error) {
	switch backend {
	case "", BackendFile:
		return NewFileTracker(stateDir, persist)
	case BackendBadger:
		return NewBadgerTracker(stateDir, persist)
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

// MemoryTracker keeps entries in a map. The file and badger trackers use it
// as their in-process index.
type MemoryTracker struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{entries: make(map[string]Entry)}
}

func (m *MemoryTracker) Seen(hash string) bool {
	_, ok := m.Lookup(hash)
	return ok
}

func (m *MemoryTracker) Lookup(hash string) (Entry, bool) {
	if hash == "" {
		return Entry{}, false
	}
	m.mu.RLock()
	e, ok := m.entries[hash]
	m.mu.RUnlock()
	return e, ok
}

func (m *MemoryTracker) Record(e Entry) error {
	m.put(e)
	return nil
}

// put stores e and reports whether it was new.
func (m *MemoryTracker) put(e Entry) bool {
	if e.Hash == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.Hash]; ok {
		return false
	}
	m.entries[e.Hash] = e
	return true
}

func (m *MemoryTracker) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s Snapshot
	for _, e := range m.entries {
		s.add(e)
	}
	return s
}

func (m *MemoryTracker) Close() error {
	return nil
}
