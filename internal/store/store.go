package store

import (
	"fmt"
	"sync"

	"github.com/roach88/pairsync/internal/record"
)

// Store is the single source of truth for one device's list of records.
//
// Thread-safety: all methods are safe for concurrent use. In practice the
// coordinator's event loop is the only writer for received data while the UI
// performs local edits.
type Store struct {
	mu      sync.RWMutex
	records []record.Record
	seed    func() []record.Record
}

// Option configures a Store.
type Option func(*Store)

// WithSeed sets the function whose result Fetch installs.
func WithSeed(seed func() []record.Record) Option {
	return func(s *Store) {
		s.seed = seed
	}
}

// New creates an empty store. Without WithSeed, Fetch installs
// record.Seed(record.Factory{}, nil).
func New(opts ...Option) *Store {
	s := &Store{
		records: []record.Record{},
		seed: func() []record.Record {
			return record.Seed(record.Factory{}, nil)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch replaces the list with the seed set. No merge is performed.
func (s *Store) Fetch() {
	seeded := record.Clone(s.seed())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = seeded
}

// Overwrite replaces the list with a copy of records, preserving their order
// exactly. Existing records are discarded without comparison.
func (s *Store) Overwrite(records []record.Record) {
	replacement := record.Clone(records)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = replacement
}

// Append adds r at the end of the list.
func (s *Store) Append(r record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

// PopLast removes and returns the last record.
// Returns false and leaves the list untouched when it is empty.
func (s *Store) PopLast() (record.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		return record.Record{}, false
	}
	last := s.records[len(s.records)-1]
	s.records[len(s.records)-1] = record.Record{}
	s.records = s.records[:len(s.records)-1]
	return last, true
}

// Edit replaces the text of the record at index, keeping its id and
// timestamp. Panics if index is out of range.
func (s *Store) Edit(index int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.records) {
		panic(fmt.Sprintf("store: edit index %d out of range [0,%d)", index, len(s.records)))
	}
	s.records[index] = s.records[index].WithText(text)
}

// Records returns a copy of the current list. The copy is an immutable
// snapshot: later mutations of the store do not affect it.
func (s *Store) Records() []record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return record.Clone(s.records)
}

// At returns the record at index and whether index is in range.
func (s *Store) At(index int) (record.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.records) {
		return record.Record{}, false
	}
	return s.records[index], true
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
