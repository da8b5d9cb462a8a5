package record

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ID identifies a Record for its whole lifetime.
type ID = uuid.UUID

// IDGenerator produces fresh record identities.
// Implemented by UUIDv7Generator (production) and FixedIDs (tests).
type IDGenerator interface {
	Generate() ID
}

// UUIDv7Generator generates time-sortable UUIDv7 identities.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() ID {
	return uuid.Must(uuid.NewV7())
}

// FixedIDs returns predetermined identities in order.
//
// This enables deterministic tests and golden payload comparison.
// Thread-safety: FixedIDs is safe for concurrent use via internal mutex.
type FixedIDs struct {
	mu  sync.Mutex
	ids []ID
	idx int
}

// NewFixedIDs parses the given strings as UUIDs.
// Panics on a malformed UUID: the inputs are test literals.
func NewFixedIDs(ids ...string) *FixedIDs {
	parsed := make([]ID, len(ids))
	for i, s := range ids {
		parsed[i] = uuid.MustParse(s)
	}
	return &FixedIDs{ids: parsed}
}

// Generate returns the next predetermined id.
// Panics once all ids have been handed out.
func (g *FixedIDs) Generate() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic(fmt.Sprintf("FixedIDs: all %d ids exhausted", len(g.ids)))
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
