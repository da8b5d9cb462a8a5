package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pairsync/internal/record"
)

var at = time.Date(2023, 11, 18, 9, 30, 0, 0, time.UTC)

func makeRecords(texts ...string) []record.Record {
	out := make([]record.Record, len(texts))
	for i, text := range texts {
		out[i] = record.New(text, at.Add(time.Duration(i)*time.Second))
	}
	return out
}

func TestNew_Empty(t *testing.T) {
	s := New()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Records())
	assert.NotNil(t, s.Records())
}

// Scenario A: empty -> fetch -> 4 seeded records -> overwrite([]) -> empty.
func TestScenarioA_FetchThenOverwriteEmpty(t *testing.T) {
	s := New()

	s.Fetch()
	require.Equal(t, 4, s.Len())

	s.Overwrite([]record.Record{})
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Records())
}

func TestFetch_IsIdempotentFullReplacement(t *testing.T) {
	seed := makeRecords("a", "b")
	s := New(WithSeed(func() []record.Record { return seed }))

	s.Append(record.New("local", at))
	s.Fetch()
	assert.Equal(t, seed, s.Records())

	s.Fetch()
	assert.Equal(t, seed, s.Records())
}

func TestOverwrite_ReplacesRegardlessOfPriorContents(t *testing.T) {
	priors := [][]record.Record{
		nil,
		makeRecords("x"),
		makeRecords("x", "y", "z", "w"),
	}
	incoming := makeRecords("c", "a", "b")

	for i, prior := range priors {
		t.Run(fmt.Sprintf("prior_%d", i), func(t *testing.T) {
			s := New()
			s.Overwrite(prior)

			s.Overwrite(incoming)

			assert.Equal(t, incoming, s.Records())
		})
	}
}

func TestOverwrite_CopiesInput(t *testing.T) {
	incoming := makeRecords("a")
	s := New()
	s.Overwrite(incoming)

	incoming[0].Text = "mutated by caller"
	assert.Equal(t, "a", s.Records()[0].Text)
}

func TestAppend_AddsExactlyOneAtEnd(t *testing.T) {
	s := New()
	s.Overwrite(makeRecords("a", "b"))
	before := s.Records()

	r := record.New("c", at)
	s.Append(r)

	after := s.Records()
	require.Len(t, after, len(before)+1)
	assert.Equal(t, append(before, r), after)
}

func TestPopLast_Empty(t *testing.T) {
	// The guard acts only when the list is non-empty; popping an empty store
	// reports absence instead of removing anything.
	s := New()

	got, ok := s.PopLast()

	assert.False(t, ok)
	assert.Equal(t, record.Record{}, got)
	assert.Equal(t, 0, s.Len())
}

func TestPopLast_RemovesLast(t *testing.T) {
	recs := makeRecords("a", "b", "c")
	s := New()
	s.Overwrite(recs)

	got, ok := s.PopLast()
	require.True(t, ok)
	assert.Equal(t, recs[2], got)
	assert.Equal(t, recs[:2], s.Records())

	s.PopLast()
	s.PopLast()
	_, ok = s.PopLast()
	assert.False(t, ok)
}

func TestEdit_ReplacesTextInPlace(t *testing.T) {
	recs := makeRecords("a", "b", "c")
	s := New()
	s.Overwrite(recs)

	s.Edit(1, "bee")

	got := s.Records()
	assert.Equal(t, "bee", got[1].Text)
	assert.Equal(t, recs[1].ID, got[1].ID)
	assert.Equal(t, recs[1].CreatedAt, got[1].CreatedAt)
	assert.Equal(t, recs[0], got[0])
	assert.Equal(t, recs[2], got[2])
}

func TestEdit_OutOfRangePanics(t *testing.T) {
	s := New()
	s.Overwrite(makeRecords("a"))

	assert.Panics(t, func() { s.Edit(1, "x") })
	assert.Panics(t, func() { s.Edit(-1, "x") })
	assert.Panics(t, func() { New().Edit(0, "x") })
}

func TestRecords_SnapshotIsImmutable(t *testing.T) {
	s := New()
	s.Overwrite(makeRecords("a", "b"))
	snap := s.Records()

	s.Edit(0, "changed")
	s.Append(record.New("c", at))

	assert.Equal(t, "a", snap[0].Text)
	assert.Len(t, snap, 2)
}

func TestAt(t *testing.T) {
	recs := makeRecords("a")
	s := New()
	s.Overwrite(recs)

	got, ok := s.At(0)
	assert.True(t, ok)
	assert.Equal(t, recs[0], got)

	_, ok = s.At(1)
	assert.False(t, ok)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Append(record.New("x", at))
		}()
		go func() {
			defer wg.Done()
			_ = s.Records()
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, s.Len())
}
