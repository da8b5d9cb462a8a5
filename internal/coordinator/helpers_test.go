package coordinator

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/pairsync/internal/linkstate"
	"github.com/roach88/pairsync/internal/record"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var baseTime = time.Date(2023, 11, 18, 9, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a bytes.Buffer safe for the loop to write while a test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// threeRecords returns a deterministic three-record list.
func threeRecords() []record.Record {
	f := record.Factory{IDs: record.NewFixedIDs(
		"0190a6f2-0000-7000-8000-000000000001",
		"0190a6f2-0000-7000-8000-000000000002",
		"0190a6f2-0000-7000-8000-000000000003",
	)}
	return []record.Record{
		f.New("first", baseTime),
		f.New("second", baseTime.Add(time.Second)),
		f.New("third", baseTime.Add(2*time.Second)),
	}
}

// start runs c until the test ends.
func start(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})
}

func waitState(t *testing.T, c *Coordinator, want linkstate.State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Status().State == want },
		waitFor, tick, "%s never reached %s (at %s)", c.Name(), want, c.Status().State)
}

// waitKind reads notifications until one of kind k arrives.
func waitKind(t *testing.T, ch <-chan Notification, k Kind) Notification {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case n, ok := <-ch:
			require.True(t, ok, "notification channel closed")
			if n.Kind == k {
				return n
			}
		case <-deadline:
			t.Fatalf("no %s notification", k)
		}
	}
}
