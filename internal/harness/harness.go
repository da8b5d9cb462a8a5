package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/pairsync/internal/coordinator"
	"github.com/roach88/pairsync/internal/record"
	"github.com/roach88/pairsync/internal/store"
	"github.com/roach88/pairsync/internal/testutil"
	"github.com/roach88/pairsync/internal/transport"
)

// settleRounds covers the longest chain a single step can start: the
// sender's loop hands a payload to the peer's dispatcher, the peer's loop
// applies it, the reply lands on the sender's dispatcher, and the sender's
// loop records the outcome.
const settleRounds = 4

// DefaultTimeout bounds a whole scenario run.
const DefaultTimeout = 10 * time.Second

// BaseTime is the first timestamp handed out by each device's clock.
var BaseTime = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// Option configures Run.
type Option func(*runner)

// WithLogger routes coordinator logs to l. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(r *runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

type device struct {
	name    string
	store   *store.Store
	session *transport.MemSession
	coord   *coordinator.Coordinator
	factory record.Factory
	events  <-chan coordinator.Notification
}

type runner struct {
	logger  *slog.Logger
	timeout time.Duration

	link    *transport.MemLink
	devices []*device
	byName  map[string]*device

	mu      sync.Mutex
	replies []TraceEvent // deliver replies not yet collected
}

// Run executes s and evaluates its assertions. The error is non-nil only
// when the flow itself could not be executed; failed assertions are reported
// in Result.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	r := &runner{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: DefaultTimeout,
		byName:  make(map[string]*device),
	}
	for _, opt := range opts {
		opt(r)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	mode, err := coordinator.ParseSendMode(s.SendMode)
	if err != nil {
		return nil, err
	}

	link, a, b := transport.NewMemPair(s.Devices[0].Name, s.Devices[1].Name)
	r.link = link
	for i, sess := range []*transport.MemSession{a, b} {
		r.addDevice(i, s.Devices[i], sess, mode)
	}

	loopCtx, stopLoops := context.WithCancel(ctx)
	for _, d := range r.devices {
		go func() { _ = d.coord.Run(loopCtx) }()
	}
	defer func() {
		stopLoops()
		for _, d := range r.devices {
			<-d.coord.Done()
			_ = d.session.Close()
		}
	}()

	result := NewResult()
	for i, step := range s.Flow {
		if err := r.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("flow step %d (%s): %w", i, step.Action, err)
		}
		if err := r.settle(ctx); err != nil {
			return nil, fmt.Errorf("flow step %d (%s): %w", i, step.Action, err)
		}
		r.collect(i, result)
		r.logger.Debug("step completed", "step", i, "device", step.Device, "action", step.Action)
	}

	for _, d := range r.devices {
		records := d.store.Records()
		st := DeviceState{Status: d.coord.Status(), Texts: make([]string, len(records))}
		ids := make([]string, len(records))
		for i, rec := range records {
			st.Texts[i] = rec.Text
			ids[i] = rec.ID.String()
		}
		result.Final[d.name] = st
		result.ids[d.name] = ids
	}

	for _, msg := range EvaluateAssertions(result, s.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (r *runner) addDevice(index int, spec DeviceSpec, sess *transport.MemSession, mode coordinator.SendMode) {
	clock := testutil.NewStepClock(BaseTime, time.Second)
	factory := record.Factory{IDs: newSequentialIDs(index + 1), Now: clock.Now}
	seed := spec.Seed
	st := store.New(store.WithSeed(func() []record.Record {
		return record.Seed(factory, seed)
	}))
	coord := coordinator.New(st, sess,
		coordinator.WithName(spec.Name),
		coordinator.WithLogger(r.logger),
		coordinator.WithSendMode(mode),
		coordinator.WithSequencer(testutil.NewDeterministicClock()),
		coordinator.WithNow(testutil.NewStepClock(BaseTime, 0).Now),
	)
	events, _ := coord.Subscribe(256)

	d := &device{name: spec.Name, store: st, session: sess, coord: coord, factory: factory, events: events}
	r.devices = append(r.devices, d)
	r.byName[spec.Name] = d
}

func (r *runner) execute(ctx context.Context, step Step) error {
	switch step.Action {
	case ActionLinkDown:
		r.link.SetReachable(false)
		return nil
	case ActionLinkUp:
		r.link.SetReachable(true)
		return nil
	}

	d := r.byName[step.Device]
	switch step.Action {
	case ActionActivate:
		// A session error surfaces as an activation failure in the trace.
		if err := d.coord.Activate(); errors.Is(err, coordinator.ErrStopped) {
			return err
		}
	case ActionDeactivate:
		d.session.Deactivate()
	case ActionInactive:
		d.session.BecomeInactive()
	case ActionClose:
		return d.session.Close()
	case ActionFetch:
		d.store.Fetch()
	case ActionAdd:
		d.store.Append(d.factory.NewNow(step.Text))
	case ActionEdit:
		if *step.Index >= d.store.Len() {
			return fmt.Errorf("edit index %d out of range [0,%d)", *step.Index, d.store.Len())
		}
		d.store.Edit(*step.Index, step.Text)
	case ActionPop:
		d.store.PopLast()
	case ActionSend:
		return d.coord.Send()
	case ActionDeliver:
		r.deliver(ctx, d, []byte(step.Payload))
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return nil
}

// deliver sends payload straight through d's session, bypassing d's loop,
// and records the peer's answer.
func (r *runner) deliver(ctx context.Context, d *device, payload []byte) {
	d.session.SendWithReply(ctx, payload, func(reply []byte, err error) {
		ev := TraceEvent{Device: d.name, Kind: KindReply, State: d.coord.Status().State}
		switch {
		case err != nil:
			ev.Error = err.Error()
		default:
			if ack, ok := record.DecodeAck(reply); ok {
				n := ack.Received
				ev.Acked = &n
			}
		}
		r.mu.Lock()
		r.replies = append(r.replies, ev)
		r.mu.Unlock()
	})
}

// settle waits until everything the last step set in motion has been
// processed by both dispatchers and both loops.
func (r *runner) settle(ctx context.Context) error {
	for range settleRounds {
		flushed := make(chan struct{})
		go func() {
			r.link.Flush()
			close(flushed)
		}()
		select {
		case <-flushed:
		case <-ctx.Done():
			return fmt.Errorf("settle: %w", ctx.Err())
		}

		for _, d := range r.devices {
			if err := d.coord.Flush(ctx); err != nil && !errors.Is(err, coordinator.ErrStopped) {
				return fmt.Errorf("settle %s: %w", d.name, err)
			}
		}
	}
	return nil
}

// collect appends the notifications published during step, device by
// device, followed by any deliver replies.
func (r *runner) collect(step int, result *Result) {
	for _, d := range r.devices {
		for {
			var n coordinator.Notification
			select {
			case n = <-d.events:
			default:
			}
			if n.Kind == 0 {
				break
			}
			ev := TraceEvent{
				Step:   step,
				Device: d.name,
				Kind:   n.Kind.String(),
				Seq:    n.Seq,
				State:  n.Status.State,
				Cause:  n.Status.Cause,
			}
			if n.Kind == coordinator.StoreReplaced {
				ev.Texts = texts(n.Records)
			}
			if n.Err != nil && n.Kind != coordinator.StateChanged {
				ev.Error = n.Err.Error()
			}
			result.Trace = append(result.Trace, ev)
		}
	}

	r.mu.Lock()
	for _, ev := range r.replies {
		ev.Step = step
		result.Trace = append(result.Trace, ev)
	}
	r.replies = nil
	r.mu.Unlock()
}

func texts(records []record.Record) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = rec.Text
	}
	return out
}

// sequentialIDs hands out readable, per-device UUIDs so traces are stable.
type sequentialIDs struct {
	mu     sync.Mutex
	device int
	n      int
}

func newSequentialIDs(device int) *sequentialIDs {
	return &sequentialIDs{device: device}
}

func (g *sequentialIDs) Generate() record.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return uuid.MustParse(fmt.Sprintf("00000000-0000-7000-8%03d-%012d", g.device, g.n))
}
