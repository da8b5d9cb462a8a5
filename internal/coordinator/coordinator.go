package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/pairsync/internal/linkstate"
	"github.com/roach88/pairsync/internal/record"
	"github.com/roach88/pairsync/internal/store"
	"github.com/roach88/pairsync/internal/transport"
)

// Coordinator bridges one device's Store and its transport Session and drives
// the device's connection state machine.
//
// Coordinator implements transport.Delegate. Its callbacks only enqueue; all
// state changes happen on the goroutine running Run.
type Coordinator struct {
	name       string
	store      *store.Store
	session    transport.Session
	codec      record.Codec
	mode       SendMode
	reactivate bool
	logger     *slog.Logger
	clock      linkstate.Sequencer
	now        func() time.Time
	machine    *linkstate.Machine

	queue   *eventQueue
	running atomic.Bool
	done    chan struct{}

	// Owned by the Run goroutine.
	inFlight bool
	attempt  int64

	subMu   sync.Mutex
	subs    []subscriber
	nextSub int
}

var _ transport.Delegate = (*Coordinator)(nil)

// New creates a coordinator for st and sess and registers it as the
// session's delegate, replacing any previous delegate. Run must be started
// for events to be processed.
func New(st *store.Store, sess transport.Session, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   st,
		session: sess,
		codec:   record.JSONCodec{},
		mode:    SendModeReply,
		logger:  slog.Default(),
		clock:   NewClock(),
		now:     time.Now,
		queue:   newEventQueue(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.machine = linkstate.New(c.clock)
	sess.SetDelegate(c)
	return c
}

// Name returns the device name given by WithName.
func (c *Coordinator) Name() string { return c.name }

// Store returns the coordinated store.
func (c *Coordinator) Store() *store.Store { return c.store }

// Status returns the current connection status. Safe from any goroutine.
func (c *Coordinator) Status() linkstate.Status { return c.machine.Status() }

// History returns every state transition so far.
func (c *Coordinator) History() []linkstate.Transition { return c.machine.History() }

// Done is closed when Run returns.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Run processes events until ctx is cancelled or Stop is called.
//
// Payloads expecting a reply that are still queued when Run returns are
// answered with an empty reply.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("coordinator already running")
	}
	defer close(c.done)
	defer c.shutdown()

	c.logger.Debug("coordinator starting", "device", c.name)

	for {
		ev, ok := c.queue.TryDequeue()
		if ok {
			c.process(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			c.logger.Debug("coordinator stopping: context cancelled", "device", c.name)
			return ctx.Err()

		case <-c.queue.Wait():
			// The signal channel is closed by Stop; an empty queue then
			// means there is nothing left to do.
			if c.queue.Len() == 0 && c.stopped() {
				c.logger.Debug("coordinator stopping: queue closed", "device", c.name)
				return nil
			}
		}
	}
}

func (c *Coordinator) stopped() bool {
	return c.queue.Closed()
}

func (c *Coordinator) shutdown() {
	c.queue.Close()
	for _, ev := range c.queue.Drain() {
		if ev.Type == eventMessage && ev.ReplyTo != nil {
			ev.ReplyTo <- nil
		}
	}
}

// Stop makes Run return once the events already queued are processed.
func (c *Coordinator) Stop() {
	c.queue.Close()
}

// Send requests a transfer of the full Store to the peer. It never blocks
// and never reports sync failures: those surface as state changes and
// notifications. It returns ErrStopped once the loop is gone.
func (c *Coordinator) Send() error {
	if !c.queue.Enqueue(event{Type: eventSend}) {
		return ErrStopped
	}
	return nil
}

// Flush waits until every event queued before the call has been processed.
func (c *Coordinator) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	if !c.queue.Enqueue(event{Type: eventFlush, Flushed: flushed}) {
		return ErrStopped
	}
	select {
	case <-flushed:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Activate starts the session lifecycle. The outcome arrives through
// ActivationDidComplete.
func (c *Coordinator) Activate() error {
	if err := c.session.Activate(); err != nil {
		if !c.queue.Enqueue(event{Type: eventActivation, Err: err}) {
			return ErrStopped
		}
		return fmt.Errorf("activate session: %w", err)
	}
	return nil
}

// ActivationDidComplete implements transport.Delegate.
func (c *Coordinator) ActivationDidComplete(state transport.ActivationState, err error) {
	c.queue.Enqueue(event{Type: eventActivation, Activation: state, Err: err})
}

// ReachabilityDidChange implements transport.Delegate.
func (c *Coordinator) ReachabilityDidChange(reachable bool) {
	c.queue.Enqueue(event{Type: eventReachability, Reachable: reachable})
}

// DidReceiveMessage implements transport.Delegate.
func (c *Coordinator) DidReceiveMessage(payload []byte) {
	c.queue.Enqueue(event{Type: eventMessage, Payload: payload})
}

// DidReceiveMessageExpectingReply implements transport.Delegate. It waits
// until the loop has applied the payload and returns an ack, or an empty
// reply when the payload was rejected or the loop has stopped.
//
// Before Run starts the payload is queued and the caller gets an empty reply
// at once.
func (c *Coordinator) DidReceiveMessageExpectingReply(payload []byte) []byte {
	reply := make(chan []byte, 1)
	if !c.queue.Enqueue(event{Type: eventMessage, Payload: payload, ReplyTo: reply}) {
		return nil
	}
	if !c.running.Load() {
		return nil
	}
	select {
	case b := <-reply:
		return b
	case <-c.done:
		select {
		case b := <-reply:
			return b
		default:
			return nil
		}
	}
}

// DidBecomeInactive implements transport.Delegate.
func (c *Coordinator) DidBecomeInactive() {
	c.queue.Enqueue(event{Type: eventInactive})
}

// DidDeactivate implements transport.Delegate.
func (c *Coordinator) DidDeactivate() {
	c.queue.Enqueue(event{Type: eventDeactivate})
}

// process routes one event. Called only from Run.
func (c *Coordinator) process(ctx context.Context, ev event) {
	switch ev.Type {
	case eventSend:
		c.handleSend(ctx)

	case eventSendDone:
		c.handleSendDone(ev)

	case eventActivation:
		switch {
		case ev.Err != nil:
			c.apply(linkstate.ActivationFailed,
				newSyncError(ErrCodeActivationFailure, "activation failed", ev.Err))
		case ev.Activation == transport.Activated:
			c.apply(linkstate.Activated, nil)
		default:
			c.apply(linkstate.Deactivated, nil)
		}

	case eventReachability:
		if ev.Reachable {
			c.apply(linkstate.Reachable, nil)
		} else {
			c.apply(linkstate.Unreachable,
				newSyncError(ErrCodeReachabilityLost, linkstate.CauseUnreachable, nil))
		}

	case eventMessage:
		c.handleReceive(ev)

	case eventInactive:
		c.apply(linkstate.Inactive, nil)

	case eventDeactivate:
		c.apply(linkstate.Deactivated, nil)
		if c.reactivate {
			c.logger.Debug("reactivating session", "device", c.name)
			if err := c.session.Activate(); err != nil {
				c.apply(linkstate.ActivationFailed,
					newSyncError(ErrCodeActivationFailure, "reactivation failed", err))
			}
		}

	case eventFlush:
		close(ev.Flushed)

	default:
		c.logger.Error("unknown event type", "device", c.name, "type", ev.Type)
	}
}

func (c *Coordinator) handleSend(ctx context.Context) {
	if !c.session.IsReachable() {
		c.logger.Info("send skipped: peer not reachable", "device", c.name)
		c.publish(Notification{Kind: SendSkipped})
		return
	}
	if c.inFlight {
		c.logger.Info("send rejected: transfer outstanding", "device", c.name, "attempt", c.attempt)
		c.publish(Notification{Kind: SendRejected})
		return
	}

	snapshot := c.store.Records()
	payload, err := c.codec.Encode(snapshot)
	c.apply(linkstate.SendIssued, nil)
	if err != nil {
		se := newSyncError(ErrCodeEncodeFailure, "encode snapshot", err)
		c.logger.Warn("send failed", "device", c.name, "cause", se.Cause())
		c.apply(linkstate.SendFailed, se)
		c.publish(Notification{Kind: SendFailed, Err: se})
		return
	}

	c.inFlight = true
	c.attempt++
	attempt := c.attempt
	c.logger.Debug("send issued", "device", c.name, "attempt", attempt,
		"records", len(snapshot), "bytes", len(payload), "mode", c.mode)

	switch c.mode {
	case SendModeOneWay:
		c.session.Send(ctx, payload, func(err error) {
			c.queue.Enqueue(event{Type: eventSendDone, Attempt: attempt, Err: err})
		})
	default:
		c.session.SendWithReply(ctx, payload, func(reply []byte, err error) {
			c.queue.Enqueue(event{Type: eventSendDone, Attempt: attempt, Reply: reply, Err: err})
		})
	}
}

func (c *Coordinator) handleSendDone(ev event) {
	if !c.inFlight || ev.Attempt != c.attempt {
		c.logger.Debug("stale send completion", "device", c.name, "attempt", ev.Attempt)
		return
	}
	c.inFlight = false

	if ev.Err != nil {
		se := newSyncError(ErrCodeTransportFailure, "send failed", ev.Err)
		c.logger.Warn("send failed", "device", c.name, "attempt", ev.Attempt, "cause", se.Cause())
		c.apply(linkstate.SendFailed, se)
		c.publish(Notification{Kind: SendFailed, Err: se})
		return
	}

	// Any reply acknowledges delivery; an Ack body only adds detail.
	if ack, ok := record.DecodeAck(ev.Reply); ok {
		c.logger.Info("send succeeded", "device", c.name, "attempt", ev.Attempt, "received", ack.Received)
	} else {
		c.logger.Info("send succeeded", "device", c.name, "attempt", ev.Attempt)
	}
	c.apply(linkstate.SendSucceeded, nil)
}

func (c *Coordinator) handleReceive(ev event) {
	records, err := c.codec.Decode(ev.Payload)
	if err != nil {
		se := newSyncError(ErrCodeDecodeFailure, "decode received payload", err)
		c.logger.Warn("receive failed", "device", c.name, "bytes", len(ev.Payload), "cause", se.Cause())
		c.apply(linkstate.ReceiveFailed, se)
		c.publish(Notification{Kind: ReceiveFailed, Err: se})
		c.reply(ev, nil)
		return
	}

	c.store.Overwrite(records)
	c.logger.Info("store replaced", "device", c.name, "records", len(records))
	c.apply(linkstate.ReceiveSucceeded, nil)
	c.publish(Notification{Kind: StoreReplaced, Records: record.Clone(records)})
	c.reply(ev, record.EncodeAck(len(records)))
}

func (c *Coordinator) reply(ev event, b []byte) {
	if ev.ReplyTo != nil {
		ev.ReplyTo <- b
	}
}

// apply feeds ev to the state machine and publishes StateChanged when the
// state or its cause changed.
func (c *Coordinator) apply(ev linkstate.Event, cause *SyncError) {
	prev := c.machine.Status()

	var reason string
	var err error
	if cause != nil {
		reason = cause.Cause()
		err = cause
	}

	tr, ok := c.machine.Apply(ev, reason)
	if !ok {
		c.logger.Debug("event ignored", "device", c.name, "event", ev, "state", prev.State)
		return
	}
	if tr.To.State == prev.State && tr.To.Cause == prev.Cause {
		return
	}
	c.logger.Debug("state changed", "device", c.name, "event", ev,
		"from", tr.From, "to", tr.To.State, "seq", tr.To.Seq)
	c.publish(Notification{Kind: StateChanged, Err: err})
}
