package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/pairsync/internal/transport"
)

// FakeSession is a scriptable transport.Session.
//
// Sends are recorded and completed synchronously with the configured reply
// and error, unless HoldReplies is set, in which case they wait for Release.
// Lifecycle events are injected with the Emit methods; they call the delegate
// on the caller's goroutine, which keeps delivery serial as long as one test
// goroutine drives the fake.
type FakeSession struct {
	mu            sync.Mutex
	delegate      transport.Delegate
	reachable     bool
	activateErr   error
	sendErr       error
	reply         []byte
	hold          bool
	held          []heldSend
	sent          [][]byte
	activateCalls int
	delegateCalls int
	closed        bool
}

type heldSend struct {
	reply transport.ReplyHandler
	done  transport.CompletionHandler
}

var _ transport.Session = (*FakeSession)(nil)

// NewFakeSession returns a reachable session that acks every send with an
// empty reply.
func NewFakeSession() *FakeSession {
	return &FakeSession{reachable: true}
}

// SetDelegate implements transport.Session.
func (f *FakeSession) SetDelegate(d transport.Delegate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delegate = d
	f.delegateCalls++
}

// Delegate returns the registered delegate.
func (f *FakeSession) Delegate() transport.Delegate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delegate
}

// Activate implements transport.Session. It reports Activated to the
// delegate unless FailActivation was set.
func (f *FakeSession) Activate() error {
	f.mu.Lock()
	f.activateCalls++
	err := f.activateErr
	d := f.delegate
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if d != nil {
		d.ActivationDidComplete(transport.Activated, nil)
	}
	return nil
}

// IsReachable implements transport.Session.
func (f *FakeSession) IsReachable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reachable
}

// SendWithReply implements transport.Session.
func (f *FakeSession) SendWithReply(ctx context.Context, payload []byte, done transport.ReplyHandler) {
	f.mu.Lock()
	f.sent = append(f.sent, slices.Clone(payload))
	if f.hold {
		f.held = append(f.held, heldSend{reply: done})
		f.mu.Unlock()
		return
	}
	reply, err := f.reply, f.sendErr
	f.mu.Unlock()

	if done != nil {
		done(reply, err)
	}
}

// Send implements transport.Session.
func (f *FakeSession) Send(ctx context.Context, payload []byte, done transport.CompletionHandler) {
	f.mu.Lock()
	f.sent = append(f.sent, slices.Clone(payload))
	if f.hold {
		f.held = append(f.held, heldSend{done: done})
		f.mu.Unlock()
		return
	}
	err := f.sendErr
	f.mu.Unlock()

	if done != nil {
		done(err)
	}
}

// Close implements transport.Session.
func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeSession) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// SetReachable changes IsReachable without notifying the delegate.
func (f *FakeSession) SetReachable(up bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reachable = up
}

// SetReply sets the reply and error used to complete sends.
func (f *FakeSession) SetReply(reply []byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = reply
	f.sendErr = err
}

// FailActivation makes Activate return err.
func (f *FakeSession) FailActivation(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activateErr = err
}

// HoldReplies makes later sends wait for Release.
func (f *FakeSession) HoldReplies(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = on
}

// Release completes every held send with reply and err. It returns how many
// were completed.
func (f *FakeSession) Release(reply []byte, err error) int {
	f.mu.Lock()
	held := f.held
	f.held = nil
	f.mu.Unlock()

	for _, h := range held {
		switch {
		case h.reply != nil:
			h.reply(reply, err)
		case h.done != nil:
			h.done(err)
		}
	}
	return len(held)
}

// Held returns the number of sends waiting for Release.
func (f *FakeSession) Held() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.held)
}

// Sent returns copies of every payload handed to the session.
func (f *FakeSession) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent)
}

// ActivateCalls returns how often Activate was called.
func (f *FakeSession) ActivateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activateCalls
}

// DelegateCalls returns how often SetDelegate was called.
func (f *FakeSession) DelegateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delegateCalls
}

// EmitActivation reports an activation outcome to the delegate.
func (f *FakeSession) EmitActivation(state transport.ActivationState, err error) {
	if d := f.Delegate(); d != nil {
		d.ActivationDidComplete(state, err)
	}
}

// EmitReachability sets reachability and reports it to the delegate.
func (f *FakeSession) EmitReachability(up bool) {
	f.SetReachable(up)
	if d := f.Delegate(); d != nil {
		d.ReachabilityDidChange(up)
	}
}

// EmitInactive reports that the session became inactive.
func (f *FakeSession) EmitInactive() {
	if d := f.Delegate(); d != nil {
		d.DidBecomeInactive()
	}
}

// EmitDeactivate reports that the session deactivated.
func (f *FakeSession) EmitDeactivate() {
	if d := f.Delegate(); d != nil {
		d.DidDeactivate()
	}
}

// Deliver hands payload to the delegate as a message expecting a reply and
// returns the reply.
func (f *FakeSession) Deliver(payload []byte) []byte {
	if d := f.Delegate(); d != nil {
		return d.DidReceiveMessageExpectingReply(payload)
	}
	return nil
}

// DeliverOneWay hands payload to the delegate as a one-way message.
func (f *FakeSession) DeliverOneWay(payload []byte) {
	if d := f.Delegate(); d != nil {
		d.DidReceiveMessage(payload)
	}
}
