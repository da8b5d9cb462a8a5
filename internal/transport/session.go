package transport

import (
	"context"
	"errors"
)

var (
	// ErrNotReachable is returned when a payload is sent while the peer is
	// not reachable.
	ErrNotReachable = errors.New("peer not reachable")

	// ErrNotActivated is returned when a session is used before Activate.
	ErrNotActivated = errors.New("session not activated")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")

	// ErrReplyTimeout is returned when a reply does not arrive in time.
	ErrReplyTimeout = errors.New("reply timed out")

	// ErrFrameTooLarge is returned for payloads above the frame limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// ActivationState is the lifecycle state reported when activation completes.
type ActivationState int

const (
	NotActivated ActivationState = iota
	Inactive
	Activated
)

func (s ActivationState) String() string {
	switch s {
	case NotActivated:
		return "not_activated"
	case Inactive:
		return "inactive"
	case Activated:
		return "activated"
	default:
		return "unknown"
	}
}

// Delegate receives session events. Callbacks are delivered serially.
type Delegate interface {
	// ActivationDidComplete reports the outcome of Activate.
	ActivationDidComplete(state ActivationState, err error)

	// ReachabilityDidChange reports a change of IsReachable.
	ReachabilityDidChange(reachable bool)

	// DidReceiveMessage delivers a payload sent without a reply handler.
	DidReceiveMessage(payload []byte)

	// DidReceiveMessageExpectingReply delivers a payload whose sender waits
	// for a reply; the returned bytes are sent back. Returning nil sends an
	// empty reply. Implementations must always return.
	DidReceiveMessageExpectingReply(payload []byte) []byte

	// DidBecomeInactive reports that the session stopped accepting new
	// payloads.
	DidBecomeInactive()

	// DidDeactivate reports that the session is gone; Activate may be called
	// again.
	DidDeactivate()
}

// ReplyHandler receives the reply (or failure) of SendWithReply.
type ReplyHandler func(reply []byte, err error)

// CompletionHandler receives the outcome of Send.
type CompletionHandler func(err error)

// Session is a link to one peer.
//
// Sends are asynchronous: they return immediately and the handler is called
// later from the session's dispatcher goroutine. Timeouts are the session's
// responsibility.
type Session interface {
	// SetDelegate registers d as the only receiver of events, replacing any
	// previous delegate.
	SetDelegate(d Delegate)

	// Activate starts the session lifecycle; completion is reported through
	// Delegate.ActivationDidComplete.
	Activate() error

	// IsReachable reports whether the peer can receive payloads now.
	IsReachable() bool

	// SendWithReply sends payload and calls done with the peer's reply.
	SendWithReply(ctx context.Context, payload []byte, done ReplyHandler)

	// Send sends payload one-way and calls done (if non-nil) once the
	// transport has delivered or failed it.
	Send(ctx context.Context, payload []byte, done CompletionHandler)

	// Close releases the session.
	Close() error
}
