package transport

import (
	"context"
	"slices"
	"sync"
)

// MemLink connects two in-memory sessions.
//
// A session is reachable when the link is up, both sides are activated and
// neither is closed. The link starts up.
type MemLink struct {
	mu sync.Mutex
	up bool
	a  *MemSession
	b  *MemSession
}

// MemSession is one end of a MemLink.
type MemSession struct {
	name string
	link *MemLink
	disp *dispatcher

	// guarded by link.mu
	delegate  Delegate
	activated bool
	closed    bool
	reachable bool // last value reported to the delegate
}

// NewMemPair returns a link and its two ends.
func NewMemPair(nameA, nameB string) (*MemLink, *MemSession, *MemSession) {
	l := &MemLink{up: true}
	l.a = &MemSession{name: nameA, link: l, disp: newDispatcher()}
	l.b = &MemSession{name: nameB, link: l, disp: newDispatcher()}
	return l, l.a, l.b
}

// SetReachable raises or drops the link, notifying both delegates of any
// reachability change.
func (l *MemLink) SetReachable(up bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.up = up
	l.refreshLocked()
}

// Flush waits until both ends have delivered every callback scheduled before
// the call.
func (l *MemLink) Flush() {
	l.a.disp.Flush()
	l.b.disp.Flush()
}

// Up reports whether the link itself is up.
func (l *MemLink) Up() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.up
}

func (l *MemLink) peerOf(s *MemSession) *MemSession {
	if s == l.a {
		return l.b
	}
	return l.a
}

func (l *MemLink) reachableLocked(s *MemSession) bool {
	p := l.peerOf(s)
	return l.up && s.activated && !s.closed && p.activated && !p.closed
}

// refreshLocked recomputes reachability of both ends and reports changes.
func (l *MemLink) refreshLocked() {
	for _, s := range []*MemSession{l.a, l.b} {
		now := l.reachableLocked(s)
		if now == s.reachable {
			continue
		}
		s.reachable = now
		d := s.delegate
		if d == nil {
			continue
		}
		s.disp.Do(func() { d.ReachabilityDidChange(now) })
	}
}

// Name returns the name given to NewMemPair.
func (s *MemSession) Name() string { return s.name }

// SetDelegate implements Session.
func (s *MemSession) SetDelegate(d Delegate) {
	s.link.mu.Lock()
	defer s.link.mu.Unlock()
	s.delegate = d
}

func (s *MemSession) currentDelegate() Delegate {
	s.link.mu.Lock()
	defer s.link.mu.Unlock()
	return s.delegate
}

// Activate implements Session.
func (s *MemSession) Activate() error {
	s.link.mu.Lock()
	defer s.link.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.activated = true
	if d := s.delegate; d != nil {
		s.disp.Do(func() { d.ActivationDidComplete(Activated, nil) })
	}
	s.link.refreshLocked()
	return nil
}

// BecomeInactive simulates the platform pausing the session: the delegate is
// told, and the session stops being reachable until it is activated again.
func (s *MemSession) BecomeInactive() {
	s.link.mu.Lock()
	defer s.link.mu.Unlock()

	if !s.activated {
		return
	}
	s.activated = false
	if d := s.delegate; d != nil {
		s.disp.Do(d.DidBecomeInactive)
	}
	s.link.refreshLocked()
}

// Deactivate simulates the platform tearing the session down.
func (s *MemSession) Deactivate() {
	s.link.mu.Lock()
	defer s.link.mu.Unlock()

	s.activated = false
	if d := s.delegate; d != nil {
		s.disp.Do(d.DidDeactivate)
	}
	s.link.refreshLocked()
}

// IsReachable implements Session.
func (s *MemSession) IsReachable() bool {
	s.link.mu.Lock()
	defer s.link.mu.Unlock()
	return s.link.reachableLocked(s)
}

// SendWithReply implements Session. The peer's reply is handed to done on
// this session's dispatcher.
func (s *MemSession) SendWithReply(ctx context.Context, payload []byte, done ReplyHandler) {
	if done == nil {
		done = func([]byte, error) {}
	}
	if !s.IsReachable() {
		s.complete(func() { done(nil, ErrNotReachable) })
		return
	}

	p := slices.Clone(payload)
	peer := s.link.peerOf(s)
	ok := peer.disp.Do(func() {
		if err := ctx.Err(); err != nil {
			s.complete(func() { done(nil, err) })
			return
		}
		var reply []byte
		if d := peer.currentDelegate(); d != nil {
			reply = slices.Clone(d.DidReceiveMessageExpectingReply(p))
		}
		s.complete(func() { done(reply, nil) })
	})
	if !ok {
		s.complete(func() { done(nil, ErrClosed) })
	}
}

// Send implements Session.
func (s *MemSession) Send(ctx context.Context, payload []byte, done CompletionHandler) {
	if done == nil {
		done = func(error) {}
	}
	if !s.IsReachable() {
		s.complete(func() { done(ErrNotReachable) })
		return
	}

	p := slices.Clone(payload)
	peer := s.link.peerOf(s)
	ok := peer.disp.Do(func() {
		if err := ctx.Err(); err != nil {
			s.complete(func() { done(err) })
			return
		}
		if d := peer.currentDelegate(); d != nil {
			d.DidReceiveMessage(p)
		}
		s.complete(func() { done(nil) })
	})
	if !ok {
		s.complete(func() { done(ErrClosed) })
	}
}

// complete runs fn on this session's dispatcher, or inline if it is closed,
// so a handler is never lost.
func (s *MemSession) complete(fn func()) {
	if !s.disp.Do(fn) {
		fn()
	}
}

// Close implements Session. The peer observes a reachability loss.
func (s *MemSession) Close() error {
	s.link.mu.Lock()
	if s.closed {
		s.link.mu.Unlock()
		return nil
	}
	s.closed = true
	s.link.refreshLocked()
	s.link.mu.Unlock()

	s.disp.Close()
	return nil
}
