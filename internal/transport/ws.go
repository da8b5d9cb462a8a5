package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultReplyTimeout bounds how long SendWithReply waits for the peer.
const DefaultReplyTimeout = 10 * time.Second

// WSOptions configures a WSSession.
type WSOptions struct {
	ReplyTimeout time.Duration
	Logger       *slog.Logger
}

func (o WSOptions) withDefaults() WSOptions {
	if o.ReplyTimeout <= 0 {
		o.ReplyTimeout = DefaultReplyTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type pendingReply struct {
	done    ReplyHandler
	timer   *time.Timer
	stopCtx func() bool
}

// WSSession is a Session over one websocket connection.
//
// The connection is established before the session exists (DialWS or
// AcceptWS); Activate starts reading and reports the peer reachable. A read
// error ends the session: pending replies fail, the delegate sees the peer
// become unreachable and the session deactivate.
type WSSession struct {
	conn *websocket.Conn
	opts WSOptions
	disp *dispatcher

	writeMu sync.Mutex

	mu        sync.Mutex
	delegate  Delegate
	activated bool
	reachable bool
	closed    bool
	pending   map[uint64]*pendingReply

	nextID atomic.Uint64
}

// NewWSSession wraps an established connection.
func NewWSSession(conn *websocket.Conn, opts WSOptions) *WSSession {
	// Larger messages fail the read and tear the session down.
	conn.SetReadLimit(maxFrameSize)
	return &WSSession{
		conn:    conn,
		opts:    opts.withDefaults(),
		disp:    newDispatcher(),
		pending: make(map[uint64]*pendingReply),
	}
}

// DialWS connects to a responder at url (ws:// or wss://).
func DialWS(ctx context.Context, url string, opts WSOptions) (*WSSession, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWSSession(conn, opts), nil
}

// AcceptWS upgrades an inbound HTTP request to a session.
func AcceptWS(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, opts WSOptions) (*WSSession, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	return NewWSSession(conn, opts), nil
}

// SetDelegate implements Session.
func (s *WSSession) SetDelegate(d Delegate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegate = d
}

// notify schedules fn with the current delegate, if any.
func (s *WSSession) notify(fn func(d Delegate)) {
	s.mu.Lock()
	d := s.delegate
	s.mu.Unlock()
	if d == nil {
		return
	}
	s.disp.Do(func() { fn(d) })
}

// Activate implements Session. Calling it on an active session is a no-op.
func (s *WSSession) Activate() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.activated {
		s.mu.Unlock()
		return nil
	}
	s.activated = true
	s.reachable = true
	s.mu.Unlock()

	s.notify(func(d Delegate) { d.ActivationDidComplete(Activated, nil) })
	s.notify(func(d Delegate) { d.ReachabilityDidChange(true) })

	go s.readLoop()
	return nil
}

// IsReachable implements Session.
func (s *WSSession) IsReachable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reachable
}

// SendWithReply implements Session. The reply must arrive within
// WSOptions.ReplyTimeout.
func (s *WSSession) SendWithReply(ctx context.Context, payload []byte, done ReplyHandler) {
	if done == nil {
		done = func([]byte, error) {}
	}
	if !s.IsReachable() {
		s.complete(func() { done(nil, ErrNotReachable) })
		return
	}

	id := s.nextID.Add(1)
	p := &pendingReply{done: done}

	s.mu.Lock()
	s.pending[id] = p
	p.timer = time.AfterFunc(s.opts.ReplyTimeout, func() {
		s.resolve(id, nil, ErrReplyTimeout)
	})
	p.stopCtx = context.AfterFunc(ctx, func() {
		s.resolve(id, nil, ctx.Err())
	})
	s.mu.Unlock()

	if err := s.writeFrame(frame{kind: frameRequest, id: id, payload: payload}); err != nil {
		s.resolve(id, nil, err)
	}
}

// Send implements Session.
func (s *WSSession) Send(ctx context.Context, payload []byte, done CompletionHandler) {
	if done == nil {
		done = func(error) {}
	}
	if !s.IsReachable() {
		s.complete(func() { done(ErrNotReachable) })
		return
	}
	if err := ctx.Err(); err != nil {
		s.complete(func() { done(err) })
		return
	}
	err := s.writeFrame(frame{kind: frameMessage, id: s.nextID.Add(1), payload: payload})
	s.complete(func() { done(err) })
}

// Close implements Session.
func (s *WSSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	reading := s.activated
	s.mu.Unlock()

	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	err := s.conn.Close()

	if !reading {
		// No read loop will observe the close.
		s.failPending(ErrClosed)
		s.disp.Close()
	}
	return err
}

func (s *WSSession) writeFrame(f frame) error {
	b, err := encodeFrame(f)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (s *WSSession) readLoop() {
	defer s.disp.Close()
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			s.teardown(err)
			return
		}
		if mt != websocket.BinaryMessage {
			s.opts.Logger.Warn("ws ignoring non-binary message", "type", mt)
			continue
		}
		f, err := decodeFrame(data)
		if err != nil {
			s.opts.Logger.Warn("ws frame decode failed", "err", err)
			continue
		}
		s.handleFrame(f)
	}
}

func (s *WSSession) handleFrame(f frame) {
	switch f.kind {
	case frameMessage:
		s.notify(func(d Delegate) { d.DidReceiveMessage(f.payload) })
	case frameRequest:
		s.mu.Lock()
		d := s.delegate
		s.mu.Unlock()
		s.disp.Do(func() {
			var reply []byte
			if d != nil {
				reply = d.DidReceiveMessageExpectingReply(f.payload)
			}
			if err := s.writeFrame(frame{kind: frameReply, id: f.id, payload: reply}); err != nil {
				s.opts.Logger.Warn("ws reply write failed", "id", f.id, "err", err)
			}
		})
	case frameReply:
		s.resolve(f.id, f.payload, nil)
	}
}

// teardown ends the session after the connection failed or was closed.
func (s *WSSession) teardown(cause error) {
	s.mu.Lock()
	wasReachable := s.reachable
	localClose := s.closed
	s.reachable = false
	s.activated = false
	s.mu.Unlock()

	if !localClose {
		s.opts.Logger.Info("ws connection ended", "err", cause)
	}
	s.failPending(fmt.Errorf("%w: %v", ErrClosed, cause))

	if wasReachable {
		s.notify(func(d Delegate) { d.ReachabilityDidChange(false) })
	}
	s.notify(func(d Delegate) { d.DidDeactivate() })
}

func (s *WSSession) failPending(err error) {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.resolve(id, nil, err)
	}
}

// resolve completes a pending request exactly once.
func (s *WSSession) resolve(id uint64, reply []byte, err error) {
	s.mu.Lock()
	p, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	if p.timer != nil {
		p.timer.Stop()
	}
	if p.stopCtx != nil {
		p.stopCtx()
	}
	s.complete(func() { p.done(reply, err) })
}

func (s *WSSession) complete(fn func()) {
	if !s.disp.Do(fn) {
		fn()
	}
}
