package transport

import (
	"fmt"
	"sync"
)

// recorder is a Delegate that logs every callback and echoes requests.
type recorder struct {
	mu       sync.Mutex
	events   []string
	received [][]byte
	reply    func(payload []byte) []byte
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Received() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.received...)
}

func (r *recorder) ActivationDidComplete(state ActivationState, err error) {
	r.add("activation:%s:%v", state, err)
}

func (r *recorder) ReachabilityDidChange(reachable bool) {
	r.add("reachable:%t", reachable)
}

func (r *recorder) DidReceiveMessage(payload []byte) {
	r.mu.Lock()
	r.received = append(r.received, payload)
	r.mu.Unlock()
	r.add("message:%s", payload)
}

func (r *recorder) DidReceiveMessageExpectingReply(payload []byte) []byte {
	r.mu.Lock()
	r.received = append(r.received, payload)
	reply := r.reply
	r.mu.Unlock()
	r.add("request:%s", payload)
	if reply != nil {
		return reply(payload)
	}
	return []byte("ack")
}

func (r *recorder) DidBecomeInactive() { r.add("inactive") }

func (r *recorder) DidDeactivate() { r.add("deactivated") }
