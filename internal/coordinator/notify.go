package coordinator

import (
	"time"

	"github.com/roach88/pairsync/internal/linkstate"
	"github.com/roach88/pairsync/internal/record"
)

// Kind identifies what a Notification reports.
type Kind int

const (
	// StateChanged: the connection state or its cause changed.
	StateChanged Kind = iota + 1
	// StoreReplaced: a received snapshot overwrote the Store.
	StoreReplaced
	// SendSkipped: Send was called while the peer was not reachable.
	SendSkipped
	// SendRejected: Send was called while a transfer was outstanding.
	SendRejected
	// SendFailed: a transfer failed. Err carries the cause for display.
	SendFailed
	// ReceiveFailed: an inbound payload could not be decoded.
	ReceiveFailed
)

var kindNames = map[Kind]string{
	StateChanged:  "state_changed",
	StoreReplaced: "store_replaced",
	SendSkipped:   "send_skipped",
	SendRejected:  "send_rejected",
	SendFailed:    "send_failed",
	ReceiveFailed: "receive_failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalText renders the kind name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Notification is published by the event loop for observers such as a UI.
type Notification struct {
	Seq     int64            `json:"seq"`
	Time    time.Time        `json:"time"`
	Kind    Kind             `json:"kind"`
	Status  linkstate.Status `json:"status"`
	Records []record.Record  `json:"records,omitempty"` // StoreReplaced only
	Err     error            `json:"-"`
}

type subscriber struct {
	id int
	ch chan Notification
}

// Subscribe registers an observer. The returned cancel function unregisters
// it and closes the channel. When the buffer is full, notifications for that
// subscriber are dropped.
func (c *Coordinator) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Notification, buffer)

	c.subMu.Lock()
	c.nextSub++
	sub := subscriber{id: c.nextSub, ch: ch}
	c.subs = append(c.subs, sub)
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, s := range c.subs {
			if s.id == sub.id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				close(s.ch)
				return
			}
		}
	}
	return ch, cancel
}

// publish stamps n and fans it out without blocking.
func (c *Coordinator) publish(n Notification) {
	n.Seq = c.clock.Next()
	n.Time = c.now()
	n.Status = c.machine.Status()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range c.subs {
		select {
		case s.ch <- n:
		default:
			c.logger.Debug("notification dropped", "device", c.name, "kind", n.Kind)
		}
	}
}
