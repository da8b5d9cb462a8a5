package coordinator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/pairsync/internal/linkstate"
	"github.com/roach88/pairsync/internal/record"
)

// SendMode selects the transport primitive used for outbound snapshots.
type SendMode string

const (
	// SendModeReply uses SendWithReply; the peer's reply is the ack.
	SendModeReply SendMode = "reply"
	// SendModeOneWay uses Send; transport completion is the ack.
	SendModeOneWay SendMode = "oneway"
)

// ParseSendMode validates a configured send mode.
func ParseSendMode(s string) (SendMode, error) {
	switch SendMode(s) {
	case SendModeReply, SendModeOneWay:
		return SendMode(s), nil
	case "":
		return SendModeReply, nil
	default:
		return "", fmt.Errorf("unknown send mode %q (want %q or %q)", s, SendModeReply, SendModeOneWay)
	}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithName labels log lines and notifications with a device name.
func WithName(name string) Option {
	return func(c *Coordinator) {
		c.name = name
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCodec sets the wire codec. Defaults to record.JSONCodec.
func WithCodec(codec record.Codec) Option {
	return func(c *Coordinator) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithSendMode selects the outbound primitive. Defaults to SendModeReply.
func WithSendMode(m SendMode) Option {
	return func(c *Coordinator) {
		c.mode = m
	}
}

// WithReactivate makes the coordinator call Activate again after the session
// deactivates.
func WithReactivate(on bool) Option {
	return func(c *Coordinator) {
		c.reactivate = on
	}
}

// WithSequencer replaces the logical clock that stamps transitions and
// notifications.
func WithSequencer(seq linkstate.Sequencer) Option {
	return func(c *Coordinator) {
		if seq != nil {
			c.clock = seq
		}
	}
}

// WithNow sets the wall clock used for notification timestamps.
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}
