package harness

import (
	"github.com/roach88/pairsync/internal/linkstate"
)

// TraceEvent is one observable outcome of a flow step.
//
// Most events mirror a coordinator notification. Kind "reply" records the
// answer to a raw payload injected with the deliver action.
type TraceEvent struct {
	Step   int             `json:"step"`
	Device string          `json:"device"`
	Kind   string          `json:"kind"`
	Seq    int64           `json:"seq,omitempty"`
	State  linkstate.State `json:"state"`
	Cause  string          `json:"cause,omitempty"`
	Texts  []string        `json:"texts,omitempty"`
	Acked  *int            `json:"acked,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Trace event kinds that do not come from a notification.
const (
	KindReply = "reply"
)

// DeviceState is a device's status and list at the end of a run.
type DeviceState struct {
	Status linkstate.Status `json:"status"`
	Texts  []string         `json:"texts"`
}

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed assertion.
	Errors []string `json:"errors,omitempty"`

	// Final maps device name to its end state.
	Final map[string]DeviceState `json:"final"`

	// ids holds each device's final record ids, for in_sync.
	ids map[string][]string
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Final:  make(map[string]DeviceState),
		ids:    make(map[string][]string),
	}
}

// AddError records a failed assertion.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// DeviceTrace returns the events recorded for one device, in order.
func (r *Result) DeviceTrace(device string) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Device == device {
			out = append(out, ev)
		}
	}
	return out
}
