package linkstate

import "sync"

// CauseUnreachable is the cause recorded when the peer stops being reachable.
const CauseUnreachable = "peer unreachable"

// Sequencer stamps transitions with increasing numbers.
// The coordinator's logical clock satisfies it.
type Sequencer interface {
	Next() int64
}

type counter struct {
	mu  sync.Mutex
	seq int64
}

func (c *counter) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Machine is the per-device connection state machine.
//
// Thread-safety: Apply and the accessors are safe for concurrent use, though
// the coordinator applies events from a single goroutine.
type Machine struct {
	mu      sync.Mutex
	status  Status
	seq     Sequencer
	history []Transition
}

// New creates a machine in Initial. A nil seq uses an internal counter.
func New(seq Sequencer) *Machine {
	if seq == nil {
		seq = &counter{}
	}
	return &Machine{status: Status{State: Initial}, seq: seq}
}

// Status returns the current status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// History returns every transition applied so far, oldest first.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// Apply evaluates ev against the current state. cause is kept only when the
// target state is Failed. It returns the transition and true when ev is
// defined for the current state; ignored events return false and leave the
// status untouched.
func (m *Machine) Apply(ev Event, cause string) (Transition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.status.State
	to, ok := Next(from, ev)
	if !ok {
		return Transition{}, false
	}

	st := Status{State: to, Seq: m.seq.Next()}
	if to == Failed {
		st.Cause = cause
		if ev == Unreachable && cause == "" {
			st.Cause = CauseUnreachable
		}
	}
	tr := Transition{From: from, Event: ev, To: st}
	m.status = st
	m.history = append(m.history, tr)
	return tr, true
}

// Next is the transition function. It reports the target state of ev from
// state from, or false if ev is ignored there.
func Next(from State, ev Event) (State, bool) {
	switch ev {
	case Activated, Reachable:
		return Waiting, true
	case ActivationFailed, Unreachable, ReceiveFailed:
		return Failed, true
	case Inactive, Deactivated:
		return Initial, true
	case ReceiveSucceeded:
		return Succeeded, true
	case SendIssued:
		switch from {
		case Waiting, Succeeded, Failed:
			return InProgress, true
		}
	case SendSucceeded:
		switch from {
		case Waiting, InProgress, Succeeded:
			return Succeeded, true
		}
	case SendFailed:
		// Succeeded covers a receive that landed while the send was
		// outstanding. Failed is excluded so a late completion after
		// reachability loss does not overwrite the cause.
		switch from {
		case Waiting, InProgress, Succeeded:
			return Failed, true
		}
	}
	return from, false
}
