package linkstate

import "fmt"

// State is the link status of one device.
type State int

const (
	// Initial is the state at process start and after the session goes
	// inactive or is deactivated.
	Initial State = iota
	// Waiting means the session is active and no transfer is outstanding.
	Waiting
	// InProgress means a snapshot has been handed to the transport and its
	// completion has not arrived yet.
	InProgress
	// Succeeded means the most recent transfer completed.
	Succeeded
	// Failed means the most recent attempt failed; Status.Cause says why.
	Failed
)

var stateNames = [...]string{
	Initial:    "initial",
	Waiting:    "waiting",
	InProgress: "in_progress",
	Succeeded:  "succeeded",
	Failed:     "failed",
}

var stateLabels = [...]string{
	Initial:    "initialized",
	Waiting:    "waiting",
	InProgress: "transferring",
	Succeeded:  "succeeded",
	Failed:     "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Label is the human-readable form shown in a status bar.
func (s State) Label() string {
	if s < 0 || int(s) >= len(stateLabels) {
		return s.String()
	}
	return stateLabels[s]
}

// MarshalText renders the state name, so JSON output reads "succeeded"
// rather than 3.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Event is a lifecycle or transfer occurrence that may move the machine.
type Event int

const (
	Activated Event = iota + 1
	ActivationFailed
	Reachable
	Unreachable
	SendIssued
	SendSucceeded
	SendFailed
	ReceiveSucceeded
	ReceiveFailed
	Inactive
	Deactivated
)

var eventNames = map[Event]string{
	Activated:        "activated",
	ActivationFailed: "activation_failed",
	Reachable:        "reachable",
	Unreachable:      "unreachable",
	SendIssued:       "send_issued",
	SendSucceeded:    "send_succeeded",
	SendFailed:       "send_failed",
	ReceiveSucceeded: "receive_succeeded",
	ReceiveFailed:    "receive_failed",
	Inactive:         "inactive",
	Deactivated:      "deactivated",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Status is the observable value of a Machine.
type Status struct {
	State State  `json:"state"`
	Cause string `json:"cause,omitempty"`
	Seq   int64  `json:"seq"`
}

func (s Status) String() string {
	if s.Cause != "" {
		return fmt.Sprintf("%s (%s)", s.State, s.Cause)
	}
	return s.State.String()
}

// Transition records one applied event.
type Transition struct {
	From  State
	Event Event
	To    Status
}
