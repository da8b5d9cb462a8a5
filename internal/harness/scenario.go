package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pairsync/internal/coordinator"
	"github.com/roach88/pairsync/internal/linkstate"
)

// Scenario is one scripted run over a pair of devices.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// SendMode is "reply" (default) or "oneway" and applies to both devices.
	SendMode string `yaml:"send_mode,omitempty"`

	// Devices lists exactly two devices. Defaults to phone and watch with
	// the default seed.
	Devices []DeviceSpec `yaml:"devices,omitempty"`

	Flow       []Step      `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`
}

// DeviceSpec declares one device. A nil Seed means the default seed texts;
// an empty list seeds nothing.
type DeviceSpec struct {
	Name string   `yaml:"name"`
	Seed []string `yaml:"seed"`
}

// Step is one action in the flow.
type Step struct {
	// Device is the acting device. Empty for link actions.
	Device string `yaml:"device,omitempty"`

	Action string `yaml:"action"`

	// Text is used by add and edit.
	Text string `yaml:"text,omitempty"`

	// Index is used by edit.
	Index *int `yaml:"index,omitempty"`

	// Payload is used by deliver: the raw bytes sent to the peer.
	Payload string `yaml:"payload,omitempty"`
}

// Step actions.
const (
	ActionActivate   = "activate"
	ActionDeactivate = "deactivate"
	ActionInactive   = "inactive"
	ActionClose      = "close"
	ActionFetch      = "fetch"
	ActionAdd        = "add"
	ActionEdit       = "edit"
	ActionPop        = "pop"
	ActionSend       = "send"
	ActionDeliver    = "deliver"
	ActionLinkDown   = "link_down"
	ActionLinkUp     = "link_up"
)

var deviceActions = map[string]bool{
	ActionActivate:   true,
	ActionDeactivate: true,
	ActionInactive:   true,
	ActionClose:      true,
	ActionFetch:      true,
	ActionAdd:        true,
	ActionEdit:       true,
	ActionPop:        true,
	ActionSend:       true,
	ActionDeliver:    true,
}

// Assertion checks the outcome of a run.
type Assertion struct {
	// Type is one of state, records, in_sync, notified, transitions.
	Type string `yaml:"type"`

	Device string `yaml:"device,omitempty"`

	// State and Cause are used by state. Cause is a substring match.
	State string `yaml:"state,omitempty"`
	Cause string `yaml:"cause,omitempty"`

	// Texts is used by records: the exact list of texts, in order.
	Texts []string `yaml:"texts,omitempty"`

	// Kind and Count are used by notified. Without Count, at least one
	// notification of Kind must have been published.
	Kind  string `yaml:"kind,omitempty"`
	Count *int   `yaml:"count,omitempty"`

	// States is used by transitions: every state the device moved through.
	States []string `yaml:"states,omitempty"`
}

// Assertion types.
const (
	AssertState       = "state"
	AssertRecords     = "records"
	AssertInSync      = "in_sync"
	AssertNotified    = "notified"
	AssertTransitions = "transitions"
)

// DefaultDevices is used when a scenario declares none.
var DefaultDevices = []DeviceSpec{{Name: "phone"}, {Name: "watch"}}

// LoadScenario reads and parses a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes a scenario, rejecting unknown fields, and validates
// it.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid scenario: empty document")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(s.Devices) == 0 {
		s.Devices = append([]DeviceSpec(nil), DefaultDevices...)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := coordinator.ParseSendMode(s.SendMode); err != nil {
		return err
	}
	if len(s.Devices) != 2 {
		return fmt.Errorf("exactly two devices are required, got %d", len(s.Devices))
	}
	names := make(map[string]bool, 2)
	for i, d := range s.Devices {
		if d.Name == "" {
			return fmt.Errorf("devices[%d]: name is required", i)
		}
		if names[d.Name] {
			return fmt.Errorf("devices[%d]: duplicate name %q", i, d.Name)
		}
		names[d.Name] = true
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if err := validateStep(step, names); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, names); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step, names map[string]bool) error {
	switch step.Action {
	case "":
		return fmt.Errorf("action is required")
	case ActionLinkDown, ActionLinkUp:
		if step.Device != "" {
			return fmt.Errorf("%s takes no device", step.Action)
		}
		return nil
	}
	if !deviceActions[step.Action] {
		return fmt.Errorf("unknown action %q", step.Action)
	}
	if !names[step.Device] {
		return fmt.Errorf("unknown device %q", step.Device)
	}
	switch step.Action {
	case ActionAdd:
		if step.Text == "" {
			return fmt.Errorf("add requires text")
		}
	case ActionEdit:
		if step.Index == nil || *step.Index < 0 {
			return fmt.Errorf("edit requires a non-negative index")
		}
	}
	return nil
}

func validateAssertion(a Assertion, names map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("type is required")
	}
	if a.Type != AssertInSync && !names[a.Device] {
		return fmt.Errorf("unknown device %q", a.Device)
	}

	switch a.Type {
	case AssertState:
		var st linkstate.State
		if err := st.UnmarshalText([]byte(a.State)); err != nil {
			return err
		}
	case AssertRecords, AssertInSync:
	case AssertNotified:
		if _, ok := parseKind(a.Kind); !ok {
			return fmt.Errorf("unknown notification kind %q", a.Kind)
		}
		if a.Count != nil && *a.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
	case AssertTransitions:
		if len(a.States) == 0 {
			return fmt.Errorf("states list is required for transitions")
		}
		for _, name := range a.States {
			var st linkstate.State
			if err := st.UnmarshalText([]byte(name)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func parseKind(name string) (coordinator.Kind, bool) {
	for k := coordinator.StateChanged; k <= coordinator.ReceiveFailed; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}
