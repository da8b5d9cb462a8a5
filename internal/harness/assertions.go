package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/pairsync/internal/coordinator"
)

// AssertionError describes one failed assertion.
type AssertionError struct {
	Type     string
	Device   string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s", e.Type)
	if e.Device != "" {
		fmt.Fprintf(&buf, " (%s)", e.Device)
	}
	fmt.Fprintf(&buf, "\n  expected: %s\n  actual:   %s", e.Expected, e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns one
// message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertState:
		return assertState(result, a)
	case AssertRecords:
		return assertRecords(result, a)
	case AssertInSync:
		return assertInSync(result)
	case AssertNotified:
		return assertNotified(result, a)
	case AssertTransitions:
		return assertTransitions(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertState(result *Result, a Assertion) error {
	got := result.Final[a.Device].Status
	if got.State.String() == a.State && strings.Contains(got.Cause, a.Cause) {
		return nil
	}
	want := a.State
	if a.Cause != "" {
		want = fmt.Sprintf("%s (cause containing %q)", a.State, a.Cause)
	}
	return &AssertionError{Type: a.Type, Device: a.Device, Expected: want, Actual: got.String()}
}

func assertRecords(result *Result, a Assertion) error {
	got := result.Final[a.Device].Texts
	want := a.Texts
	if want == nil {
		want = []string{}
	}
	if slices.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Device:   a.Device,
		Expected: fmt.Sprintf("%q", want),
		Actual:   fmt.Sprintf("%q", got),
	}
}

// assertInSync requires both devices to hold the same records: same ids and
// texts in the same order.
func assertInSync(result *Result) error {
	var names []string
	for name := range result.Final {
		names = append(names, name)
	}
	slices.Sort(names)
	if len(names) != 2 {
		return fmt.Errorf("in_sync needs two devices, have %d", len(names))
	}
	a, b := names[0], names[1]
	if slices.Equal(result.ids[a], result.ids[b]) &&
		slices.Equal(result.Final[a].Texts, result.Final[b].Texts) {
		return nil
	}
	return &AssertionError{
		Type:     AssertInSync,
		Expected: fmt.Sprintf("%s == %s", a, b),
		Actual:   fmt.Sprintf("%s=%q %s=%q", a, result.Final[a].Texts, b, result.Final[b].Texts),
	}
}

func assertNotified(result *Result, a Assertion) error {
	kind, _ := parseKind(a.Kind)
	n := 0
	for _, ev := range result.DeviceTrace(a.Device) {
		if ev.Kind == kind.String() {
			n++
		}
	}
	switch {
	case a.Count != nil && n == *a.Count:
		return nil
	case a.Count == nil && n > 0:
		return nil
	}
	want := "at least 1"
	if a.Count != nil {
		want = fmt.Sprintf("exactly %d", *a.Count)
	}
	return &AssertionError{
		Type:     a.Type,
		Device:   a.Device,
		Expected: fmt.Sprintf("%s %s notification(s)", want, a.Kind),
		Actual:   fmt.Sprintf("%d", n),
	}
}

// assertTransitions compares the states reported by state_changed
// notifications, in order.
func assertTransitions(result *Result, a Assertion) error {
	var got []string
	for _, ev := range result.DeviceTrace(a.Device) {
		if ev.Kind == coordinator.StateChanged.String() {
			got = append(got, ev.State.String())
		}
	}
	if slices.Equal(got, a.States) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Device:   a.Device,
		Expected: strings.Join(a.States, " -> "),
		Actual:   strings.Join(got, " -> "),
	}
}
