package linkstate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStates = []State{Initial, Waiting, InProgress, Succeeded, Failed}

func TestNew_StartsInitial(t *testing.T) {
	m := New(nil)
	assert.Equal(t, Status{State: Initial}, m.Status())
	assert.Empty(t, m.History())
}

func TestNext_Table(t *testing.T) {
	type row struct {
		from State
		ev   Event
		to   State
		ok   bool
	}
	var rows []row

	// Events defined from every state.
	for _, from := range allStates {
		rows = append(rows,
			row{from, Activated, Waiting, true},
			row{from, ActivationFailed, Failed, true},
			row{from, Reachable, Waiting, true},
			row{from, Unreachable, Failed, true},
			row{from, ReceiveSucceeded, Succeeded, true},
			row{from, ReceiveFailed, Failed, true},
			row{from, Inactive, Initial, true},
			row{from, Deactivated, Initial, true},
		)
	}

	rows = append(rows,
		row{Initial, SendIssued, Initial, false},
		row{Waiting, SendIssued, InProgress, true},
		row{InProgress, SendIssued, InProgress, false},
		row{Succeeded, SendIssued, InProgress, true},
		row{Failed, SendIssued, InProgress, true},

		row{Initial, SendSucceeded, Initial, false},
		row{Waiting, SendSucceeded, Succeeded, true},
		row{InProgress, SendSucceeded, Succeeded, true},
		row{Succeeded, SendSucceeded, Succeeded, true},
		row{Failed, SendSucceeded, Failed, false},

		row{Initial, SendFailed, Initial, false},
		row{Waiting, SendFailed, Failed, true},
		row{InProgress, SendFailed, Failed, true},
		row{Succeeded, SendFailed, Failed, true},
		row{Failed, SendFailed, Failed, false},
	)

	for _, r := range rows {
		t.Run(r.from.String()+"/"+r.ev.String(), func(t *testing.T) {
			to, ok := Next(r.from, r.ev)
			assert.Equal(t, r.ok, ok)
			assert.Equal(t, r.to, to)
		})
	}
}

func TestApply_FailedCarriesCause(t *testing.T) {
	m := New(nil)
	m.Apply(Activated, "")
	m.Apply(SendIssued, "")

	tr, ok := m.Apply(SendFailed, "connection reset")
	require.True(t, ok)
	assert.Equal(t, InProgress, tr.From)
	assert.Equal(t, Failed, tr.To.State)
	assert.Equal(t, "connection reset", m.Status().Cause)

	// Cause is dropped once we leave Failed.
	m.Apply(Reachable, "ignored")
	assert.Equal(t, Status{State: Waiting, Seq: 4}, m.Status())
}

func TestApply_UnreachableDefaultCause(t *testing.T) {
	m := New(nil)
	m.Apply(Unreachable, "")
	assert.Equal(t, CauseUnreachable, m.Status().Cause)
}

func TestApply_IgnoredEventLeavesStatus(t *testing.T) {
	m := New(nil)
	before := m.Status()

	_, ok := m.Apply(SendSucceeded, "")

	assert.False(t, ok)
	assert.Equal(t, before, m.Status())
	assert.Empty(t, m.History())
}

func TestApply_LateAckAfterReachabilityLossIsIgnored(t *testing.T) {
	m := New(nil)
	m.Apply(Activated, "")
	m.Apply(SendIssued, "")
	m.Apply(Unreachable, "")

	_, ok := m.Apply(SendSucceeded, "")

	assert.False(t, ok)
	assert.Equal(t, Failed, m.Status().State)
}

func TestApply_SendFailureAfterOverlappingReceive(t *testing.T) {
	m := New(nil)
	m.Apply(Activated, "")
	m.Apply(SendIssued, "")
	m.Apply(ReceiveSucceeded, "")

	tr, ok := m.Apply(SendFailed, "reply timed out")
	require.True(t, ok)
	assert.Equal(t, Succeeded, tr.From)
	assert.Equal(t, Failed, m.Status().State)
	assert.Equal(t, "reply timed out", m.Status().Cause)
}

type fixedSeq struct{ n int64 }

func (f *fixedSeq) Next() int64 { f.n += 10; return f.n }

func TestApply_UsesSequencer(t *testing.T) {
	m := New(&fixedSeq{})
	m.Apply(Activated, "")
	m.Apply(SendIssued, "")

	h := m.History()
	require.Len(t, h, 2)
	assert.Equal(t, int64(10), h[0].To.Seq)
	assert.Equal(t, int64(20), h[1].To.Seq)
}

// A fixed start and a fixed event sequence always produce the same states.
func TestApply_Deterministic(t *testing.T) {
	events := []struct {
		ev    Event
		cause string
	}{
		{Activated, ""},
		{Reachable, ""},
		{SendIssued, ""},
		{SendSucceeded, ""},
		{SendIssued, ""},
		{SendFailed, "timeout"},
		{Unreachable, ""},
		{Reachable, ""},
		{ReceiveSucceeded, ""},
		{ReceiveFailed, "bad payload"},
		{Inactive, ""},
		{Activated, ""},
		{Deactivated, ""},
	}
	want := []Status{
		{State: Waiting, Seq: 1},
		{State: Waiting, Seq: 2},
		{State: InProgress, Seq: 3},
		{State: Succeeded, Seq: 4},
		{State: InProgress, Seq: 5},
		{State: Failed, Cause: "timeout", Seq: 6},
		{State: Failed, Cause: CauseUnreachable, Seq: 7},
		{State: Waiting, Seq: 8},
		{State: Succeeded, Seq: 9},
		{State: Failed, Cause: "bad payload", Seq: 10},
		{State: Initial, Seq: 11},
		{State: Waiting, Seq: 12},
		{State: Initial, Seq: 13},
	}

	run := func() []Status {
		m := New(nil)
		var got []Status
		for _, e := range events {
			tr, ok := m.Apply(e.ev, e.cause)
			require.True(t, ok, "event %s", e.ev)
			got = append(got, tr.To)
		}
		return got
	}

	first := run()
	assert.Equal(t, want, first)
	assert.Equal(t, first, run())
}

func TestState_Strings(t *testing.T) {
	assert.Equal(t, "succeeded", Succeeded.String())
	assert.Equal(t, "transferring", InProgress.Label())
	assert.Equal(t, "initialized", Initial.Label())
	assert.Equal(t, "state(42)", State(42).String())
	assert.Equal(t, "event(99)", Event(99).String())
	assert.Equal(t, "failed (boom)", Status{State: Failed, Cause: "boom"}.String())
}

func TestStatus_JSON(t *testing.T) {
	b, err := json.Marshal(Status{State: Failed, Cause: "boom", Seq: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"failed","cause":"boom","seq":3}`, string(b))
}

func TestStatus_JSONDecode(t *testing.T) {
	var st Status
	require.NoError(t, json.Unmarshal([]byte(`{"state":"in_progress","seq":7}`), &st))
	assert.Equal(t, Status{State: InProgress, Seq: 7}, st)

	assert.Error(t, json.Unmarshal([]byte(`{"state":"sleeping"}`), &st))
}
