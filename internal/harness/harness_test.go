package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pairsync/internal/linkstate"
)

func mustParse(t *testing.T, doc string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(doc))
	require.NoError(t, err)
	return s
}

func TestRun_TestdataScenariosPass(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, p := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(p), ".yaml"), func(t *testing.T) {
			s, err := LoadScenario(p)
			require.NoError(t, err)

			result, err := Run(t.Context(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_DefaultSeedAndIDs(t *testing.T) {
	s := mustParse(t, `
name: default_seed
description: a nil seed installs the default texts
flow:
  - {device: phone, action: fetch}
assertions:
  - type: records
    device: phone
    texts: [hello from the phone, remember the milk, meeting at 10, ping me later]
`)
	result, err := Run(t.Context(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{
		"00000000-0000-7000-8001-000000000001",
		"00000000-0000-7000-8001-000000000002",
		"00000000-0000-7000-8001-000000000003",
		"00000000-0000-7000-8001-000000000004",
	}, result.ids["phone"])
	assert.Empty(t, result.Trace, "local edits publish nothing")
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	s := mustParse(t, `
name: wrong_expectations
description: every assertion here is false
flow:
  - {device: phone, action: activate}
  - {device: phone, action: add, text: only on phone}
assertions:
  - {type: state, device: phone, state: succeeded}
  - {type: records, device: watch, texts: [something]}
  - {type: in_sync}
  - {type: notified, device: phone, kind: store_replaced}
  - {type: transitions, device: phone, states: [failed]}
`)
	result, err := Run(t.Context(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "expected: succeeded")
	assert.Contains(t, result.Errors[0], "actual:   waiting")
	assert.Contains(t, result.Errors[1], `["something"]`)
	assert.Contains(t, result.Errors[2], "in_sync")
	assert.Contains(t, result.Errors[3], "at least 1 store_replaced")
	assert.Contains(t, result.Errors[4], "expected: failed")
}

func TestRun_EditOutOfRangeStopsTheFlow(t *testing.T) {
	s := mustParse(t, `
name: bad_edit
description: editing an empty list is a flow error
flow:
  - {device: phone, action: edit, index: 3, text: nope}
assertions:
  - {type: in_sync}
`)
	_, err := Run(t.Context(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow step 0 (edit)")
	assert.Contains(t, err.Error(), "out of range")
}

func TestRun_DeliverRecordsAck(t *testing.T) {
	s := mustParse(t, `
name: raw_delivery
description: a well-formed raw payload is applied and acked with its count
flow:
  - {device: phone, action: activate}
  - {device: watch, action: activate}
  - device: phone
    action: deliver
    payload: '[{"id":"00000000-0000-7000-8009-000000000001","text":"raw","created_at":"2024-01-01T09:00:00Z"}]'
assertions:
  - {type: records, device: watch, texts: [raw]}
  - {type: state, device: watch, state: succeeded}
`)
	result, err := Run(t.Context(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	var reply *TraceEvent
	for i := range result.Trace {
		if result.Trace[i].Kind == KindReply {
			reply = &result.Trace[i]
		}
	}
	require.NotNil(t, reply)
	assert.Equal(t, "phone", reply.Device)
	assert.Equal(t, 2, reply.Step)
	require.NotNil(t, reply.Acked)
	assert.Equal(t, 1, *reply.Acked)
}

func TestRun_GarbageGetsEmptyReply(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/garbage_payload.yaml")
	require.NoError(t, err)

	result, err := Run(t.Context(), s)
	require.NoError(t, err)

	replies := 0
	for _, ev := range result.Trace {
		if ev.Kind == KindReply {
			replies++
			assert.Nil(t, ev.Acked)
			assert.Empty(t, ev.Error)
		}
	}
	assert.Equal(t, 1, replies)

	watch := result.DeviceTrace("watch")
	require.NotEmpty(t, watch)
	last := watch[len(watch)-1]
	assert.Equal(t, "receive_failed", last.Kind)
	assert.Contains(t, last.Error, "DECODE_FAILURE")
}

func TestRun_IsDeterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/lifecycle.yaml")
	require.NoError(t, err)

	first, err := Run(t.Context(), s)
	require.NoError(t, err)
	second, err := Run(t.Context(), s)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Final, second.Final)
}

func TestRun_FinalState(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/closed_peer.yaml")
	require.NoError(t, err)

	result, err := Run(t.Context(), s)
	require.NoError(t, err)

	assert.Equal(t, linkstate.Failed, result.Final["phone"].Status.State)
	assert.Equal(t, linkstate.CauseUnreachable, result.Final["phone"].Status.Cause)
	assert.Equal(t, []string{"x"}, result.Final["phone"].Texts)
}
