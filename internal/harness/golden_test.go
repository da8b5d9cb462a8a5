package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"sync_seeded_list", "link_loss_and_resync"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestMarshalSnapshot_Stable(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/oneway_mode.yaml")
	require.NoError(t, err)
	result, err := Run(t.Context(), s)
	require.NoError(t, err)

	a, err := MarshalSnapshot(s.Name, result)
	require.NoError(t, err)
	b, err := MarshalSnapshot(s.Name, result)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, string(a), `"scenario_name": "oneway_mode"`)
}
