package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multishiva/multishiva/api/pkg/eventmodel"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if len(kv) > len("MULTISHIVA_") && kv[:len("MULTISHIVA_")] == "MULTISHIVA_" {
			t.Fatalf("unexpected MULTISHIVA_ env var set in test environment: %s", kv)
		}
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("MULTISHIVA_SELF_NAME", "desk-1")
	t.Setenv("MULTISHIVA_MODE", "host")
	t.Setenv("MULTISHIVA_PSK", "secret")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "desk-1", cfg.SelfName)
	assert.Equal(t, ModeHost, cfg.Mode)
	assert.EqualValues(t, 45289, cfg.Port)
	assert.EqualValues(t, 10, cfg.Behavior.EdgeThresholdPx)
	assert.EqualValues(t, 0, cfg.Behavior.FrictionMs)
	assert.EqualValues(t, 0, cfg.Behavior.ReconnectDelayMs)
}

func TestValidate_RejectsMissingFields(t *testing.T) {
	cases := []Config{
		{Mode: ModeHost, Port: 1, PSK: "x"},
		{SelfName: "a", Port: 1, PSK: "x"},
		{SelfName: "a", Mode: ModeHost, PSK: "x"},
		{SelfName: "a", Mode: ModeHost, Port: 1},
		{SelfName: "a", Mode: "bogus", Port: 1, PSK: "x"},
	}
	for _, c := range cases {
		assert.Error(t, c.Validate())
	}
}

func TestValidate_Valid(t *testing.T) {
	c := Config{SelfName: "a", Mode: ModeAgent, Port: 1, PSK: "x"}
	assert.NoError(t, c.Validate())
}

func TestEdgesTopology(t *testing.T) {
	e := Edges{Left: "laptop", Right: "desktop"}
	topo := e.Topology()
	name, ok := topo.Neighbor("left")
	require.True(t, ok)
	assert.Equal(t, "laptop", name)
}

func TestParseChord(t *testing.T) {
	keys, err := ParseChord("control_left+shift_left+escape")
	require.NoError(t, err)
	assert.Equal(t, []eventmodel.Key{eventmodel.KeyControlLeft, eventmodel.KeyShiftLeft, eventmodel.KeyEscape}, keys)

	keys, err = ParseChord("")
	require.NoError(t, err)
	assert.Nil(t, keys)

	_, err = ParseChord("not_a_key")
	assert.Error(t, err)
}
