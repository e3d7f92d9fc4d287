// File: internal/action/action_test.go
package action

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllKindsAreValidAndUnique(t *testing.T) {
	seen := make(map[Kind]bool)
	for _, k := range AllKinds {
		assert.True(t, k.Valid(), "kind %q should be valid", k)
		assert.False(t, seen[k], "kind %q listed twice", k)
		seen[k] = true
	}
	assert.Len(t, AllKinds, 11)
}

func TestKindValid_RejectsUnknown(t *testing.T) {
	assert.False(t, Kind("teleport").Valid())
	assert.False(t, Kind("").Valid())
}

func TestTerminalKinds(t *testing.T) {
	for _, k := range AllKinds {
		if k == KindDone || k == KindFail {
			assert.True(t, k.Terminal(), "kind %q should be terminal", k)
		} else {
			assert.False(t, k.Terminal(), "kind %q should not be terminal", k)
		}
	}
}

func TestActionWireShape(t *testing.T) {
	act := Action{Kind: KindClick, X: 640, Y: 3, Reason: "search box"}

	data, err := json.Marshal(act)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "click", decoded["action"])
	assert.Equal(t, float64(640), decoded["x"])
	// Fields irrelevant to the kind stay off the wire.
	assert.NotContains(t, decoded, "url")
	assert.NotContains(t, decoded, "direction")
	assert.NotContains(t, decoded, "start_x")
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, Action{Kind: KindDone, Reason: "ok"}, Done("ok"))
	assert.Equal(t, Action{Kind: KindFail, Reason: "blocked"}, Fail("blocked"))
	assert.Equal(t, Action{Kind: KindWait, Reason: "thinking"}, Wait("thinking"))
}
