package colorspec

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/frostdev-ops/pma-display-go/internal/core/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveJSON(t *testing.T, raw string, res resolver.Resolver, scope resolver.Scope) (RGB, error) {
	t.Helper()
	var spec Spec
	require.NoError(t, json.Unmarshal([]byte(raw), &spec))
	return spec.Resolve(context.Background(), res, scope)
}

func TestParseForms(t *testing.T) {
	res := resolver.NewStatic(nil)

	rgb, err := resolveJSON(t, `[255, 0, 0]`, res, nil)
	require.NoError(t, err)
	assert.Equal(t, RGB{255, 0, 0}, rgb)

	rgb, err = resolveJSON(t, `"#00FF7F"`, res, nil)
	require.NoError(t, err)
	assert.Equal(t, RGB{0, 255, 127}, rgb)

	rgb, err = resolveJSON(t, `"orange"`, res, nil)
	require.NoError(t, err)
	assert.Equal(t, RGB{255, 165, 0}, rgb)
}

func TestTripleClampsOutOfRange(t *testing.T) {
	res := resolver.NewStatic(nil)

	rgb, err := resolveJSON(t, `[300, -20, 128]`, res, nil)
	require.NoError(t, err)
	assert.Equal(t, RGB{255, 0, 128}, rgb)
}

func TestDynamicExpression(t *testing.T) {
	res := resolver.NewStatic(map[string]interface{}{
		"state_color": "#112233",
		"bad_color":   "not-a-color",
	})

	rgb, err := resolveJSON(t, `"state_color"`, res, nil)
	require.NoError(t, err)
	assert.Equal(t, RGB{0x11, 0x22, 0x33}, rgb)

	_, err = resolveJSON(t, `"bad_color"`, res, nil)
	assert.ErrorIs(t, err, ErrInvalidColor)
}

func TestThresholdSelection(t *testing.T) {
	res := resolver.NewStatic(map[string]interface{}{"battery": 35.0})

	raw := `{
		"value": "battery",
		"thresholds": [
			{"value": 20, "color": "red"},
			{"value": 50, "color": "yellow"},
			{"value": 100, "color": "green"}
		]
	}`

	rgb, err := resolveJSON(t, raw, res, nil)
	require.NoError(t, err)
	assert.Equal(t, RGB{255, 255, 0}, rgb)
}

func TestThresholdTieFavorsEarliestBreakpoint(t *testing.T) {
	res := resolver.NewStatic(map[string]interface{}{"battery": 20.0})

	raw := `{
		"value": "battery",
		"thresholds": [
			{"value": 20, "color": "red"},
			{"value": 50, "color": "yellow"}
		]
	}`

	rgb, err := resolveJSON(t, raw, res, nil)
	require.NoError(t, err)
	assert.Equal(t, RGB{255, 0, 0}, rgb)
}

func TestThresholdAboveAllUsesLastBreakpoint(t *testing.T) {
	res := resolver.NewStatic(map[string]interface{}{"battery": 150.0})

	raw := `{
		"value": "battery",
		"thresholds": [
			{"value": 20, "color": "red"},
			{"value": 100, "color": "green"}
		]
	}`

	rgb, err := resolveJSON(t, raw, res, nil)
	require.NoError(t, err)
	assert.Equal(t, RGB{0, 255, 0}, rgb)
}

func TestThresholdResolutionIsDeterministic(t *testing.T) {
	res := resolver.NewStatic(map[string]interface{}{"battery": 42.0})

	raw := `{
		"value": "battery",
		"thresholds": [
			{"value": 20, "color": "red"},
			{"value": 50, "color": "yellow"},
			{"value": 100, "color": "green"}
		]
	}`

	var first RGB
	for i := 0; i < 10; i++ {
		rgb, err := resolveJSON(t, raw, res, nil)
		require.NoError(t, err)
		if i == 0 {
			first = rgb
			continue
		}
		assert.Equal(t, first, rgb)
	}
}

func TestEmptyThresholdListRejected(t *testing.T) {
	var spec Spec
	err := json.Unmarshal([]byte(`{"value": "x", "thresholds": []}`), &spec)
	assert.ErrorIs(t, err, ErrInvalidColor)
}
