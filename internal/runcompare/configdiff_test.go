package runcompare_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wandb/runlens/internal/runcompare"
	"github.com/wandb/runlens/internal/runmodel"
)

func TestCompareConfigs(t *testing.T) {
	comparison := runcompare.CompareConfigs(map[string]runmodel.RunConfig{
		"a": {
			"lr":     0.1,
			"bs":     int64(32),
			"opt":    map[string]any{"name": "adam", "beta": 0.9},
			"layers": []any{int64(64), int64(32)},
			"only_a": true,
			"nan":    math.NaN(),
		},
		"b": {
			"lr":     0.01,
			"bs":     32.0,
			"opt":    map[string]any{"beta": 0.9, "name": "adam"},
			"layers": []any{int64(32), int64(64)},
			"nan":    math.NaN(),
		},
	})

	assert.Equal(t, 6, comparison.TotalParams)
	assert.ElementsMatch(t,
		[]string{"bs", "opt", "only_a", "nan"},
		keysOf(comparison.Common))
	assert.Equal(t, map[string]map[string]any{
		"lr":     {"a": 0.1, "b": 0.01},
		"layers": {"a": []any{int64(64), int64(32)}, "b": []any{int64(32), int64(64)}},
	}, comparison.Differences)
	assert.Equal(t, true, comparison.Common["only_a"])
}

func TestCompareConfigs_Empty(t *testing.T) {
	comparison := runcompare.CompareConfigs(nil)

	assert.Empty(t, comparison.Common)
	assert.Empty(t, comparison.Differences)
	assert.Zero(t, comparison.TotalParams)
}

func keysOf[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	return keys
}
