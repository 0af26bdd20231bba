package runmodel

import (
	"encoding/json"
	"maps"
	"math"

	"github.com/wandb/simplejsonext"
)

// MarshalJSON writes non-finite values as the strings "NaN", "Infinity"
// and "-Infinity", which encoding/json cannot otherwise represent.
func (p MetricPoint) MarshalJSON() ([]byte, error) {
	var value any = p.Value
	if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
		value = simplejsonext.WalkDeNaN(p.Value)
	}

	return json.Marshal(struct {
		Step  int64 `json:"step"`
		Value any   `json:"value"`
	}{p.Step, value})
}

// MarshalJSON writes non-finite numbers like MetricPoint does.
func (c RunConfig) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	return json.Marshal(simplejsonext.WalkDeNaN(CloneValue(map[string]any(c))))
}

// CloneValue deeply copies the maps and slices of a decoded JSON value.
func CloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		clone := maps.Clone(v)
		for key, item := range clone {
			clone[key] = CloneValue(item)
		}
		return clone
	case []any:
		clone := make([]any, len(v))
		for i, item := range v {
			clone[i] = CloneValue(item)
		}
		return clone
	default:
		return v
	}
}
