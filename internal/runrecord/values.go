package runrecord

import (
	"math"
	"strings"

	"github.com/wandb/simplejsonext"
)

// Path returns the item's key.
//
// A direct key takes precedence. Otherwise the nested key is joined
// with "/".
func (it Item) Path() string {
	if it.Key != "" {
		return it.Key
	}
	return strings.Join(it.NestedKey, "/")
}

// Value parses the item's JSON value.
//
// Integers decode as int64, other numbers as float64, objects as
// map[string]any and arrays as []any.
func (it Item) Value() (any, error) {
	return simplejsonext.UnmarshalString(it.ValueJSON)
}

// Float returns the item's value if it is a finite number.
func (it Item) Float() (float64, bool) {
	return finiteNumber(it.ValueJSON)
}

// Float returns the sample's value if it is a finite number.
func (it StatsItem) Float() (float64, bool) {
	return finiteNumber(it.ValueJSON)
}

func finiteNumber(valueJSON string) (float64, bool) {
	if valueJSON == "" {
		return 0, false
	}
	value, err := simplejsonext.UnmarshalString(valueJSON)
	if err != nil {
		return 0, false
	}
	return AsFinite(value)
}

// AsFinite converts a decoded JSON number to a finite float64.
func AsFinite(value any) (float64, bool) {
	var x float64
	switch v := value.(type) {
	case int64:
		x = float64(v)
	case float64:
		x = v
	case int:
		x = float64(v)
	default:
		return 0, false
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, false
	}
	return x, true
}

// IsScalar reports whether a decoded JSON value is null, a boolean,
// a number or a string.
func IsScalar(value any) bool {
	switch value.(type) {
	case nil, bool, int64, float64, int, string:
		return true
	default:
		return false
	}
}

// IsFiniteScalar is like IsScalar but rejects NaN and infinite numbers.
func IsFiniteScalar(value any) bool {
	if x, ok := value.(float64); ok {
		_, ok = AsFinite(x)
		return ok
	}
	return IsScalar(value)
}
