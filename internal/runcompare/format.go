package runcompare

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wandb/simplejsonext"

	"github.com/wandb/runlens/internal/runrecord"
)

const (
	smallMagnitude = 0.0001
	largeMagnitude = 10000
)

// FormatNumber formats a value for reading.
//
// Magnitudes below 1e-4 or from 1e4 up use scientific notation with two
// decimals. Others are shown with about four significant figures and no
// trailing zeros.
func FormatNumber(value float64) string {
	if s, ok := formatNonFinite(value); ok {
		return s
	}

	abs := math.Abs(value)
	switch {
	case abs == 0:
		return "0"
	case abs < smallMagnitude || abs >= largeMagnitude:
		return formatExponent(value, 2)
	case abs >= 100:
		return strings.TrimSuffix(strconv.FormatFloat(value, 'f', 1, 64), ".0")
	case abs >= 10:
		return trimZeros(strconv.FormatFloat(value, 'f', 2, 64))
	case abs >= 1:
		return trimZeros(strconv.FormatFloat(value, 'f', 3, 64))
	default:
		return trimZeros(strconv.FormatFloat(value, 'f', 4, 64))
	}
}

// FormatNumberForCSV formats a value for a CSV cell.
//
// It is like FormatNumber with six digits of precision.
func FormatNumberForCSV(value float64) string {
	if s, ok := formatNonFinite(value); ok {
		return s
	}

	abs := math.Abs(value)
	switch {
	case abs == 0:
		return "0"
	case abs < smallMagnitude || abs >= largeMagnitude:
		return formatExponent(value, 6)
	default:
		return trimZeros(strconv.FormatFloat(value, 'f', 6, 64))
	}
}

func formatNonFinite(value float64) (string, bool) {
	switch {
	case math.IsNaN(value):
		return "NaN", true
	case math.IsInf(value, 1):
		return "Infinity", true
	case math.IsInf(value, -1):
		return "-Infinity", true
	default:
		return "", false
	}
}

// formatExponent writes value in scientific notation without padding the
// exponent, as in "1.23e+5".
func formatExponent(value float64, decimals int) string {
	s := strconv.FormatFloat(value, 'e', decimals, 64)

	mantissa, exponent, ok := strings.Cut(s, "e")
	if !ok || len(exponent) < 2 {
		return s
	}

	sign, digits := exponent[:1], strings.TrimLeft(exponent[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mantissa + "e" + sign + digits
}

// trimZeros removes trailing fractional zeros and a trailing point.
func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	return strings.TrimSuffix(strings.TrimRight(s, "0"), ".")
}

// formatValue renders a config value on one line, truncated to maxLen
// characters.
func formatValue(value any, maxLen int) string {
	if number, ok := runrecord.AsFinite(value); ok {
		return FormatNumber(number)
	}

	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return truncate(v, maxLen)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return FormatNumber(v)
	case []any:
		if len(v) == 0 {
			return "[]"
		}
		parts := make([]string, 0, 4)
		for _, item := range v[:min(len(v), 3)] {
			parts = append(parts, formatValue(item, maxLen))
		}
		if len(v) > 3 {
			parts = append(parts, "...")
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return truncate(canonicalJSON(v), maxLen)
	}
}

func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}

// canonicalJSON serializes a decoded JSON or YAML value with object keys
// in sorted order, so that equal values have equal encodings.
func canonicalJSON(value any) string {
	var sb strings.Builder
	writeCanonical(&sb, value)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, value any) {
	switch v := value.(type) {
	case map[string]any:
		sb.WriteByte('{')
		for i, key := range sortedKeys(v) {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, key)
			sb.WriteByte(':')
			writeCanonical(sb, v[key])
		}
		sb.WriteByte('}')

	case []any:
		sb.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')

	default:
		encoded, err := simplejsonext.MarshalToString(v)
		if err != nil {
			encoded = strconv.Quote(err.Error())
		}
		sb.WriteString(encoded)
	}
}
