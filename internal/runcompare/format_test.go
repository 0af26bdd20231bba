package runcompare_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wandb/runlens/internal/runcompare"
)

func TestFormatNumber(t *testing.T) {
	testCases := []struct {
		value    float64
		expected string
	}{
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{2.02e-6, "2.02e-6"},
		{123456, "1.23e+5"},
		{10000, "1.00e+4"},
		{-54321, "-5.43e+4"},
		{123.4, "123.4"},
		{200, "200"},
		{12.5, "12.5"},
		{12, "12"},
		{1.23456, "1.235"},
		{1, "1"},
		{0.5, "0.5"},
		{-0.25, "-0.25"},
		{0.00012345, "0.0001"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, runcompare.FormatNumber(tc.value), "%v", tc.value)
	}
}

func TestFormatNumberForCSV(t *testing.T) {
	testCases := []struct {
		value    float64
		expected string
	}{
		{0, "0"},
		{0.123456789, "0.123457"},
		{1.5, "1.5"},
		{42, "42"},
		{12345.678, "1.234568e+4"},
		{0.00001, "1.000000e-5"},
		{1e-300, "1.000000e-300"},
		{math.NaN(), "NaN"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, runcompare.FormatNumberForCSV(tc.value), "%v", tc.value)
	}
}
