// Package runcompare summarizes metrics and compares runs.
package runcompare

import (
	"math"

	"github.com/wandb/runlens/internal/runmodel"
)

// Trend is the overall direction of a metric.
type Trend string

const (
	TrendIncreasing Trend = "↑"
	TrendDecreasing Trend = "↓"
	TrendStable     Trend = "→"
	TrendConverged  Trend = "~"
)

// MinTrendPoints is the fewest points needed to detect a trend.
//
// Shorter series are reported as stable.
const MinTrendPoints = 10

const (
	convergedVarianceRatio = 0.01
	stableChangeRatio      = 0.05
)

// DetectTrend compares the first and second halves of a series.
//
// A second half whose variance is below 1% of its absolute mean is
// converged. Otherwise the relative change between the halves' means
// decides: under 5% is stable.
func DetectTrend(series runmodel.MetricSeries) Trend {
	if len(series) < MinTrendPoints {
		return TrendStable
	}

	mid := len(series) / 2
	firstMean := mean(series[:mid])
	secondMean := mean(series[mid:])

	if variance(series[mid:], secondMean) < convergedVarianceRatio*math.Abs(secondMean) {
		return TrendConverged
	}

	change := (secondMean - firstMean) / math.Abs(firstMean)
	switch {
	case math.Abs(change) < stableChangeRatio:
		return TrendStable
	case change < 0:
		return TrendDecreasing
	default:
		return TrendIncreasing
	}
}

func mean(series runmodel.MetricSeries) float64 {
	if len(series) == 0 {
		return 0
	}

	sum := 0.0
	for _, point := range series {
		sum += point.Value
	}
	return sum / float64(len(series))
}

// variance is the population variance of a series with the given mean.
func variance(series runmodel.MetricSeries, mean float64) float64 {
	if len(series) == 0 {
		return 0
	}

	sum := 0.0
	for _, point := range series {
		d := point.Value - mean
		sum += d * d
	}
	return sum / float64(len(series))
}

// Summary describes a metric series.
type Summary struct {
	Initial float64 `json:"initial"`
	Final   float64 `json:"final"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
	Trend   Trend   `json:"trend"`
}

// Summarize computes a series' statistics.
//
// Returns false for an empty series.
func Summarize(series runmodel.MetricSeries) (Summary, bool) {
	if len(series) == 0 {
		return Summary{}, false
	}

	summary := Summary{
		Initial: series[0].Value,
		Final:   series[len(series)-1].Value,
		Min:     series[0].Value,
		Max:     series[0].Value,
		Mean:    mean(series),
		Trend:   DetectTrend(series),
	}
	for _, point := range series[1:] {
		summary.Min = min(summary.Min, point.Value)
		summary.Max = max(summary.Max, point.Value)
	}

	return summary, true
}
