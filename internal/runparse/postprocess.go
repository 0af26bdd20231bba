package runparse

import (
	"slices"

	"github.com/wandb/runlens/internal/runmodel"
)

// MinSeriesPoints is the fewest points a training metric needs to be kept.
//
// Single values are usually constants logged once, not time series.
const MinSeriesPoints = 2

// internalConfigKeys are SDK bookkeeping entries removed from the config.
var internalConfigKeys = []string{"_wandb", "wandb_version"}

// PostProcess normalizes a run after all records are applied.
//
// Series are sorted by step with one point per step, short training
// series are dropped, internal config keys are removed and {"value": X}
// config entries are unwrapped.
func PostProcess(run *runmodel.RunData) {
	for name, series := range run.Metrics {
		series = DedupAndSort(series)
		if len(series) < MinSeriesPoints {
			delete(run.Metrics, name)
			continue
		}
		run.Metrics[name] = series
	}

	for name, series := range run.SystemMetrics {
		run.SystemMetrics[name] = DedupAndSort(series)
	}

	for _, key := range internalConfigKeys {
		delete(run.Config, key)
	}

	for key, value := range run.Config {
		run.Config[key] = UnwrapConfigValue(value)
	}
}

// DedupAndSort orders a series by step, keeping the last-recorded value
// for each step.
//
// The input slice is reordered in place.
func DedupAndSort(series runmodel.MetricSeries) runmodel.MetricSeries {
	slices.SortStableFunc(series, func(a, b runmodel.MetricPoint) int {
		switch {
		case a.Step < b.Step:
			return -1
		case a.Step > b.Step:
			return 1
		default:
			return 0
		}
	})

	out := series[:0]
	for _, point := range series {
		if n := len(out); n > 0 && out[n-1].Step == point.Step {
			out[n-1] = point
			continue
		}
		out = append(out, point)
	}
	return out
}

// UnwrapConfigValue replaces {"value": X} with X.
//
// W&B stores config entries in that form in config.yaml and in some SDK
// versions of the log.
func UnwrapConfigValue(value any) any {
	if m, ok := value.(map[string]any); ok && len(m) == 1 {
		if inner, ok := m["value"]; ok {
			return inner
		}
	}
	return value
}
