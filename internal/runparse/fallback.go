package runparse

import "github.com/wandb/runlens/internal/runmodel"

// MergeFallbackMetrics adds series from a secondary source, such as metrics
// scraped from console output.
//
// A fallback series is used only when the log has no series of that name
// or an empty one. Returns the number of series added.
func MergeFallbackMetrics(
	run *runmodel.RunData,
	fallback map[string]runmodel.MetricSeries,
) int {
	merged := 0
	for name, series := range fallback {
		if len(series) == 0 || len(run.Metrics[name]) > 0 {
			continue
		}
		run.Metrics[name] = DedupAndSort(append(runmodel.MetricSeries(nil), series...))
		merged++
	}
	return merged
}
