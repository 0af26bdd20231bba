package runcompare

import (
	"maps"
	"slices"

	"github.com/wandb/runlens/internal/runmodel"
)

// ConfigComparison splits the config parameters of several runs into
// those that agree and those that differ.
type ConfigComparison struct {
	// Common maps parameters to the value shared by every run that has
	// them.
	Common map[string]any `json:"common"`

	// Differences maps parameters to their value in each run that has
	// them.
	Differences map[string]map[string]any `json:"differences"`

	TotalParams int `json:"totalParams"`
}

// CompareConfigs compares the configs of runs, keyed by run ID.
//
// A parameter is common if it serializes identically in every run that
// has it, even if some runs lack it.
func CompareConfigs(configs map[string]runmodel.RunConfig) ConfigComparison {
	values := make(map[string]map[string]any)
	for runID, config := range configs {
		for key, value := range config {
			if values[key] == nil {
				values[key] = make(map[string]any)
			}
			values[key][runID] = value
		}
	}

	comparison := ConfigComparison{
		Common:      make(map[string]any),
		Differences: make(map[string]map[string]any),
		TotalParams: len(values),
	}

	for key, byRun := range values {
		runIDs := slices.Sorted(maps.Keys(byRun))
		first := canonicalJSON(byRun[runIDs[0]])

		same := true
		for _, runID := range runIDs[1:] {
			if canonicalJSON(byRun[runID]) != first {
				same = false
				break
			}
		}

		if same {
			comparison.Common[key] = byRun[runIDs[0]]
		} else {
			comparison.Differences[key] = byRun
		}
	}

	return comparison
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
