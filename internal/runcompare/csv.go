package runcompare

import (
	"encoding/csv"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/wandb/runlens/internal/runmodel"
)

// DefaultMaxPoints is the default limit of DecimatePoints.
const DefaultMaxPoints = 500

// shortIDLength is how much of a run ID is shown when a run has no name.
const shortIDLength = 8

// WriteCSV writes a merged metric as a table with one row per step and
// one column per run.
//
// Rows cover the union of all runs' steps in ascending order. A run
// without a point at a step has an empty cell. Nothing is written for a
// metric without datasets.
func WriteCSV(w io.Writer, metric runmodel.MergedMetric) error {
	if len(metric.Datasets) == 0 {
		return nil
	}

	header := make([]string, 0, len(metric.Datasets)+1)
	header = append(header, "step")

	stepSet := make(map[int64]struct{})
	columns := make([]map[int64]float64, len(metric.Datasets))
	for i, dataset := range metric.Datasets {
		header = append(header, datasetLabel(dataset))

		columns[i] = make(map[int64]float64, len(dataset.Data))
		for _, point := range dataset.Data {
			stepSet[point.Step] = struct{}{}
			if _, seen := columns[i][point.Step]; !seen {
				columns[i][point.Step] = point.Value
			}
		}
	}

	out := csv.NewWriter(w)
	if err := out.Write(header); err != nil {
		return fmt.Errorf("runcompare: %v", err)
	}

	row := make([]string, len(header))
	for _, step := range slices.Sorted(maps.Keys(stepSet)) {
		row[0] = strconv.FormatInt(step, 10)
		for i, column := range columns {
			if value, ok := column[step]; ok {
				row[i+1] = FormatNumberForCSV(value)
			} else {
				row[i+1] = ""
			}
		}

		if err := out.Write(row); err != nil {
			return fmt.Errorf("runcompare: %v", err)
		}
	}

	out.Flush()
	if err := out.Error(); err != nil {
		return fmt.Errorf("runcompare: %v", err)
	}
	return nil
}

// CSV is like WriteCSV but returns a string.
func CSV(metric runmodel.MergedMetric) string {
	var sb strings.Builder
	// Writing to a strings.Builder does not fail.
	_ = WriteCSV(&sb, metric)
	return sb.String()
}

func datasetLabel(dataset runmodel.Dataset) string {
	if dataset.RunName != "" {
		return dataset.RunName
	}
	return ShortID(dataset.RunID)
}

// ShortID abbreviates a run ID for display.
func ShortID(runID string) string {
	if len(runID) <= shortIDLength {
		return runID
	}
	return runID[:shortIDLength]
}

// DecimatePoints reduces a series to about maxPoints evenly spaced
// points, always keeping the first and last.
//
// A non-positive maxPoints means DefaultMaxPoints. Series that are short
// enough are returned unchanged.
func DecimatePoints(series runmodel.MetricSeries, maxPoints int) runmodel.MetricSeries {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	if len(series) <= maxPoints {
		return series
	}

	stride := (len(series) + maxPoints - 1) / maxPoints

	out := make(runmodel.MetricSeries, 0, maxPoints+1)
	for i := 0; i < len(series); i += stride {
		out = append(out, series[i])
	}

	if (len(series)-1)%stride != 0 {
		out = append(out, series[len(series)-1])
	}
	return out
}

// GroupMetricsByPrefix groups metric names by their leading component.
//
// "loss/train" is in group "loss", "train_loss" in "train" and
// "gpu.0.memory" in "gpu.0". Names keep their input order within a group.
func GroupMetricsByPrefix(names []string) map[string][]string {
	groups := make(map[string][]string)
	for _, name := range names {
		group := metricGroup(name)
		groups[group] = append(groups[group], name)
	}
	return groups
}

func metricGroup(name string) string {
	if prefix, _, ok := strings.Cut(name, "/"); ok {
		return prefix
	}
	if prefix, _, ok := strings.Cut(name, "_"); ok {
		return prefix
	}
	if strings.Contains(name, ".") {
		parts := strings.SplitN(name, ".", 3)
		return strings.Join(parts[:min(2, len(parts))], ".")
	}
	return name
}
