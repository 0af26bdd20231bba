package compare

import (
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/wandb/runlens/internal/cliutil"
	"github.com/wandb/runlens/internal/runcompare"
	"github.com/wandb/runlens/internal/runmodel"
)

func NewCompareCmd() *cobra.Command {
	var includeSystem bool

	cmd := &cobra.Command{
		Use:   "compare <dir>",
		Short: "Compare the metrics and configs of runs",
		Long: heredoc.Doc(`
			Parse the selected runs in a directory and compare them.

			For every metric, each run's initial, final, min, max and mean
			values are printed along with its trend. Config parameters are
			split into those shared by all runs and those that differ.
		`),
		Example: heredoc.Doc(`
			$ runlens compare ./wandb
			$ runlens compare ./wandb --run abc123 --run def456 --format yaml
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := cliutil.OpenWorkspace(cmd, args[0])
			if err != nil {
				return err
			}

			if failed := ws.ParseSelected(cmd.Context()); failed > 0 {
				ws.Logger.Warn("some runs could not be parsed", "count", failed)
			}

			merged := ws.Registry.MergeMetrics()

			runs := make([]map[string]any, 0)
			for _, runID := range ws.Registry.SelectedRunIDs() {
				scan, _ := ws.Registry.Run(runID)
				_, parsed := ws.Registry.ParsedData(runID)
				runs = append(runs, map[string]any{
					"runId":   runID,
					"runName": scan.RunName,
					"color":   ws.Registry.Color(runID),
					"parsed":  parsed,
				})
			}

			metrics := metricViews(merged.Training)
			if includeSystem {
				metrics = append(metrics, metricViews(merged.System)...)
			}

			return cliutil.HandleOutput(cmd, map[string]any{
				"runs":    runs,
				"metrics": metrics,
				"config":  configView(runcompare.CompareConfigs(ws.SelectedConfigs())),
			})
		},
	}

	cmd.Flags().BoolVar(&includeSystem, "system", false, "Include system metrics")
	cliutil.AddOutputFlags(cmd)
	cliutil.AddRunFlag(cmd)

	return cmd
}

func metricViews(metrics []runmodel.MergedMetric) []any {
	names := make([]string, len(metrics))
	for i, metric := range metrics {
		names[i] = metric.MetricName
	}
	groupOf := make(map[string]string)
	for group, members := range runcompare.GroupMetricsByPrefix(names) {
		for _, name := range members {
			groupOf[name] = group
		}
	}

	views := make([]any, 0, len(metrics))
	for _, metric := range metrics {
		byRun := make(map[string]any)
		for _, dataset := range metric.Datasets {
			summary, ok := runcompare.Summarize(dataset.Data)
			if !ok {
				continue
			}
			byRun[dataset.RunName] = map[string]any{
				"runId":   dataset.RunID,
				"initial": summary.Initial,
				"final":   summary.Final,
				"min":     summary.Min,
				"max":     summary.Max,
				"mean":    summary.Mean,
				"trend":   string(summary.Trend),
				"display": fmt.Sprintf("%s → %s",
					runcompare.FormatNumber(summary.Initial),
					runcompare.FormatNumber(summary.Final)),
			}
		}

		views = append(views, map[string]any{
			"metricName": metric.MetricName,
			"group":      groupOf[metric.MetricName],
			"runs":       byRun,
		})
	}
	return views
}

func configView(comparison runcompare.ConfigComparison) map[string]any {
	differences := make(map[string]any, len(comparison.Differences))
	for key, byRun := range comparison.Differences {
		differences[key] = byRun
	}

	return map[string]any{
		"common":      comparison.Common,
		"differences": differences,
		"totalParams": comparison.TotalParams,
	}
}
