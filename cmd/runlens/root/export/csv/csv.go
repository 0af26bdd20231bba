package csv

import (
	"fmt"
	"io"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/wandb/runlens/internal/cliutil"
	"github.com/wandb/runlens/internal/runcompare"
	"github.com/wandb/runlens/internal/runmodel"
)

func NewCSVCmd() *cobra.Command {
	var (
		metricName string
		outputPath string
		maxPoints  int
		system     bool
	)

	cmd := &cobra.Command{
		Use:   "csv <dir>",
		Short: "Export one metric of the selected runs as CSV",
		Long: heredoc.Doc(`
			Write a metric of every selected run as CSV, one row per step and
			one column per run. Steps missing from a run are left empty.
		`),
		Example: heredoc.Doc(`
			$ runlens export csv ./wandb --metric loss
			$ runlens export csv ./wandb --metric gpu.0.gpu --system --max-points 500 -o gpu.csv
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := cliutil.OpenWorkspace(cmd, args[0])
			if err != nil {
				return err
			}
			ws.ParseSelected(cmd.Context())

			merged := ws.Registry.MergeMetrics()
			candidates := merged.Training
			if system {
				candidates = merged.System
			}

			metric, ok := findMetric(candidates, metricName)
			if !ok {
				return fmt.Errorf("no selected run has metric %q", metricName)
			}

			if maxPoints > 0 {
				for i := range metric.Datasets {
					metric.Datasets[i].Data = runcompare.DecimatePoints(metric.Datasets[i].Data, maxPoints)
				}
			}

			var out io.Writer = cmd.OutOrStdout()
			if outputPath != "" {
				file, err := os.Create(outputPath)
				if err != nil {
					return err
				}
				defer file.Close()
				out = file
			}

			if err := runcompare.WriteCSV(out, metric); err != nil {
				return fmt.Errorf("failed to write CSV: %w", err)
			}

			ws.Logger.Debug("exported metric",
				"metric", metricName,
				"runs", len(metric.Datasets))
			return nil
		},
	}

	cmd.Flags().StringVarP(&metricName, "metric", "m", "", "Name of the metric to export")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "File to write instead of stdout")
	cmd.Flags().IntVar(&maxPoints, "max-points", 0, "Decimate each run to at most this many points")
	cmd.Flags().BoolVar(&system, "system", false, "Look the metric up among system metrics")
	cliutil.AddRunFlag(cmd)
	_ = cmd.MarkFlagRequired("metric")

	return cmd
}

func findMetric(metrics []runmodel.MergedMetric, name string) (runmodel.MergedMetric, bool) {
	for _, metric := range metrics {
		if metric.MetricName == name {
			return metric, true
		}
	}
	return runmodel.MergedMetric{}, false
}
