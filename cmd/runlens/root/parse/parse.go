package parse

import (
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/wandb/runlens/internal/cliutil"
	"github.com/wandb/runlens/internal/runcompare"
	"github.com/wandb/runlens/internal/rundir"
	"github.com/wandb/runlens/internal/runmodel"
	"github.com/wandb/runlens/internal/runparse"
	"github.com/wandb/runlens/internal/workspace"
)

func NewParseCmd() *cobra.Command {
	var (
		fallbackPath string
		noSidecars   bool
		summaryOnly  bool
	)

	cmd := &cobra.Command{
		Use:   "parse <file|dir>",
		Short: "Parse a single run",
		Long: heredoc.Doc(`
			Fully parse one run log and print its config, metrics and metadata.

			The argument is either a .wandb file or the run directory containing it.
		`),
		Example: heredoc.Doc(`
			$ runlens parse ./wandb/run-20250101_120000-abc123
			$ runlens parse ./wandb/run-20250101_120000-abc123/run-abc123.wandb --summary
			$ runlens parse ./run.wandb --fallback-metrics scraped.json
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := cliutil.WorkspaceParams(cmd)
			if err != nil {
				return err
			}
			params.Fs = afero.NewOsFs()

			logPath, err := resolveLogPath(params.Fs, args[0])
			if err != nil {
				return err
			}

			ws := workspace.New(filepath.Dir(logPath), params)
			ws.Parser.Sidecars = !noSidecars

			scan, err := ws.Scanner.QuickIdentity(cmd.Context(), logPath)
			if err != nil {
				return err
			}

			run, err := ws.Parser.Parse(cmd.Context(), scan)
			if err != nil {
				return err
			}

			if fallbackPath != "" {
				fallback, err := readFallbackMetrics(params.Fs, fallbackPath)
				if err != nil {
					return err
				}
				merged := runparse.MergeFallbackMetrics(run, fallback)
				ws.Logger.Info("merged fallback metrics", "series", merged)
			}

			if summaryOnly {
				return cliutil.HandleOutput(cmd, summarize(run))
			}
			return cliutil.HandleOutput(cmd, run)
		},
	}

	cmd.Flags().StringVar(&fallbackPath, "fallback-metrics", "", "JSON file of metric series to use where the log has none")
	cmd.Flags().BoolVar(&noSidecars, "no-sidecars", false, "Ignore the run's config, metadata and summary files")
	cmd.Flags().BoolVar(&summaryOnly, "summary", false, "Print per-metric statistics instead of every point")
	cliutil.AddOutputFlags(cmd)

	return cmd
}

// resolveLogPath returns the log file named by path, or the log file in
// the run directory at path.
func resolveLogPath(fs afero.Fs, path string) (string, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return "", err
	}

	if !info.IsDir() {
		if !rundir.IsLogFile(path) {
			return "", fmt.Errorf("%s is not a %s file", path, rundir.LogExtension)
		}
		return path, nil
	}

	return rundir.FindLogFile(fs, path)
}

// readFallbackMetrics reads a JSON object mapping metric names to lists
// of {"step", "value"} points.
func readFallbackMetrics(fs afero.Fs, path string) (map[string]runmodel.MetricSeries, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}

	var fallback map[string]runmodel.MetricSeries
	if err := json.Unmarshal(b, &fallback); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return fallback, nil
}

func summarize(run *runmodel.RunData) map[string]any {
	metrics := make(map[string]any)
	for _, name := range slices.Sorted(maps.Keys(run.Metrics)) {
		if summary, ok := runcompare.Summarize(run.Metrics[name]); ok {
			metrics[name] = summaryView(summary, len(run.Metrics[name]))
		}
	}

	return map[string]any{
		"runId":    run.RunID,
		"runName":  run.RunName,
		"project":  run.Project,
		"metrics":  metrics,
		"config":   run.Config,
		"metadata": run.Metadata,
	}
}

func summaryView(summary runcompare.Summary, points int) map[string]any {
	return map[string]any{
		"initial": summary.Initial,
		"final":   summary.Final,
		"min":     summary.Min,
		"max":     summary.Max,
		"mean":    summary.Mean,
		"trend":   string(summary.Trend),
		"points":  points,
	}
}
