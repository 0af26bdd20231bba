package aicontext

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/wandb/runlens/internal/cliutil"
	"github.com/wandb/runlens/internal/runcompare"
)

func NewContextCmd() *cobra.Command {
	var opts runcompare.ReportOptions

	cmd := &cobra.Command{
		Use:   "context <dir>",
		Short: "Describe runs as markdown for an AI assistant",
		Long: heredoc.Doc(`
			Parse the selected runs and print a markdown report with a run
			table, the config comparison, metric summaries, full metric data
			as CSV and references to each run's files.
		`),
		Example: heredoc.Doc(`
			$ runlens context ./wandb > runs.md
			$ runlens context ./wandb --run abc123 --max-summary-metrics 5
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := cliutil.OpenWorkspace(cmd, args[0])
			if err != nil {
				return err
			}
			ws.ParseSelected(cmd.Context())

			opts.FolderPath, err = filepath.Abs(args[0])
			if err != nil {
				return err
			}
			opts.Now = time.Now()

			report := runcompare.ContextReport(ws.ReportRuns(), opts)
			if _, err := fmt.Fprint(cmd.OutOrStdout(), report); err != nil {
				return err
			}

			ws.Logger.Info("generated context report",
				"runs", len(ws.Registry.SelectedRunIDs()),
				"estimated_tokens", runcompare.EstimateTokens(report))
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.MaxSummaryMetrics, "max-summary-metrics", runcompare.DefaultMaxSummaryMetrics, "Metrics to summarize")
	cmd.Flags().IntVar(&opts.MaxDetailedMetrics, "max-detailed-metrics", runcompare.DefaultMaxDetailedMetrics, "Metrics to include as CSV")
	cmd.Flags().IntVar(&opts.MaxCommonParams, "max-common-params", runcompare.DefaultMaxCommonParams, "Shared config parameters to list")
	cliutil.AddRunFlag(cmd)

	return cmd
}
