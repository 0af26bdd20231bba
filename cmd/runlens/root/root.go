package root

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/wandb/runlens/cmd/runlens/root/aicontext"
	"github.com/wandb/runlens/cmd/runlens/root/compare"
	"github.com/wandb/runlens/cmd/runlens/root/config"
	"github.com/wandb/runlens/cmd/runlens/root/export"
	"github.com/wandb/runlens/cmd/runlens/root/parse"
	"github.com/wandb/runlens/cmd/runlens/root/scan"
	"github.com/wandb/runlens/cmd/runlens/root/version"
	"github.com/wandb/runlens/cmd/runlens/root/watch"
	"github.com/wandb/runlens/internal/cliutil"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runlens <command>",
		Short: "Inspect W&B runs from their local .wandb logs",
		Long:  `Read W&B transaction logs directly, without a W&B server, to list, compare and export runs.`,
		Example: heredoc.Doc(`
			$ runlens scan ./wandb
			$ runlens compare ./wandb --run abc123 --run def456
			$ runlens context ./wandb > runs.md
		`),
		SilenceUsage: true,
	}

	cliutil.AddLoggingFlags(cmd)

	cmd.AddCommand(scan.NewScanCmd())
	cmd.AddCommand(parse.NewParseCmd())
	cmd.AddCommand(compare.NewCompareCmd())
	cmd.AddCommand(export.NewExportCmd())
	cmd.AddCommand(aicontext.NewContextCmd())
	cmd.AddCommand(watch.NewWatchCmd())
	cmd.AddCommand(version.NewVersionCmd())
	cmd.AddCommand(config.NewConfigCmd())

	return cmd
}
