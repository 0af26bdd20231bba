package export

import (
	"github.com/spf13/cobra"

	"github.com/wandb/runlens/cmd/runlens/root/export/csv"
)

func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <format>",
		Short: "Export run data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(csv.NewCSVCmd())

	return cmd
}
