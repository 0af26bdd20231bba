package scan

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/wandb/runlens/internal/cliutil"
	"github.com/wandb/runlens/internal/runmodel"
)

type runView struct {
	runmodel.RunScanResult
	Color    string `json:"color"`
	Selected bool   `json:"selected"`
}

func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <dir>",
		Short: "List the runs in a directory",
		Long:  `Find every run log below a directory and read each run's identity without parsing the whole log.`,
		Example: heredoc.Doc(`
			$ runlens scan ./wandb
			$ runlens scan ./wandb --template '{{range .}}{{.runId}} {{.runName}}{{"\n"}}{{end}}'
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := cliutil.OpenWorkspace(cmd, args[0])
			if err != nil {
				return err
			}

			runs := ws.Registry.Runs()
			views := make([]runView, len(runs))
			for i, run := range runs {
				views[i] = runView{
					RunScanResult: run,
					Color:         ws.Registry.Color(run.RunID),
					Selected:      ws.Registry.IsSelected(run.RunID),
				}
			}

			return cliutil.HandleOutput(cmd, views)
		},
	}

	cliutil.AddOutputFlags(cmd)
	cliutil.AddRunFlag(cmd)

	return cmd
}
