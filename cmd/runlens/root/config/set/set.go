package set

import (
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wandb/runlens/internal/cliutil"
	"github.com/wandb/runlens/internal/settings"
)

func NewSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  `Set a configuration value that will be persisted in the config file.`,
		Example: heredoc.Doc(`
			# Keep up to 50 parsed runs in memory
			$ runlens config set cache_size 50

			# Verify chunk checksums while reading logs
			$ runlens config set verify_checksums true

			# Use a custom run color palette
			$ runlens config set palette "#1f77b4,#ff7f0e,#2ca02c"
		`),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]

			if !settings.IsValidKey(key) {
				return fmt.Errorf("invalid config key: %s. Valid keys are: %v", key, settings.ValidKeys)
			}

			previous := viper.Get(key)
			viper.Set(key, cliutil.ParseSettingValue(value))
			if _, err := cliutil.LoadSettings(); err != nil {
				viper.Set(key, previous)
				return err
			}

			if err := viper.WriteConfig(); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Successfully set %s = %s\n", key, value)
			return nil
		},
	}

	return cmd
}
