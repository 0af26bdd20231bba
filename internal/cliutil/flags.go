package cliutil

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wandb/runlens/internal/settings"
)

// GetString returns a string flag, or the RUNLENS_* environment variable
// named after it if the flag is empty.
func GetString(cmd *cobra.Command, flag string) string {
	value, _ := cmd.Flags().GetString(flag)
	if value != "" {
		return value
	}

	return os.Getenv(EnvName(flag))
}

// EnvName is the environment variable that can stand in for a flag.
func EnvName(flag string) string {
	return settings.EnvPrefix + "_" +
		strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}
