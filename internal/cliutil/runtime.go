package cliutil

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wandb/runlens/internal/observability"
	"github.com/wandb/runlens/internal/sentry_ext"
	"github.com/wandb/runlens/internal/settings"
	"github.com/wandb/runlens/internal/version"
	"github.com/wandb/runlens/internal/workspace"
)

// AddLoggingFlags registers the persistent flags read by NewCommandLogger.
func AddLoggingFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "text", "Log format (text or json)")
}

// LoadSettings resolves the settings of the global viper instance.
func LoadSettings() (settings.Settings, error) {
	return settings.Load(viper.GetViper())
}

// NewCommandLogger returns a logger configured by the command's flags.
//
// Errors are sent to Sentry if error reporting is enabled.
func NewCommandLogger(cmd *cobra.Command, cfg settings.Settings) (*observability.CoreLogger, error) {
	var sentryClient *sentry_ext.Client
	if cfg.ErrorReporting && cfg.SentryDSN != "" {
		sentryClient = sentry_ext.New(sentry_ext.Params{
			DSN:         cfg.SentryDSN,
			Release:     version.Version,
			Commit:      version.Commit,
			Environment: version.Environment(),
		})
	}

	return NewLogger(cmd.ErrOrStderr(), LoggerParams{
		Format: GetString(cmd, "log-format"),
		Level:  GetString(cmd, "log-level"),
		Sentry: sentryClient,
	})
}

// WorkspaceParams returns the settings and logger for a command.
func WorkspaceParams(cmd *cobra.Command) (workspace.Params, error) {
	cfg, err := LoadSettings()
	if err != nil {
		return workspace.Params{}, err
	}

	logger, err := NewCommandLogger(cmd, cfg)
	if err != nil {
		return workspace.Params{}, err
	}

	return workspace.Params{Settings: cfg, Logger: logger}, nil
}

// OpenWorkspace scans root and selects the runs named by the --run flag.
func OpenWorkspace(cmd *cobra.Command, root string) (*workspace.Workspace, error) {
	params, err := WorkspaceParams(cmd)
	if err != nil {
		return nil, err
	}

	ws, err := workspace.Open(cmd.Context(), root, params)
	if err != nil {
		return nil, err
	}

	runIDs, _ := cmd.Flags().GetStringSlice("run")
	if err := ws.Select(runIDs); err != nil {
		return nil, err
	}
	return ws, nil
}

// AddRunFlag registers the --run flag read by OpenWorkspace.
func AddRunFlag(cmd *cobra.Command) {
	cmd.Flags().StringSlice("run", nil, "Run IDs to include (default: all visible runs)")
}
