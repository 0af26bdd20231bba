package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/wandb/runlens/internal/cliutil"
	"github.com/wandb/runlens/internal/runmodel"
	"github.com/wandb/runlens/internal/workspace"
)

const shutdownTimeout = 5 * time.Second

func NewWatchCmd() *cobra.Command {
	var (
		parse       bool
		metricsDump bool
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Follow runs as they are written",
		Long: heredoc.Doc(`
			Watch a directory and print an event whenever a run log is added,
			modified or deleted. Events for a log are delayed until it stops
			changing for the configured debounce period.

			With --parse, the selected runs are parsed again after changes so
			that their cached data stays current.
		`),
		Example: heredoc.Doc(`
			$ runlens watch ./wandb --template '{{.type}} {{.filePath}}'
			$ runlens watch ./wandb --parse --metrics-addr :9090
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := cliutil.WorkspaceParams(cmd)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			params.Registerer = reg

			// Set once the monitor has started.
			var watched atomic.Pointer[workspace.Workspace]
			events := make(chan runmodel.FileChangeEvent, 64)
			onChange := func() {
				if ws := watched.Load(); parse && ws != nil {
					ws.ParseSelected(cmd.Context())
				}
			}

			ws, monitor, err := workspace.Watch(cmd.Context(), args[0], params,
				workspace.MonitorParams{
					OnEvent: func(event runmodel.FileChangeEvent) {
						select {
						case events <- event:
						default:
							params.Logger.Warn("dropped change event", "path", event.FilePath)
						}
					},
					OnChange: onChange,
				})
			if err != nil {
				return err
			}
			defer monitor.Stop()
			watched.Store(ws)

			if addr := cliutil.GetString(cmd, "metrics-addr"); addr != "" {
				stop := serveMetrics(addr, reg, params.Logger.Error)
				defer stop()
			}

			if metricsDump {
				defer func() {
					if err := dumpMetrics(cmd.ErrOrStderr(), reg); err != nil {
						ws.Logger.Error("failed to dump metrics", "error", err)
					}
				}()
			}

			ws.Logger.Info("watching runs",
				"root", args[0],
				"runs", len(ws.Registry.Runs()),
				"debounce", ws.Settings.Debounce)

			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case event := <-events:
					if err := cliutil.HandleOutput(cmd, event); err != nil {
						return err
					}
				}
			}
		},
	}

	cmd.Flags().BoolVar(&parse, "parse", false, "Parse selected runs after they change")
	cmd.Flags().String("metrics-addr", "", "Address to serve Prometheus metrics on, e.g. :9090")
	cmd.Flags().BoolVar(&metricsDump, "metrics-dump", false, "Print metrics to stderr on exit")
	cliutil.AddOutputFlags(cmd)

	return cmd
}

// serveMetrics serves reg over HTTP until the returned function is called.
func serveMetrics(
	addr string,
	reg *prometheus.Registry,
	logError func(msg string, args ...any),
) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logError("metrics server failed", "addr", addr, "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

// dumpMetrics writes the gathered metrics in the Prometheus text format.
func dumpMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := enc.Encode(family); err != nil {
			return err
		}
	}
	return nil
}
