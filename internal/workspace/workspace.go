// Package workspace wires the scanner, parser and registry for a
// directory of runs.
package workspace

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/wandb/runlens/internal/observability"
	"github.com/wandb/runlens/internal/runcompare"
	"github.com/wandb/runlens/internal/runmodel"
	"github.com/wandb/runlens/internal/runmonitor"
	"github.com/wandb/runlens/internal/runparse"
	"github.com/wandb/runlens/internal/runregistry"
	"github.com/wandb/runlens/internal/runscan"
	"github.com/wandb/runlens/internal/settings"
	"github.com/wandb/runlens/internal/watcher"
)

type Params struct {
	Settings settings.Settings
	Logger   *observability.CoreLogger

	// Fs defaults to the OS filesystem.
	Fs afero.Fs

	// Registerer receives the registry's metrics, if set.
	Registerer prometheus.Registerer
}

// Workspace is the set of runs below a root directory.
type Workspace struct {
	Root     string
	Settings settings.Settings
	Logger   *observability.CoreLogger

	Fs       afero.Fs
	Scanner  *runscan.Scanner
	Parser   *runparse.FileParser
	Registry *runregistry.Registry
	Metrics  *runregistry.Metrics
}

// New returns a workspace for root without scanning it.
//
// Its registry is empty and has the configured cache size.
func New(root string, params Params) *Workspace {
	w := newWorkspace(root, params)
	w.Registry = w.newRegistry(w.Settings.CacheSize)
	return w
}

func newWorkspace(root string, params Params) *Workspace {
	if params.Fs == nil {
		params.Fs = afero.NewOsFs()
	}
	logger := observability.OrNoOp(params.Logger)
	cfg := params.Settings

	return &Workspace{
		Root:     root,
		Settings: cfg,
		Logger:   logger,
		Fs:       params.Fs,
		Scanner: runscan.New(runscan.Params{
			Fs:             params.Fs,
			Logger:         logger,
			QuickScanBytes: cfg.QuickScanBytes,
			MaxRecords:     cfg.QuickScanMaxRecords,
			MaxConcurrency: cfg.MaxConcurrentScans,
			Frame:          cfg.FrameOptions(),
		}),
		Parser: &runparse.FileParser{
			Fs: params.Fs,
			Options: runparse.Options{
				Frame:  cfg.FrameOptions(),
				Logger: logger,
			},
			Sidecars: true,
		},
		Metrics: runregistry.NewMetrics(params.Registerer),
	}
}

func (w *Workspace) newRegistry(cacheSize int) *runregistry.Registry {
	return runregistry.New(runregistry.Params{
		Parser:              w.Parser,
		Logger:              w.Logger,
		CacheSize:           cacheSize,
		Palette:             w.Settings.Palette,
		MaxConcurrentParses: w.Settings.MaxConcurrentParses,
		Metrics:             w.Metrics,
	})
}

// Open scans root and adds its runs to a new registry.
//
// The registry's cache is large enough to hold every run found, so that
// all of them can be parsed and compared at once.
func Open(ctx context.Context, root string, params Params) (*Workspace, error) {
	w := newWorkspace(root, params)

	runs, err := w.Scanner.ScanDir(ctx, root)
	if err != nil {
		return nil, err
	}

	w.Registry = w.newRegistry(max(w.Settings.CacheSize, len(runs)))
	for _, run := range runs {
		w.Registry.AddRun(run)
	}

	w.Logger.Debug("workspace: opened", "root", root, "runs", len(runs))
	return w, nil
}

// MonitorParams configures Watch.
type MonitorParams struct {
	Watcher  watcher.Watcher
	OnEvent  func(runmodel.FileChangeEvent)
	OnChange func()
}

// Watch returns a workspace whose registry follows changes below root.
//
// The registry's cache has the configured size. The returned monitor has
// been started and must be stopped by the caller.
func Watch(
	ctx context.Context,
	root string,
	params Params,
	monitorParams MonitorParams,
) (*Workspace, *runmonitor.Monitor, error) {
	w := New(root, params)

	fileWatcher := monitorParams.Watcher
	if fileWatcher == nil {
		fileWatcher = watcher.New(watcher.Params{
			Logger:        w.Logger,
			PollingPeriod: w.Settings.PollInterval,
		})
	}

	monitor := runmonitor.New(runmonitor.Params{
		Fs:          w.Fs,
		Logger:      w.Logger,
		Registry:    w.Registry,
		Scanner:     w.Scanner,
		Watcher:     fileWatcher,
		QuietPeriod: w.Settings.Debounce,
		NotifyRate:  rate.Limit(w.Settings.NotifyRate),
		OnEvent:     monitorParams.OnEvent,
		OnChange:    monitorParams.OnChange,
	})

	if err := monitor.Start(ctx, root); err != nil {
		monitor.Stop()
		return nil, nil, err
	}
	return w, monitor, nil
}

// Select narrows the selection to the given runs.
//
// An empty list keeps the default selection. Repeated IDs are ignored, and
// an unknown ID leaves the selection unchanged.
func (w *Workspace) Select(runIDs []string) error {
	if len(runIDs) == 0 {
		return nil
	}

	for _, runID := range runIDs {
		if _, ok := w.Registry.Run(runID); !ok {
			return fmt.Errorf("workspace: unknown run %q", runID)
		}
	}

	w.Registry.DeselectAll()
	for _, runID := range runIDs {
		if !w.Registry.IsSelected(runID) {
			w.Registry.ToggleRun(runID)
		}
	}
	return nil
}

// ParseSelected parses the selected runs and logs those that fail.
//
// It returns the number of failures.
func (w *Workspace) ParseSelected(ctx context.Context) int {
	errs := w.Registry.ParseSelected(ctx)
	for _, runID := range slices.Sorted(maps.Keys(errs)) {
		w.Logger.Warn("workspace: failed to parse run", "run_id", runID, "error", errs[runID])
	}
	return len(errs)
}

// ReportRuns returns the selected runs with their parsed data.
func (w *Workspace) ReportRuns() []runcompare.ReportRun {
	var runs []runcompare.ReportRun
	for _, scan := range w.Registry.Runs() {
		if !w.Registry.IsSelected(scan.RunID) {
			continue
		}

		data, _ := w.Registry.ParsedData(scan.RunID)
		runs = append(runs, runcompare.ReportRun{Scan: scan, Data: data})
	}
	return runs
}

// SelectedConfigs returns the config of each parsed selected run.
func (w *Workspace) SelectedConfigs() map[string]runmodel.RunConfig {
	configs := make(map[string]runmodel.RunConfig)
	for _, runID := range w.Registry.SelectedRunIDs() {
		if data, ok := w.Registry.ParsedData(runID); ok {
			configs[runID] = data.Config
		}
	}
	return configs
}
