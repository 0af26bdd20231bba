// Package runmonitor keeps a run registry in sync with a directory tree.
package runmonitor

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/wandb/runlens/internal/debounce"
	"github.com/wandb/runlens/internal/observability"
	"github.com/wandb/runlens/internal/rundir"
	"github.com/wandb/runlens/internal/runmodel"
	"github.com/wandb/runlens/internal/runregistry"
	"github.com/wandb/runlens/internal/runscan"
	"github.com/wandb/runlens/internal/watcher"
)

const (
	// DefaultQuietPeriod is how long a log must stop changing before it
	// is looked at again.
	DefaultQuietPeriod = 1500 * time.Millisecond

	// DefaultNotifyRate bounds calls to OnChange per second.
	DefaultNotifyRate = 2

	notifyTick = 100 * time.Millisecond
)

type Params struct {
	Fs       afero.Fs
	Logger   *observability.CoreLogger
	Registry *runregistry.Registry
	Scanner  *runscan.Scanner
	Watcher  watcher.Watcher

	// QuietPeriod is the debounce applied to each changed log.
	QuietPeriod time.Duration

	// NotifyRate is the maximum rate of OnChange calls.
	NotifyRate rate.Limit

	// OnEvent, if set, is called with each change applied to the registry.
	OnEvent func(runmodel.FileChangeEvent)

	// OnChange, if set, is called at a limited rate after the registry
	// changed.
	OnChange func()
}

// Monitor applies file changes below a directory to a registry.
type Monitor struct {
	fs       afero.Fs
	logger   *observability.CoreLogger
	registry *runregistry.Registry
	scanner  *runscan.Scanner
	watcher  watcher.Watcher

	onEvent  func(runmodel.FileChangeEvent)
	onChange func()

	coalescer *debounce.Coalescer
	notifier  *debounce.Debouncer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
}

func New(params Params) *Monitor {
	if params.Fs == nil {
		params.Fs = afero.NewOsFs()
	}
	if params.QuietPeriod <= 0 {
		params.QuietPeriod = DefaultQuietPeriod
	}
	if params.NotifyRate <= 0 {
		params.NotifyRate = DefaultNotifyRate
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		fs:       params.Fs,
		logger:   observability.OrNoOp(params.Logger),
		registry: params.Registry,
		scanner:  params.Scanner,
		watcher:  params.Watcher,
		onEvent:  params.OnEvent,
		onChange: params.OnChange,
		ctx:      ctx,
		cancel:   cancel,
	}

	m.notifier = debounce.NewDebouncer(params.NotifyRate, 1, m.logger)
	m.coalescer = debounce.NewCoalescer(params.QuietPeriod, m.refresh)

	return m
}

// Start adds the runs below root to the registry and starts watching it.
func (m *Monitor) Start(ctx context.Context, root string) error {
	runs, err := m.scanner.ScanDir(ctx, root)
	if err != nil {
		return err
	}

	for _, run := range runs {
		m.registry.AddRun(run)
	}
	m.logger.Info("runmonitor: initial scan done", "root", root, "runs", len(runs))
	m.notifier.MarkDirty()

	if err := m.watcher.WatchTree(root, m.onPath); err != nil {
		return err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.notifyLoop()
	}()

	return nil
}

// Stop stops watching and applies changes that are still pending.
//
// OnChange runs a final time if the registry changed since its last call.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.watcher.Finish()
		m.coalescer.Flush()
		m.coalescer.Stop()

		m.cancel()
		m.wg.Wait()

		m.notifier.Flush(m.notify)
		m.notifier.Stop()
	})
}

func (m *Monitor) onPath(path string) {
	if !rundir.IsLogFile(path) {
		return
	}
	m.coalescer.Add(path)
}

func (m *Monitor) notifyLoop() {
	ticker := time.NewTicker(notifyTick)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.notifier.Debounce(m.notify)
		}
	}
}

func (m *Monitor) notify() {
	if m.onChange != nil {
		m.onChange()
	}
}

// refresh applies the current state of a log file to the registry.
func (m *Monitor) refresh(path string) {
	event, ok := m.classify(path)
	if !ok {
		return
	}

	m.logger.Debug("runmonitor: run changed", "path", path, "type", event.Type)
	m.registry.HandleEvent(event)
	if m.onEvent != nil {
		m.onEvent(event)
	}
	m.notifier.MarkDirty()
}

// classify compares a log file to what the registry knows about it.
func (m *Monitor) classify(path string) (runmodel.FileChangeEvent, bool) {
	known, isKnown := m.registry.RunByPath(path)

	info, err := m.fs.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if !isKnown {
			return runmodel.FileChangeEvent{}, false
		}
		return runmodel.FileChangeEvent{
			Type:     runmodel.ChangeDeleted,
			FilePath: path,
		}, true

	case err != nil:
		m.logger.Warn("runmonitor: cannot stat log", "path", path, "error", err)
		return runmodel.FileChangeEvent{}, false
	}

	changeType := runmodel.ChangeAdded
	if isKnown {
		if !info.ModTime().After(known.LastModified) {
			return runmodel.FileChangeEvent{}, false
		}
		changeType = runmodel.ChangeModified
	}

	scan, err := m.scanner.QuickIdentity(m.ctx, path)
	if err != nil {
		m.logger.Warn("runmonitor: cannot read log", "path", path, "error", err)
		return runmodel.FileChangeEvent{}, false
	}

	return runmodel.FileChangeEvent{
		Type:     changeType,
		FilePath: path,
		Scan:     &scan,
	}, true
}
