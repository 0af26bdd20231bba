package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	poller "github.com/radovskyb/watcher"
	"golang.org/x/sync/errgroup"

	"github.com/wandb/runlens/internal/observability"
)

type pollingWatcher struct {
	mu sync.Mutex

	logger   *observability.CoreLogger
	delegate *poller.Watcher
	wg       sync.WaitGroup

	// roots maps watched directories to their callbacks.
	roots map[string]func(string)

	isFinished bool

	pollingPeriod time.Duration
}

func newPollingWatcher(params Params) *pollingWatcher {
	if params.PollingPeriod <= 0 {
		params.PollingPeriod = DefaultPollingPeriod
	}

	return &pollingWatcher{
		logger:        observability.OrNoOp(params.Logger),
		roots:         make(map[string]func(string)),
		pollingPeriod: params.PollingPeriod,
	}
}

func (w *pollingWatcher) WatchTree(path string, onChange func(string)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watcher: %v", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isFinished {
		return errors.New("watcher: tried to call WatchTree() after Finish()")
	}

	if w.delegate == nil {
		if err := w.start(); err != nil {
			return err
		}
	}

	if err := w.delegate.AddRecursive(absPath); err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	w.roots[absPath] = onChange

	return nil
}

func (w *pollingWatcher) Finish() {
	w.mu.Lock()
	w.isFinished = true
	delegate := w.delegate
	w.mu.Unlock()

	if delegate != nil {
		delegate.Close()
	}
	w.wg.Wait()
}

// start launches the polling loop and the event loop.
//
// It returns once polling has started or failed to start.
func (w *pollingWatcher) start() error {
	w.delegate = poller.New()

	// The poller may report Create for files that existed before they
	// were added, so callers only learn that a path may have changed.
	w.delegate.FilterOps(
		poller.Create,
		poller.Write,
		poller.Remove,
		poller.Rename,
		poller.Move,
	)

	grp, ctx := errgroup.WithContext(context.Background())
	w.wg.Add(2)

	grp.Go(func() error {
		defer w.wg.Done()
		w.loopEvents(ctx)
		return nil
	})

	grp.Go(func() error {
		defer w.wg.Done()
		return w.delegate.Start(w.pollingPeriod)
	})

	// Close() is a no-op until Start() is looping, so Finish() could hang
	// if it ran before this point.
	started := make(chan struct{})
	go func() {
		w.delegate.Wait()
		close(started)
	}()

	select {
	case <-started:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("watcher: %w", grp.Wait())
	}
}

// loopEvents dispatches events until the poller closes.
//
// ctx is canceled if the poller fails to start, in which case its
// channels never receive anything.
func (w *pollingWatcher) loopEvents(ctx context.Context) {
	for {
		select {
		case event := <-w.delegate.Event:
			if event.FileInfo != nil && event.IsDir() {
				continue
			}

			if event.OldPath != "" && event.OldPath != event.Path {
				w.dispatch(event.OldPath)
			}
			w.dispatch(event.Path)

		case err := <-w.delegate.Error:
			w.logger.CaptureError(fmt.Errorf("watcher: error polling files: %v", err))

		case <-w.delegate.Closed:
			return

		case <-ctx.Done():
			return
		}
	}
}

// dispatch invokes the callback of the watched root containing path.
func (w *pollingWatcher) dispatch(path string) {
	w.mu.Lock()
	var handler func(string)
	longest := -1
	for root, onChange := range w.roots {
		if isWithin(root, path) && len(root) > longest {
			handler = onChange
			longest = len(root)
		}
	}
	w.mu.Unlock()

	if handler != nil {
		handler(path)
	}
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
