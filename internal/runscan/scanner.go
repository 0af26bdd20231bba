// Package runscan discovers run logs and reads their identity cheaply.
package runscan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/wandb/runlens/internal/observability"
	"github.com/wandb/runlens/internal/rundir"
	"github.com/wandb/runlens/internal/runmodel"
	"github.com/wandb/runlens/internal/runrecord"
	"github.com/wandb/runlens/pkg/leveldb"
)

const (
	DefaultQuickScanBytes = 16 * 1024
	DefaultMaxRecords     = 10
	DefaultMaxConcurrency = 8
	DefaultRetryAttempts  = 3
	DefaultRetryDelay     = 50 * time.Millisecond
)

// identityDecoder decodes only run records; all other branches stay opaque.
var identityDecoder = runrecord.NewDecoder(runrecord.KindRun)

type Params struct {
	Fs     afero.Fs
	Logger *observability.CoreLogger

	// QuickScanBytes is the size of the leading window read from each log.
	QuickScanBytes int

	// MaxRecords is the number of records decoded before giving up on
	// finding a run record.
	MaxRecords int

	// MaxConcurrency bounds the directories visited in parallel.
	MaxConcurrency int

	// RetryAttempts and RetryDelay control retries of a failed open.
	RetryAttempts uint
	RetryDelay    time.Duration

	Frame leveldb.Options
}

// Scanner finds runs and reads their identity without a full parse.
type Scanner struct {
	fs     afero.Fs
	logger *observability.CoreLogger

	quickScanBytes int
	maxRecords     int
	maxConcurrency int
	retryAttempts  uint
	retryDelay     time.Duration
	frame          leveldb.Options
}

func New(params Params) *Scanner {
	s := &Scanner{
		fs:             params.Fs,
		logger:         observability.OrNoOp(params.Logger),
		quickScanBytes: params.QuickScanBytes,
		maxRecords:     params.MaxRecords,
		maxConcurrency: params.MaxConcurrency,
		retryAttempts:  params.RetryAttempts,
		retryDelay:     params.RetryDelay,
		frame:          params.Frame,
	}

	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.quickScanBytes <= 0 {
		s.quickScanBytes = DefaultQuickScanBytes
	}
	if s.maxRecords <= 0 {
		s.maxRecords = DefaultMaxRecords
	}
	if s.maxConcurrency <= 0 {
		s.maxConcurrency = DefaultMaxConcurrency
	}
	if s.retryAttempts == 0 {
		s.retryAttempts = DefaultRetryAttempts
	}
	if s.retryDelay <= 0 {
		s.retryDelay = DefaultRetryDelay
	}

	return s
}

// QuickIdentity returns the identity of the run whose log is at path.
//
// Only a leading window of the file is read. If no run record is found
// in it, the identity is derived from the file name. An error is returned
// only if the file cannot be read at all.
func (s *Scanner) QuickIdentity(
	ctx context.Context,
	path string,
) (runmodel.RunScanResult, error) {
	window, modTime, err := s.readWindow(ctx, path)
	if err != nil {
		return runmodel.RunScanResult{}, err
	}

	fileRunID := rundir.RunIDFromFileName(path)
	result := runmodel.RunScanResult{
		FilePath:     path,
		RunID:        fileRunID,
		RunName:      fileRunID,
		LastModified: modTime,
		Visible:      true,
	}

	run := s.findRunRecord(window)
	if run == nil {
		return result, nil
	}

	if run.RunID != "" {
		result.RunID = run.RunID
	}
	result.Project = run.Project

	switch {
	case run.DisplayName != "":
		result.RunName = run.DisplayName
	case run.RunID != "":
		result.RunName = run.RunID
	}

	return result, nil
}

// readWindow reads up to quickScanBytes from the start of the file.
//
// A file that is shorter than the window is not an error.
func (s *Scanner) readWindow(
	ctx context.Context,
	path string,
) ([]byte, time.Time, error) {
	var window []byte
	var modTime time.Time

	err := retry.Do(
		func() error {
			info, err := s.fs.Stat(path)
			if err != nil {
				return err
			}

			f, err := s.fs.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			buf := make([]byte, min(int64(s.quickScanBytes), info.Size()))
			n, err := io.ReadFull(f, buf)
			if err != nil &&
				!errors.Is(err, io.EOF) &&
				!errors.Is(err, io.ErrUnexpectedEOF) {
				return err
			}

			window = buf[:n]
			modTime = info.ModTime()
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.retryAttempts),
		retry.Delay(s.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, fs.ErrNotExist)
		}),
	)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("runscan: reading %s: %w", path, err)
	}

	return window, modTime, nil
}

// findRunRecord returns the first run record in the window, if any.
func (s *Scanner) findRunRecord(window []byte) *runrecord.RunRecord {
	reader, err := leveldb.NewReader(window, s.frame)
	if err != nil {
		return nil
	}

	for range s.maxRecords {
		payload, err := reader.Next()
		if err != nil {
			return nil
		}

		record, err := identityDecoder.Decode(payload)
		if err != nil {
			continue
		}

		if run := record.Run(); run != nil {
			return run
		}
	}

	return nil
}

// ScanDir finds every run directory under root and reads its identity.
//
// A directory that contains a log file is a run directory and is not
// descended into. Errors below root are logged and skipped. Results are
// ordered by run directory timestamp, newest first.
func (s *Scanner) ScanDir(
	ctx context.Context,
	root string,
) ([]runmodel.RunScanResult, error) {
	if _, err := afero.ReadDir(s.fs, root); err != nil {
		return nil, fmt.Errorf("runscan: %w", err)
	}

	g := &errgroup.Group{}
	g.SetLimit(s.maxConcurrency)

	var mu sync.Mutex
	var results []runmodel.RunScanResult

	var visit func(dir string)
	visit = func(dir string) {
		if ctx.Err() != nil {
			return
		}

		if logPath, err := rundir.FindLogFile(s.fs, dir); err == nil {
			result, err := s.QuickIdentity(ctx, logPath)
			if err != nil {
				s.logger.Warn("runscan: skipping run", "path", logPath, "error", err)
				return
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return
		}

		entries, err := afero.ReadDir(s.fs, dir)
		if err != nil {
			s.logger.Warn("runscan: skipping directory", "path", dir, "error", err)
			return
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			subdir := filepath.Join(dir, entry.Name())
			task := func() error {
				visit(subdir)
				return nil
			}

			// Visit inline when the group is full so that a deep tree
			// cannot exhaust the limit with blocked parents.
			if !g.TryGo(task) {
				_ = task()
			}
		}
	}

	visit(root)
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b runmodel.RunScanResult) int {
		return rundir.CompareLogPaths(a.FilePath, b.FilePath)
	})
	return results, nil
}
