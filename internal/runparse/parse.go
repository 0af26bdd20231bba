package runparse

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/wandb/runlens/internal/observability"
	"github.com/wandb/runlens/internal/rundir"
	"github.com/wandb/runlens/internal/runmodel"
	"github.com/wandb/runlens/internal/runrecord"
	"github.com/wandb/runlens/pkg/leveldb"
)

// Options configures a parse.
type Options struct {
	// Frame configures the log framing reader.
	Frame leveldb.Options

	// Logger receives debug messages about skipped records.
	Logger *observability.CoreLogger
}

// ParseBytes rebuilds a run from the contents of a log file.
//
// It fails only if the buffer is not a W&B log. Records that fail to
// decode are skipped and counted in RunData.SkippedRecords.
func ParseBytes(buf []byte, defaultRunID string, opts Options) (*runmodel.RunData, error) {
	reader, err := leveldb.NewReader(buf, opts.Frame)
	if err != nil {
		return nil, fmt.Errorf("runparse: %w", err)
	}

	logger := observability.OrNoOp(opts.Logger)
	acc := NewAccumulator(defaultRunID, logger)

	for {
		payload, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		record, err := runrecord.Decode(payload)
		if err != nil {
			logger.Debug("runparse: skipping record", "error", err, "offset", reader.Offset())
			acc.Skip()
			continue
		}
		acc.Apply(record)
	}

	if stats := reader.Stats(); stats.Resyncs > 0 || stats.Truncated {
		logger.Debug(
			"runparse: log was damaged or incomplete",
			"resyncs", stats.Resyncs,
			"dropped_chunks", stats.DroppedChunks,
			"truncated", stats.Truncated,
		)
	}

	return acc.Finish(), nil
}

// ParseFile reads and parses the log at path.
//
// The run ID defaults to one derived from the file name.
func ParseFile(fs afero.Fs, path string, opts Options) (*runmodel.RunData, error) {
	buf, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("runparse: reading %s: %w", path, err)
	}

	run, err := ParseBytes(buf, rundir.RunIDFromFileName(path), opts)
	if err != nil {
		return nil, fmt.Errorf("runparse: %s: %w", path, errors.Unwrap(err))
	}
	return run, nil
}

// FileParser parses run logs and their companion files.
type FileParser struct {
	Fs      afero.Fs
	Options Options

	// Sidecars enables reading a run's companion files.
	Sidecars bool
}

// Parse reads the run whose log is at scan.FilePath.
func (p *FileParser) Parse(
	ctx context.Context,
	scan runmodel.RunScanResult,
) (*runmodel.RunData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run, err := ParseFile(p.Fs, scan.FilePath, p.Options)
	if err != nil {
		return nil, err
	}

	if run.RunName == "" {
		run.RunName = scan.RunName
	}

	if p.Sidecars {
		ApplySidecars(
			p.Fs,
			run,
			rundir.CompanionFilesOf(p.Fs, scan.FilePath),
			p.Options.Logger,
		)
	}
	return run, nil
}
