// Package rundir knows the layout of W&B run directories.
package rundir

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const (
	// LogExtension is the suffix of transaction log files.
	LogExtension = ".wandb"

	// FilesDir holds a run's companion files.
	FilesDir = "files"

	OutputLogName = "output.log"
	MetadataName  = "wandb-metadata.json"
	ConfigName    = "config.yaml"
	SummaryName   = "wandb-summary.json"

	runPrefix        = "run-"
	offlineRunPrefix = "offline-run-"
	timestampLayout  = "20060102_150405"
)

// ErrNoLogFile is returned for directories without a .wandb file.
var ErrNoLogFile = errors.New("rundir: no .wandb file found")

// IsLogFile reports whether path names a transaction log.
func IsLogFile(path string) bool {
	return strings.HasSuffix(path, LogExtension)
}

// FindLogFile returns the first .wandb file in dir, by name.
func FindLogFile(fs afero.Fs, dir string) (string, error) {
	info, err := fs.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("rundir: cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("rundir: path is not a directory: %s", dir)
	}

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return "", fmt.Errorf("rundir: cannot read directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && IsLogFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoLogFile, dir)
	}

	slices.Sort(names)
	return filepath.Join(dir, names[0]), nil
}

// IsRunDirectory reports whether dir directly contains a .wandb file.
func IsRunDirectory(fs afero.Fs, dir string) bool {
	_, err := FindLogFile(fs, dir)
	return err == nil
}

// Files are the paths of a run directory's files.
//
// Missing companion files have empty paths.
type Files struct {
	LogFile   string
	OutputLog string
	Metadata  string
	Config    string
	Summary   string
}

// CompanionFiles locates the files of the run directory dir.
func CompanionFiles(fs afero.Fs, dir string) Files {
	files := Files{}
	files.LogFile, _ = FindLogFile(fs, dir)

	existing := func(name string) string {
		path := filepath.Join(dir, FilesDir, name)
		if ok, _ := afero.Exists(fs, path); ok {
			return path
		}
		return ""
	}

	files.OutputLog = existing(OutputLogName)
	files.Metadata = existing(MetadataName)
	files.Config = existing(ConfigName)
	files.Summary = existing(SummaryName)
	return files
}

// CompanionFilesOf locates the companion files of the run whose log is at
// logPath.
func CompanionFilesOf(fs afero.Fs, logPath string) Files {
	files := CompanionFiles(fs, filepath.Dir(logPath))
	files.LogFile = logPath
	return files
}

// RunIDFromFileName derives a run ID from a log file name.
//
// "run-abc123.wandb" becomes "abc123".
func RunIDFromFileName(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), LogExtension)
	return strings.TrimPrefix(name, runPrefix)
}

// ParseRunDirTimestamp extracts the timestamp from a run directory name.
//
// Expected formats: "run-YYYYMMDD_HHMMSS-runid" or
// "offline-run-YYYYMMDD_HHMMSS-runid". Returns zero time if parsing fails.
func ParseRunDirTimestamp(name string) time.Time {
	var rest string
	if after, ok := strings.CutPrefix(name, offlineRunPrefix); ok {
		rest = after
	} else if after, ok := strings.CutPrefix(name, runPrefix); ok {
		rest = after
	} else {
		return time.Time{}
	}

	if len(rest) < len(timestampLayout) {
		return time.Time{}
	}

	t, err := time.Parse(timestampLayout, rest[:len(timestampLayout)])
	if err != nil {
		return time.Time{}
	}
	return t
}

// CompareLogPaths orders log files by their run directory's timestamp,
// most recent first, then by path.
func CompareLogPaths(a, b string) int {
	ta := ParseRunDirTimestamp(filepath.Base(filepath.Dir(a)))
	tb := ParseRunDirTimestamp(filepath.Base(filepath.Dir(b)))
	if c := tb.Compare(ta); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}
