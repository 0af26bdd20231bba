package runparse

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/wandb/simplejsonext"
	"gopkg.in/yaml.v3"

	"github.com/wandb/runlens/internal/observability"
	"github.com/wandb/runlens/internal/rundir"
	"github.com/wandb/runlens/internal/runmodel"
	"github.com/wandb/runlens/internal/runrecord"
)

// ApplySidecars fills gaps in a parsed run from its companion files.
//
// Values already extracted from the log are never replaced. Missing or
// unreadable files are skipped.
func ApplySidecars(
	fs afero.Fs,
	run *runmodel.RunData,
	files rundir.Files,
	logger *observability.CoreLogger,
) {
	logger = observability.OrNoOp(logger)

	if files.Metadata != "" {
		if err := applyMetadataFile(fs, run, files.Metadata); err != nil {
			logger.Debug("runparse: skipping metadata file", "error", err)
		}
	}
	if files.Config != "" {
		if err := applyConfigFile(fs, run, files.Config); err != nil {
			logger.Debug("runparse: skipping config file", "error", err)
		}
	}
	if files.Summary != "" {
		if err := applySummaryFile(fs, run, files.Summary); err != nil {
			logger.Debug("runparse: skipping summary file", "error", err)
		}
	}
}

func readJSONObject(fs afero.Fs, path string) (map[string]any, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	obj, err := simplejsonext.UnmarshalObject(data)
	if err != nil {
		return nil, fmt.Errorf("runparse: %s: %v", path, err)
	}
	return obj, nil
}

func applyMetadataFile(fs afero.Fs, run *runmodel.RunData, path string) error {
	obj, err := readJSONObject(fs, path)
	if err != nil {
		return err
	}

	md := &run.Metadata
	str := func(key string) string {
		s, _ := obj[key].(string)
		return s
	}
	num := func(key string) int {
		n, _ := runrecord.AsFinite(obj[key])
		return int(n)
	}

	setIfEmpty(&md.OS, str("os"))
	setIfEmpty(&md.Python, str("python"))
	setIfEmpty(&md.Host, str("host"))
	setIfEmpty(&md.Program, str("program"))
	setIfEmpty(&md.GPU, str("gpu"))
	setIfEmpty(&md.CUDAVersion, str("cudaVersion"))
	if md.GPUCount == 0 {
		md.GPUCount = num("gpu_count")
	}
	if md.CPUCount == 0 {
		md.CPUCount = num("cpu_count")
	}
	if md.StartedAt.IsZero() {
		if t, err := time.Parse(time.RFC3339Nano, str("startedAt")); err == nil {
			md.StartedAt = t
		}
	}

	if git, ok := obj["git"].(map[string]any); ok {
		remote, _ := git["remote"].(string)
		commit, _ := git["commit"].(string)
		if remote != "" || commit != "" {
			if md.Git == nil {
				md.Git = &runmodel.GitInfo{}
			}
			setIfEmpty(&md.Git.Remote, remote)
			setIfEmpty(&md.Git.Commit, commit)
		}
	}
	return nil
}

func applyConfigFile(fs afero.Fs, run *runmodel.RunData, path string) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}

	var config map[string]any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("runparse: %s: %v", path, err)
	}

	for key, value := range config {
		if isInternalConfigKey(key) {
			continue
		}
		if _, exists := run.Config[key]; exists {
			continue
		}
		run.Config[key] = unwrapConfigEntry(value)
	}
	return nil
}

// unwrapConfigEntry unwraps a config.yaml entry, which has the form
// {"desc": ..., "value": X}.
func unwrapConfigEntry(value any) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	inner, ok := m["value"]
	if !ok {
		return value
	}
	for key := range m {
		if key != "value" && key != "desc" {
			return value
		}
	}
	return inner
}

func applySummaryFile(fs afero.Fs, run *runmodel.RunData, path string) error {
	obj, err := readJSONObject(fs, path)
	if err != nil {
		return err
	}

	for key, value := range obj {
		if strings.HasPrefix(key, "_") || !runrecord.IsFiniteScalar(value) {
			continue
		}
		if _, isConfig := run.Config[key]; isConfig {
			continue
		}
		if _, isMetric := run.Metrics[key]; isMetric {
			continue
		}
		if _, exists := run.Config[summaryPrefix+key]; exists {
			continue
		}
		run.Config[summaryPrefix+key] = value
	}
	return nil
}

func isInternalConfigKey(key string) bool {
	return slices.Contains(internalConfigKeys, key)
}
