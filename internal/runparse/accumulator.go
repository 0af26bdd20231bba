// Package runparse rebuilds run data from a W&B transaction log.
package runparse

import (
	"github.com/wandb/runlens/internal/observability"
	"github.com/wandb/runlens/internal/runmodel"
	"github.com/wandb/runlens/internal/runrecord"
)

// reservedHistoryKeys are bookkeeping values the SDK adds to every row.
var reservedHistoryKeys = map[string]struct{}{
	"_step":      {},
	"_runtime":   {},
	"_timestamp": {},
}

// summaryPrefix namespaces summary values stored in the config.
const summaryPrefix = "summary/"

// Accumulator folds decoded records into a RunData.
//
// It is not safe for concurrent use.
type Accumulator struct {
	run    *runmodel.RunData
	logger *observability.CoreLogger
}

// NewAccumulator returns an accumulator for a run whose ID defaults to
// defaultRunID until a run record provides one.
func NewAccumulator(defaultRunID string, logger *observability.CoreLogger) *Accumulator {
	return &Accumulator{
		run:    runmodel.NewRunData(defaultRunID),
		logger: observability.OrNoOp(logger),
	}
}

// Apply updates the run with one record, applying each of its branches
// in order.
func (a *Accumulator) Apply(record *runrecord.Record) {
	for _, branch := range record.Branches {
		a.applyBranch(branch)
	}
}

func (a *Accumulator) applyBranch(branch runrecord.Branch) {
	switch branch := branch.(type) {
	case *runrecord.HistoryRecord:
		a.applyHistory(branch)
	case *runrecord.ConfigRecord:
		a.applyConfig(branch)
	case *runrecord.SummaryRecord:
		a.applySummary(branch)
	case *runrecord.RunRecord:
		a.applyRun(branch)
	case *runrecord.StatsRecord:
		a.applyStats(branch)
	case *runrecord.EnvironmentRecord:
		a.applyEnvironment(branch)
	case *runrecord.ExitRecord:
		a.applyExit(branch)
	}
}

// Skip counts a record that could not be decoded.
func (a *Accumulator) Skip() {
	a.run.SkippedRecords++
}

// Finish post-processes and returns the run.
//
// The accumulator must not be used afterward.
func (a *Accumulator) Finish() *runmodel.RunData {
	run := a.run
	a.run = nil
	PostProcess(run)
	return run
}

func (a *Accumulator) applyHistory(history *runrecord.HistoryRecord) {
	var step int64
	if history.Step != nil {
		step = *history.Step
	}

	for _, item := range history.Items {
		key := item.Path()
		if key == "" || item.ValueJSON == "" {
			continue
		}
		if _, reserved := reservedHistoryKeys[key]; reserved {
			continue
		}

		value, ok := item.Float()
		if !ok {
			continue
		}
		a.run.Metrics[key] = append(a.run.Metrics[key],
			runmodel.MetricPoint{Step: step, Value: value})
	}
}

func (a *Accumulator) applyConfig(config *runrecord.ConfigRecord) {
	for _, item := range config.Update {
		key := item.Path()
		if key == "" || item.ValueJSON == "" {
			continue
		}
		a.run.Config[key] = configValue(item)
	}

	for _, item := range config.Remove {
		if key := item.Path(); key != "" {
			delete(a.run.Config, key)
		}
	}
}

func (a *Accumulator) applySummary(summary *runrecord.SummaryRecord) {
	for _, item := range summary.Update {
		key := item.Path()
		if key == "" || item.ValueJSON == "" {
			continue
		}
		if _, isConfig := a.run.Config[key]; isConfig {
			continue
		}
		if _, isMetric := a.run.Metrics[key]; isMetric {
			continue
		}

		value, err := item.Value()
		if err != nil || !runrecord.IsFiniteScalar(value) {
			continue
		}
		a.run.Config[summaryPrefix+key] = value
	}
}

func (a *Accumulator) applyRun(run *runrecord.RunRecord) {
	if run.Project != "" && a.run.Project == "" {
		a.run.Project = run.Project
	}
	if run.DisplayName != "" && a.run.RunName == "" {
		a.run.RunName = run.DisplayName
	}
	if run.RunID != "" {
		a.run.RunID = run.RunID
	}

	if run.Config != nil {
		for _, item := range run.Config.Update {
			key := item.Path()
			if key == "" || item.ValueJSON == "" {
				continue
			}
			if _, exists := a.run.Config[key]; exists {
				continue
			}
			a.run.Config[key] = configValue(item)
		}
	}

	if run.Host != "" && a.run.Metadata.Host == "" {
		a.run.Metadata.Host = run.Host
	}
	if run.Git != nil {
		a.applyGit(run.Git)
	}
}

func (a *Accumulator) applyStats(stats *runrecord.StatsRecord) {
	for _, item := range stats.Items {
		if item.Key == "" || item.ValueJSON == "" {
			continue
		}
		value, ok := item.Float()
		if !ok {
			continue
		}

		series := a.run.SystemMetrics[item.Key]
		a.run.SystemMetrics[item.Key] = append(series, runmodel.MetricPoint{
			Step:  int64(len(series)),
			Value: value,
		})
	}
}

func (a *Accumulator) applyEnvironment(env *runrecord.EnvironmentRecord) {
	md := &a.run.Metadata

	setIfEmpty(&md.OS, env.OS)
	setIfEmpty(&md.Python, env.Python)
	setIfEmpty(&md.Host, env.Host)
	setIfEmpty(&md.Program, env.Program)
	setIfEmpty(&md.CUDAVersion, env.CUDAVersion)

	gpuType, gpuCount := env.GPUType, int(env.GPUCount)
	if gpuType == "" && len(env.NvidiaGPUs) > 0 {
		gpuType = env.NvidiaGPUs[0].Name
	}
	if gpuCount == 0 {
		gpuCount = len(env.NvidiaGPUs)
	}
	setIfEmpty(&md.GPU, gpuType)
	if md.GPUCount == 0 {
		md.GPUCount = gpuCount
	}
	if md.CPUCount == 0 {
		md.CPUCount = int(env.CPUCount)
	}
	if md.StartedAt.IsZero() {
		md.StartedAt = env.StartedAt
	}

	if env.Git != nil {
		a.applyGit(env.Git)
	}
}

func (a *Accumulator) applyGit(git *runrecord.GitInfo) {
	if git.RemoteURL == "" && git.Commit == "" {
		return
	}
	if a.run.Metadata.Git == nil {
		a.run.Metadata.Git = &runmodel.GitInfo{}
	}
	setIfEmpty(&a.run.Metadata.Git.Remote, git.RemoteURL)
	setIfEmpty(&a.run.Metadata.Git.Commit, git.Commit)
}

func (a *Accumulator) applyExit(exit *runrecord.ExitRecord) {
	code := exit.ExitCode
	a.run.Metadata.ExitCode = &code
	a.run.Metadata.RuntimeSeconds = exit.Runtime
}

// configValue decodes a config value, keeping the raw text if it is not JSON.
func configValue(item runrecord.Item) any {
	value, err := item.Value()
	if err != nil {
		return item.ValueJSON
	}
	return value
}

func setIfEmpty(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}
