// Package runmodel defines the run data shared by the parser, the scanner
// and the registry.
package runmodel

import "time"

// MetricPoint is one value of a metric at a step.
type MetricPoint struct {
	Step  int64   `json:"step"`
	Value float64 `json:"value"`
}

// MetricSeries is a metric's points, ordered by step once a parse finishes.
type MetricSeries []MetricPoint

// RunConfig maps config keys to decoded JSON values.
type RunConfig map[string]any

// GitInfo identifies a run's code revision.
type GitInfo struct {
	Remote string `json:"remote,omitempty"`
	Commit string `json:"commit,omitempty"`
}

// RunMetadata describes where and how a run executed.
type RunMetadata struct {
	OS          string    `json:"os,omitempty"`
	Python      string    `json:"python,omitempty"`
	Host        string    `json:"host,omitempty"`
	Program     string    `json:"program,omitempty"`
	GPU         string    `json:"gpu,omitempty"`
	GPUCount    int       `json:"gpuCount,omitempty"`
	CPUCount    int       `json:"cpuCount,omitempty"`
	CUDAVersion string    `json:"cudaVersion,omitempty"`
	Git         *GitInfo  `json:"git,omitempty"`
	StartedAt   time.Time `json:"startedAt,omitzero"`

	// ExitCode is nil until the run's exit record is seen.
	ExitCode *int32 `json:"exitCode,omitempty"`

	// RuntimeSeconds is the run's duration as reported on exit.
	RuntimeSeconds int32 `json:"runtimeSeconds,omitempty"`
}

// RunData is everything a full parse extracts from one run.
type RunData struct {
	RunID         string                  `json:"runId"`
	RunName       string                  `json:"runName"`
	Project       string                  `json:"project"`
	Config        RunConfig               `json:"config"`
	Metrics       map[string]MetricSeries `json:"metrics"`
	SystemMetrics map[string]MetricSeries `json:"systemMetrics"`
	Metadata      RunMetadata             `json:"metadata"`

	// SkippedRecords counts records that could not be decoded.
	SkippedRecords int `json:"skippedRecords,omitempty"`
}

// NewRunData returns an empty RunData with initialized maps.
func NewRunData(runID string) *RunData {
	return &RunData{
		RunID:         runID,
		Config:        make(RunConfig),
		Metrics:       make(map[string]MetricSeries),
		SystemMetrics: make(map[string]MetricSeries),
	}
}

// RunScanResult is a run's identity as found by a quick scan.
type RunScanResult struct {
	FilePath     string    `json:"filePath"`
	RunID        string    `json:"runId"`
	RunName      string    `json:"runName"`
	Project      string    `json:"project,omitempty"`
	LastModified time.Time `json:"lastModified"`

	// Visible runs are selected when added to a registry.
	Visible bool `json:"isVisible"`
}

// Dataset is one run's contribution to a merged metric.
type Dataset struct {
	RunID   string       `json:"runId"`
	RunName string       `json:"runName"`
	Color   string       `json:"color"`
	Data    MetricSeries `json:"data"`
}

// MergedMetric is one metric across several runs.
type MergedMetric struct {
	MetricName string    `json:"metricName"`
	Datasets   []Dataset `json:"datasets"`
}

// MergedMetrics holds merged training and system metrics.
type MergedMetrics struct {
	Training []MergedMetric `json:"training"`
	System   []MergedMetric `json:"system"`
}

// ChangeType is the kind of a FileChangeEvent.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
)

// FileChangeEvent reports a run log that appeared, changed or disappeared.
type FileChangeEvent struct {
	Type     ChangeType `json:"type"`
	FilePath string     `json:"filePath"`

	// Scan is set for added and modified events.
	Scan *RunScanResult `json:"runInfo,omitempty"`
}
