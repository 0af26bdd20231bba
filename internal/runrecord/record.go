// Package runrecord decodes W&B transaction log records.
//
// Only the branches that carry run data are decoded field by field.
// The remaining branches are recognized by field number and kept as
// opaque payloads.
package runrecord

import "time"

// Kind identifies which branch of a Record is populated.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindHistory
	KindSummary
	KindOutput
	KindConfig
	KindFiles
	KindStats
	KindArtifact
	KindTBRecord
	KindAlert
	KindTelemetry
	KindMetric
	KindOutputRaw
	KindRun
	KindExit
	KindFinal
	KindHeader
	KindFooter
	KindPreempting
	KindUseArtifact
	KindEnvironment
	KindRequest
)

var kindNames = map[Kind]string{
	KindUnknown:     "unknown",
	KindHistory:     "history",
	KindSummary:     "summary",
	KindOutput:      "output",
	KindConfig:      "config",
	KindFiles:       "files",
	KindStats:       "stats",
	KindArtifact:    "artifact",
	KindTBRecord:    "tbrecord",
	KindAlert:       "alert",
	KindTelemetry:   "telemetry",
	KindMetric:      "metric",
	KindOutputRaw:   "output_raw",
	KindRun:         "run",
	KindExit:        "exit",
	KindFinal:       "final",
	KindHeader:      "header",
	KindFooter:      "footer",
	KindPreempting:  "preempting",
	KindUseArtifact: "use_artifact",
	KindEnvironment: "environment",
	KindRequest:     "request",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Record is one decoded log entry.
type Record struct {
	// Num is the record's sequence number, or zero if unset.
	Num int64

	// UUID is the record's identifier, or empty if unset.
	UUID string

	// Branches are the populated branches in wire order.
	//
	// Producers populate one branch per record, but each one present is
	// kept and applied.
	Branches []Branch
}

// Kind returns the kind of the first populated branch.
func (r *Record) Kind() Kind {
	if len(r.Branches) == 0 {
		return KindUnknown
	}
	return r.Branches[0].Kind()
}

// Run returns the first run branch if present.
func (r *Record) Run() *RunRecord {
	for _, branch := range r.Branches {
		if run, ok := branch.(*RunRecord); ok {
			return run
		}
	}
	return nil
}

// Branch is the sum of record payload types.
type Branch interface {
	Kind() Kind
	isBranch()
}

// Item is a key-value entry of a history, config or summary record.
type Item struct {
	Key       string
	NestedKey []string
	ValueJSON string
}

// HistoryRecord is one call to run.log().
type HistoryRecord struct {
	Items []Item

	// Step is nil when the producer did not set a step.
	Step *int64
}

// ConfigRecord updates and removes run config keys.
type ConfigRecord struct {
	Update []Item
	Remove []Item
}

// SummaryRecord updates and removes run summary keys.
type SummaryRecord struct {
	Update []Item
	Remove []Item
}

// StatsItem is one system metric sample.
type StatsItem struct {
	Key       string
	ValueJSON string
}

// StatsRecord is a batch of system metrics sampled together.
type StatsRecord struct {
	StatsType int32
	Timestamp time.Time
	Items     []StatsItem
}

// GitInfo identifies the code revision of a run.
type GitInfo struct {
	RemoteURL string
	Commit    string
}

// RunRecord carries the run's identity.
type RunRecord struct {
	RunID       string
	Entity      string
	Project     string
	Config      *ConfigRecord
	Summary     *SummaryRecord
	RunGroup    string
	JobType     string
	DisplayName string
	Notes       string
	Tags        []string
	SweepID     string
	Host        string
	StartTime   time.Time
	Git         *GitInfo
}

// GPUInfo describes one accelerator.
type GPUInfo struct {
	Name        string
	MemoryTotal uint64
}

// EnvironmentRecord describes the machine a run executed on.
type EnvironmentRecord struct {
	OS          string
	Python      string
	StartedAt   time.Time
	Program     string
	CodePath    string
	Git         *GitInfo
	Email       string
	Root        string
	Host        string
	Username    string
	Executable  string
	CPUCount    uint32
	CPUCountLog uint32
	GPUType     string
	GPUCount    uint32
	MemoryTotal uint64
	NvidiaGPUs  []GPUInfo
	CUDAVersion string
}

// ExitRecord marks the end of a run.
type ExitRecord struct {
	ExitCode int32
	Runtime  int32
}

// HeaderRecord is the first record of a log.
type HeaderRecord struct {
	Producer    string
	MinConsumer string
}

// TelemetryRecord carries SDK version information.
type TelemetryRecord struct {
	PythonVersion string
	CLIVersion    string
}

// OutputRecord is one line of console output.
type OutputRecord struct {
	Stream    int32
	Timestamp time.Time
	Line      string
	Raw       bool
}

// OpaqueRecord is a branch whose contents are not decoded.
type OpaqueRecord struct {
	kind    Kind
	Payload []byte
}

func (*HistoryRecord) Kind() Kind     { return KindHistory }
func (*ConfigRecord) Kind() Kind      { return KindConfig }
func (*SummaryRecord) Kind() Kind     { return KindSummary }
func (*StatsRecord) Kind() Kind       { return KindStats }
func (*RunRecord) Kind() Kind         { return KindRun }
func (*EnvironmentRecord) Kind() Kind { return KindEnvironment }
func (*ExitRecord) Kind() Kind        { return KindExit }
func (*HeaderRecord) Kind() Kind      { return KindHeader }
func (*TelemetryRecord) Kind() Kind   { return KindTelemetry }
func (o *OutputRecord) Kind() Kind {
	if o.Raw {
		return KindOutputRaw
	}
	return KindOutput
}
func (o *OpaqueRecord) Kind() Kind { return o.kind }

func (*HistoryRecord) isBranch()     {}
func (*ConfigRecord) isBranch()      {}
func (*SummaryRecord) isBranch()     {}
func (*StatsRecord) isBranch()       {}
func (*RunRecord) isBranch()         {}
func (*EnvironmentRecord) isBranch() {}
func (*ExitRecord) isBranch()        {}
func (*HeaderRecord) isBranch()      {}
func (*TelemetryRecord) isBranch()   {}
func (*OutputRecord) isBranch()      {}
func (*OpaqueRecord) isBranch()      {}
