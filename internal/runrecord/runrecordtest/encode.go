// Package runrecordtest encodes records for tests.
package runrecordtest

import (
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/wandb/runlens/internal/runrecord"
)

// Encode serializes a record in the W&B wire format.
//
// OpaqueRecord branches are not supported.
func Encode(record *runrecord.Record) []byte {
	var b []byte
	if record.Num != 0 {
		b = appendVarint(b, 1, uint64(record.Num))
	}

	for _, branch := range record.Branches {
		b = appendBranch(b, branch)
	}

	if record.UUID != "" {
		b = appendString(b, 19, record.UUID)
	}
	return b
}

// EncodeBranch serializes a record holding the given branches.
func EncodeBranch(branches ...runrecord.Branch) []byte {
	return Encode(&runrecord.Record{Branches: branches})
}

func appendBranch(b []byte, branch runrecord.Branch) []byte {
	switch branch := branch.(type) {
	case *runrecord.HistoryRecord:
		b = appendMessage(b, 2, encodeHistory(branch))
	case *runrecord.SummaryRecord:
		b = appendMessage(b, 3, encodeItems(branch.Update, branch.Remove))
	case *runrecord.OutputRecord:
		num := protowire.Number(4)
		if branch.Raw {
			num = 13
		}
		b = appendMessage(b, num, encodeOutput(branch))
	case *runrecord.ConfigRecord:
		b = appendMessage(b, 5, encodeItems(branch.Update, branch.Remove))
	case *runrecord.StatsRecord:
		b = appendMessage(b, 7, encodeStats(branch))
	case *runrecord.TelemetryRecord:
		b = appendMessage(b, 11, encodeTelemetry(branch))
	case *runrecord.RunRecord:
		b = appendMessage(b, 17, encodeRun(branch))
	case *runrecord.ExitRecord:
		b = appendMessage(b, 18, encodeExit(branch))
	case *runrecord.HeaderRecord:
		b = appendMessage(b, 21, encodeHeader(branch))
	case *runrecord.EnvironmentRecord:
		b = appendMessage(b, 26, encodeEnvironment(branch))
	}
	return b
}

// History returns a history branch from alternating keys and JSON values.
func History(step int64, keyValues ...string) *runrecord.HistoryRecord {
	return &runrecord.HistoryRecord{Items: Items(keyValues...), Step: &step}
}

// Items builds items from alternating keys and JSON values.
func Items(keyValues ...string) []runrecord.Item {
	items := make([]runrecord.Item, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		items = append(items, runrecord.Item{
			Key:       keyValues[i],
			ValueJSON: keyValues[i+1],
		})
	}
	return items
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendOptionalString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	return appendString(b, num, s)
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

func encodeTimestamp(t time.Time) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(t.Unix()))
	if nanos := t.Nanosecond(); nanos != 0 {
		b = appendVarint(b, 2, uint64(nanos))
	}
	return b
}

func encodeItem(item runrecord.Item) []byte {
	var b []byte
	b = appendOptionalString(b, 1, item.Key)
	for _, k := range item.NestedKey {
		b = appendString(b, 2, k)
	}
	return appendOptionalString(b, 16, item.ValueJSON)
}

func encodeItems(update, remove []runrecord.Item) []byte {
	var b []byte
	for _, item := range update {
		b = appendMessage(b, 1, encodeItem(item))
	}
	for _, item := range remove {
		b = appendMessage(b, 2, encodeItem(item))
	}
	return b
}

func encodeHistory(h *runrecord.HistoryRecord) []byte {
	var b []byte
	for _, item := range h.Items {
		b = appendMessage(b, 1, encodeItem(item))
	}
	if h.Step != nil {
		b = appendMessage(b, 2, appendVarint(nil, 1, uint64(*h.Step)))
	}
	return b
}

func encodeStats(s *runrecord.StatsRecord) []byte {
	var b []byte
	if s.StatsType != 0 {
		b = appendVarint(b, 1, uint64(s.StatsType))
	}
	if !s.Timestamp.IsZero() {
		b = appendMessage(b, 2, encodeTimestamp(s.Timestamp))
	}
	for _, item := range s.Items {
		var m []byte
		m = appendOptionalString(m, 1, item.Key)
		m = appendOptionalString(m, 16, item.ValueJSON)
		b = appendMessage(b, 3, m)
	}
	return b
}

func encodeGit(g *runrecord.GitInfo) []byte {
	var b []byte
	b = appendOptionalString(b, 1, g.RemoteURL)
	return appendOptionalString(b, 2, g.Commit)
}

func encodeRun(r *runrecord.RunRecord) []byte {
	var b []byte
	b = appendOptionalString(b, 1, r.RunID)
	b = appendOptionalString(b, 2, r.Entity)
	b = appendOptionalString(b, 3, r.Project)
	if r.Config != nil {
		b = appendMessage(b, 4, encodeItems(r.Config.Update, r.Config.Remove))
	}
	if r.Summary != nil {
		b = appendMessage(b, 5, encodeItems(r.Summary.Update, r.Summary.Remove))
	}
	b = appendOptionalString(b, 6, r.RunGroup)
	b = appendOptionalString(b, 7, r.JobType)
	b = appendOptionalString(b, 8, r.DisplayName)
	b = appendOptionalString(b, 9, r.Notes)
	for _, tag := range r.Tags {
		b = appendString(b, 10, tag)
	}
	b = appendOptionalString(b, 12, r.SweepID)
	b = appendOptionalString(b, 13, r.Host)
	if !r.StartTime.IsZero() {
		b = appendMessage(b, 17, encodeTimestamp(r.StartTime))
	}
	if r.Git != nil {
		b = appendMessage(b, 21, encodeGit(r.Git))
	}
	return b
}

func encodeEnvironment(e *runrecord.EnvironmentRecord) []byte {
	var b []byte
	b = appendOptionalString(b, 1, e.OS)
	b = appendOptionalString(b, 2, e.Python)
	if !e.StartedAt.IsZero() {
		b = appendMessage(b, 3, encodeTimestamp(e.StartedAt))
	}
	b = appendOptionalString(b, 6, e.Program)
	b = appendOptionalString(b, 7, e.CodePath)
	if e.Git != nil {
		b = appendMessage(b, 9, encodeGit(e.Git))
	}
	b = appendOptionalString(b, 10, e.Email)
	b = appendOptionalString(b, 11, e.Root)
	b = appendOptionalString(b, 12, e.Host)
	b = appendOptionalString(b, 13, e.Username)
	b = appendOptionalString(b, 14, e.Executable)
	if e.CPUCount != 0 {
		b = appendVarint(b, 16, uint64(e.CPUCount))
	}
	if e.CPUCountLog != 0 {
		b = appendVarint(b, 17, uint64(e.CPUCountLog))
	}
	b = appendOptionalString(b, 18, e.GPUType)
	if e.GPUCount != 0 {
		b = appendVarint(b, 19, uint64(e.GPUCount))
	}
	if e.MemoryTotal != 0 {
		b = appendMessage(b, 21, appendVarint(nil, 1, e.MemoryTotal))
	}
	for _, gpu := range e.NvidiaGPUs {
		var m []byte
		m = appendOptionalString(m, 1, gpu.Name)
		if gpu.MemoryTotal != 0 {
			m = appendVarint(m, 2, gpu.MemoryTotal)
		}
		b = appendMessage(b, 24, m)
	}
	return appendOptionalString(b, 25, e.CUDAVersion)
}

func encodeExit(e *runrecord.ExitRecord) []byte {
	var b []byte
	if e.ExitCode != 0 {
		b = appendVarint(b, 1, uint64(int64(e.ExitCode)))
	}
	if e.Runtime != 0 {
		b = appendVarint(b, 2, uint64(int64(e.Runtime)))
	}
	return b
}

func encodeHeader(h *runrecord.HeaderRecord) []byte {
	var v []byte
	v = appendOptionalString(v, 1, h.Producer)
	v = appendOptionalString(v, 2, h.MinConsumer)
	return appendMessage(nil, 1, v)
}

func encodeTelemetry(t *runrecord.TelemetryRecord) []byte {
	var b []byte
	b = appendOptionalString(b, 8, t.PythonVersion)
	return appendOptionalString(b, 9, t.CLIVersion)
}

func encodeOutput(o *runrecord.OutputRecord) []byte {
	var b []byte
	if o.Stream != 0 {
		b = appendVarint(b, 1, uint64(o.Stream))
	}
	if !o.Timestamp.IsZero() {
		b = appendMessage(b, 2, encodeTimestamp(o.Timestamp))
	}
	return appendOptionalString(b, 3, o.Line)
}
