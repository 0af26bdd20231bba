package runrecord

import (
	"errors"
	"fmt"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformedRecord is returned for payloads that are not a valid record.
var ErrMalformedRecord = errors.New("runrecord: malformed record")

// Record field numbers outside the branch oneof.
const (
	fieldNum  protowire.Number = 1
	fieldUUID protowire.Number = 19
)

type branchSpec struct {
	kind Kind

	// decode is nil for branches kept as opaque payloads.
	decode func([]byte) (Branch, error)
}

// schema maps Record field numbers to their branch.
var schema = map[protowire.Number]branchSpec{
	2:   {KindHistory, decodeHistory},
	3:   {KindSummary, decodeSummary},
	4:   {KindOutput, decodeOutput(false)},
	5:   {KindConfig, decodeConfig},
	6:   {KindFiles, nil},
	7:   {KindStats, decodeStats},
	8:   {KindArtifact, nil},
	9:   {KindTBRecord, nil},
	10:  {KindAlert, nil},
	11:  {KindTelemetry, decodeTelemetry},
	12:  {KindMetric, nil},
	13:  {KindOutputRaw, decodeOutput(true)},
	17:  {KindRun, decodeRun},
	18:  {KindExit, decodeExit},
	20:  {KindFinal, nil},
	21:  {KindHeader, decodeHeader},
	22:  {KindFooter, nil},
	23:  {KindPreempting, nil},
	25:  {KindUseArtifact, nil},
	26:  {KindEnvironment, decodeEnvironment},
	100: {KindRequest, nil},
}

// Decoder decodes records, fully decoding only a chosen set of branches.
//
// A Decoder is immutable and safe for concurrent use.
type Decoder struct {
	kinds []Kind
}

// NewDecoder returns a decoder for the given branch kinds.
//
// Without arguments, every known branch is decoded. Other branches are
// returned as an *OpaqueRecord.
func NewDecoder(kinds ...Kind) *Decoder {
	return &Decoder{kinds: slices.Clone(kinds)}
}

var defaultDecoder = NewDecoder()

// Decode decodes a record with every known branch.
func Decode(payload []byte) (*Record, error) {
	return defaultDecoder.Decode(payload)
}

// Decode parses one logical record.
//
// Errors wrap ErrMalformedRecord.
func (d *Decoder) Decode(payload []byte) (*Record, error) {
	record := &Record{}

	err := walk(payload, func(f field) error {
		switch f.num {
		case fieldNum:
			num, err := f.i64()
			record.Num = num
			return err
		case fieldUUID:
			return setString(f, &record.UUID)
		}

		spec, ok := schema[f.num]
		if !ok {
			return nil
		}
		b, err := f.msg()
		if err != nil {
			return err
		}

		if spec.decode == nil || !d.wants(spec.kind) {
			record.Branches = append(record.Branches,
				&OpaqueRecord{kind: spec.kind, Payload: b})
			return nil
		}

		branch, err := spec.decode(b)
		if err != nil {
			return fmt.Errorf("%v: %w", spec.kind, err)
		}
		record.Branches = append(record.Branches, branch)
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return record, nil
}

func (d *Decoder) wants(kind Kind) bool {
	return len(d.kinds) == 0 || slices.Contains(d.kinds, kind)
}

func decodeItem(b []byte) (Item, error) {
	var item Item
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			return setString(f, &item.Key)
		case 2:
			s, err := f.str()
			item.NestedKey = append(item.NestedKey, s)
			return err
		case 16:
			return setString(f, &item.ValueJSON)
		}
		return nil
	})
	return item, err
}

// decodeItems decodes update (1) and remove (2) item lists.
func decodeItems(b []byte) (update, remove []Item, err error) {
	err = walk(b, func(f field) error {
		if f.num != 1 && f.num != 2 {
			return nil
		}
		m, err := f.msg()
		if err != nil {
			return err
		}
		item, err := decodeItem(m)
		if err != nil {
			return err
		}
		if f.num == 1 {
			update = append(update, item)
		} else {
			remove = append(remove, item)
		}
		return nil
	})
	return update, remove, err
}

func decodeHistory(b []byte) (Branch, error) {
	history := &HistoryRecord{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			m, err := f.msg()
			if err != nil {
				return err
			}
			item, err := decodeItem(m)
			if err != nil {
				return err
			}
			history.Items = append(history.Items, item)
		case 2:
			m, err := f.msg()
			if err != nil {
				return err
			}
			var step int64
			err = walk(m, func(f field) error {
				if f.num != 1 {
					return nil
				}
				var err error
				step, err = f.i64()
				return err
			})
			if err != nil {
				return err
			}
			history.Step = &step
		}
		return nil
	})
	return history, err
}

func decodeConfigRecord(b []byte) (*ConfigRecord, error) {
	update, remove, err := decodeItems(b)
	return &ConfigRecord{Update: update, Remove: remove}, err
}

func decodeSummaryRecord(b []byte) (*SummaryRecord, error) {
	update, remove, err := decodeItems(b)
	return &SummaryRecord{Update: update, Remove: remove}, err
}

func decodeConfig(b []byte) (Branch, error)  { return decodeConfigRecord(b) }
func decodeSummary(b []byte) (Branch, error) { return decodeSummaryRecord(b) }

func decodeStats(b []byte) (Branch, error) {
	stats := &StatsRecord{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			v, err := f.i32()
			stats.StatsType = v
			return err
		case 2:
			m, err := f.msg()
			if err != nil {
				return err
			}
			stats.Timestamp, err = decodeTimestamp(m)
			return err
		case 3:
			m, err := f.msg()
			if err != nil {
				return err
			}
			var item StatsItem
			err = walk(m, func(f field) error {
				switch f.num {
				case 1:
					return setString(f, &item.Key)
				case 16:
					return setString(f, &item.ValueJSON)
				}
				return nil
			})
			if err != nil {
				return err
			}
			stats.Items = append(stats.Items, item)
		}
		return nil
	})
	return stats, err
}

func decodeGit(b []byte) (*GitInfo, error) {
	git := &GitInfo{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			return setString(f, &git.RemoteURL)
		case 2:
			return setString(f, &git.Commit)
		}
		return nil
	})
	return git, err
}

func decodeRun(b []byte) (Branch, error) {
	run := &RunRecord{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			return setString(f, &run.RunID)
		case 2:
			return setString(f, &run.Entity)
		case 3:
			return setString(f, &run.Project)
		case 4:
			m, err := f.msg()
			if err != nil {
				return err
			}
			run.Config, err = decodeConfigRecord(m)
			return err
		case 5:
			m, err := f.msg()
			if err != nil {
				return err
			}
			run.Summary, err = decodeSummaryRecord(m)
			return err
		case 6:
			return setString(f, &run.RunGroup)
		case 7:
			return setString(f, &run.JobType)
		case 8:
			return setString(f, &run.DisplayName)
		case 9:
			return setString(f, &run.Notes)
		case 10:
			tag, err := f.str()
			run.Tags = append(run.Tags, tag)
			return err
		case 12:
			return setString(f, &run.SweepID)
		case 13:
			return setString(f, &run.Host)
		case 17:
			m, err := f.msg()
			if err != nil {
				return err
			}
			run.StartTime, err = decodeTimestamp(m)
			return err
		case 21:
			m, err := f.msg()
			if err != nil {
				return err
			}
			run.Git, err = decodeGit(m)
			return err
		}
		return nil
	})
	return run, err
}

//gocyclo:ignore
func decodeEnvironment(b []byte) (Branch, error) {
	env := &EnvironmentRecord{}
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			err = setString(f, &env.OS)
		case 2:
			err = setString(f, &env.Python)
		case 3:
			var m []byte
			if m, err = f.msg(); err == nil {
				env.StartedAt, err = decodeTimestamp(m)
			}
		case 6:
			err = setString(f, &env.Program)
		case 7:
			err = setString(f, &env.CodePath)
		case 9:
			var m []byte
			if m, err = f.msg(); err == nil {
				env.Git, err = decodeGit(m)
			}
		case 10:
			err = setString(f, &env.Email)
		case 11:
			err = setString(f, &env.Root)
		case 12:
			err = setString(f, &env.Host)
		case 13:
			err = setString(f, &env.Username)
		case 14:
			err = setString(f, &env.Executable)
		case 16:
			env.CPUCount, err = f.u32()
		case 17:
			env.CPUCountLog, err = f.u32()
		case 18:
			err = setString(f, &env.GPUType)
		case 19:
			env.GPUCount, err = f.u32()
		case 21:
			var m []byte
			if m, err = f.msg(); err == nil {
				err = walk(m, func(f field) error {
					if f.num != 1 {
						return nil
					}
					var err error
					env.MemoryTotal, err = f.u64()
					return err
				})
			}
		case 24:
			var m []byte
			if m, err = f.msg(); err == nil {
				var gpu GPUInfo
				err = walk(m, func(f field) error {
					var err error
					switch f.num {
					case 1:
						err = setString(f, &gpu.Name)
					case 2:
						gpu.MemoryTotal, err = f.u64()
					}
					return err
				})
				env.NvidiaGPUs = append(env.NvidiaGPUs, gpu)
			}
		case 25:
			err = setString(f, &env.CUDAVersion)
		}
		return err
	})
	return env, err
}

func decodeExit(b []byte) (Branch, error) {
	exit := &ExitRecord{}
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			exit.ExitCode, err = f.i32()
		case 2:
			exit.Runtime, err = f.i32()
		}
		return err
	})
	return exit, err
}

func decodeHeader(b []byte) (Branch, error) {
	header := &HeaderRecord{}
	err := walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		m, err := f.msg()
		if err != nil {
			return err
		}
		return walk(m, func(f field) error {
			switch f.num {
			case 1:
				return setString(f, &header.Producer)
			case 2:
				return setString(f, &header.MinConsumer)
			}
			return nil
		})
	})
	return header, err
}

func decodeTelemetry(b []byte) (Branch, error) {
	telemetry := &TelemetryRecord{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 8:
			return setString(f, &telemetry.PythonVersion)
		case 9:
			return setString(f, &telemetry.CLIVersion)
		}
		return nil
	})
	return telemetry, err
}

func decodeOutput(raw bool) func([]byte) (Branch, error) {
	return func(b []byte) (Branch, error) {
		output := &OutputRecord{Raw: raw}
		err := walk(b, func(f field) error {
			var err error
			switch f.num {
			case 1:
				output.Stream, err = f.i32()
			case 2:
				var m []byte
				if m, err = f.msg(); err == nil {
					output.Timestamp, err = decodeTimestamp(m)
				}
			case 3:
				err = setString(f, &output.Line)
			}
			return err
		})
		return output, err
	}
}
