package runcompare

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/wandb/runlens/internal/rundir"
	"github.com/wandb/runlens/internal/runmodel"
)

const (
	DefaultMaxSummaryMetrics  = 15
	DefaultMaxDetailedMetrics = 10
	DefaultMaxCommonParams    = 15

	reportValueLength = 50
	tableValueLength  = 40
)

// ReportRun is a run included in a context report.
type ReportRun struct {
	Scan runmodel.RunScanResult

	// Data is nil if the run has not been parsed.
	Data *runmodel.RunData
}

func (r ReportRun) label() string {
	if r.Scan.RunName != "" {
		return r.Scan.RunName
	}
	return ShortID(r.Scan.RunID)
}

type ReportOptions struct {
	// FolderPath is the workspace the runs were found in.
	FolderPath string

	// Now is the report's generation time.
	Now time.Time

	MaxSummaryMetrics  int
	MaxDetailedMetrics int
	MaxCommonParams    int
}

// ContextReport renders a markdown description of runs for pasting into
// an AI assistant.
//
// It has a run table, the config or config comparison, per-metric
// summaries, full metric data as CSV and the paths of each run's files.
func ContextReport(runs []ReportRun, opts ReportOptions) string {
	var sb strings.Builder
	// Writing to a strings.Builder does not fail.
	_ = WriteContextReport(&sb, runs, opts)
	return sb.String()
}

// WriteContextReport is like ContextReport but writes to w.
func WriteContextReport(w io.Writer, runs []ReportRun, opts ReportOptions) error {
	if opts.MaxSummaryMetrics <= 0 {
		opts.MaxSummaryMetrics = DefaultMaxSummaryMetrics
	}
	if opts.MaxDetailedMetrics <= 0 {
		opts.MaxDetailedMetrics = DefaultMaxDetailedMetrics
	}
	if opts.MaxCommonParams <= 0 {
		opts.MaxCommonParams = DefaultMaxCommonParams
	}

	rw := &reportWriter{w: w}

	rw.printf("# W&B Training Runs Context\n\n")
	if len(runs) == 0 {
		rw.printf("No runs selected.\n")
		return rw.err
	}

	rw.printf("Generated: %s\n", opts.Now.UTC().Format("2006-01-02T15:04:05.000Z"))
	rw.printf("Runs: %d selected from `%s`\n\n", len(runs), opts.FolderPath)

	rw.printf("## Run Summary\n\n")
	rw.runTable(runs)
	rw.printf("\n")

	if len(runs) == 1 {
		rw.printf("## Configuration\n\n")
		rw.singleConfig(runs[0])
	} else {
		rw.printf("## Configuration Comparison\n\n")
		rw.configComparison(runs, opts.MaxCommonParams)
	}
	rw.printf("\n")

	metricNames := trainingMetricNames(runs)

	rw.printf("## Metrics Summary\n\n")
	rw.metricSummaries(runs, metricNames, opts.MaxSummaryMetrics)
	rw.printf("\n")

	rw.printf("## Detailed Metric Data\n\n")
	rw.detailedData(runs, metricNames, opts.MaxDetailedMetrics)
	rw.printf("\n")

	rw.printf("## File References\n\n")
	rw.fileReferences(runs)

	return rw.err
}

// reportWriter remembers the first write error.
type reportWriter struct {
	w   io.Writer
	err error
}

func (rw *reportWriter) printf(format string, args ...any) {
	if rw.err != nil {
		return
	}
	_, rw.err = fmt.Fprintf(rw.w, format, args...)
}

func (rw *reportWriter) runTable(runs []ReportRun) {
	rw.printf("| Run ID | Name | Key Metrics |\n")
	rw.printf("|--------|------|-------------|\n")

	for _, run := range runs {
		name := run.Scan.RunName
		if name == "" {
			name = "unnamed"
		}

		keyMetrics := "-"
		if run.Data != nil {
			keyMetrics = keyMetricsSummary(run.Data.Metrics)
		}

		rw.printf("| %s | %s | %s |\n", ShortID(run.Scan.RunID), name, keyMetrics)
	}
}

// keyMetricsSummary shows how the run's loss and accuracy changed.
func keyMetricsSummary(metrics map[string]runmodel.MetricSeries) string {
	names := sortedKeys(metrics)

	var parts []string
	var used []string
	for _, pattern := range []string{"loss", "accuracy", "acc"} {
		idx := slices.IndexFunc(names, func(name string) bool {
			return strings.Contains(strings.ToLower(name), pattern) &&
				!strings.Contains(name, "system")
		})
		if idx < 0 || slices.Contains(used, names[idx]) {
			continue
		}

		name := names[idx]
		series := metrics[name]
		if len(series) == 0 {
			continue
		}

		used = append(used, name)
		parts = append(parts, fmt.Sprintf("%s: %s → %s",
			name,
			FormatNumber(series[0].Value),
			FormatNumber(series[len(series)-1].Value)))
	}

	if len(parts) == 0 {
		return fmt.Sprintf("%d metrics", len(metrics))
	}
	return strings.Join(parts, ", ")
}

func (rw *reportWriter) singleConfig(run ReportRun) {
	if run.Data == nil {
		rw.printf("*No configuration data available*\n")
		return
	}
	if len(run.Data.Config) == 0 {
		rw.printf("*No configuration parameters*\n")
		return
	}

	for _, key := range sortedKeys(run.Data.Config) {
		rw.printf("- **%s**: %s\n", key, formatValue(run.Data.Config[key], reportValueLength))
	}
}

func (rw *reportWriter) configComparison(runs []ReportRun, maxCommon int) {
	configs := make(map[string]runmodel.RunConfig)
	labels := make(map[string]string)
	for _, run := range runs {
		if run.Data == nil {
			continue
		}
		configs[run.Scan.RunID] = run.Data.Config
		labels[run.Scan.RunID] = run.label()
	}

	if len(configs) == 0 {
		rw.printf("*No configuration data available*\n")
		return
	}

	comparison := CompareConfigs(configs)

	rw.printf("### Common Parameters\n\n")
	if len(comparison.Common) == 0 {
		rw.printf("*No common parameters*\n")
	} else {
		keys := sortedKeys(comparison.Common)
		for _, key := range keys[:min(len(keys), maxCommon)] {
			rw.printf("- %s: %s\n", key, formatValue(comparison.Common[key], tableValueLength))
		}
		if len(keys) > maxCommon {
			rw.printf("- *...and %d more*\n", len(keys)-maxCommon)
		}
	}
	rw.printf("\n")

	rw.printf("### Differences\n\n")
	if len(comparison.Differences) == 0 {
		rw.printf("*No differences found (all configurations identical)*\n")
		return
	}

	runIDs := sortedKeys(labels)
	headers := make([]string, len(runIDs))
	separators := make([]string, len(runIDs))
	for i, runID := range runIDs {
		headers[i] = labels[runID]
		separators[i] = strings.Repeat("-", 10)
	}

	rw.printf("| Parameter | %s |\n", strings.Join(headers, " | "))
	rw.printf("|%s|%s|\n", strings.Repeat("-", 11), strings.Join(separators, "|"))

	for _, key := range sortedKeys(comparison.Differences) {
		byRun := comparison.Differences[key]

		cells := make([]string, len(runIDs))
		for i, runID := range runIDs {
			if value, ok := byRun[runID]; ok {
				cells[i] = formatValue(value, tableValueLength)
			} else {
				cells[i] = "-"
			}
		}
		rw.printf("| %s | %s |\n", key, strings.Join(cells, " | "))
	}
}

// trainingMetricNames returns the metric names of all runs, with loss
// metrics first, then accuracy metrics, then the rest by name.
func trainingMetricNames(runs []ReportRun) []string {
	seen := make(map[string]struct{})
	for _, run := range runs {
		if run.Data == nil {
			continue
		}
		for name := range run.Data.Metrics {
			if strings.HasPrefix(name, "system.") || strings.HasPrefix(name, "_") {
				continue
			}
			seen[name] = struct{}{}
		}
	}

	names := sortedKeys(seen)
	rank := func(name string) int {
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "loss"):
			return 0
		case strings.Contains(lower, "acc"):
			return 1
		default:
			return 2
		}
	}
	slices.SortStableFunc(names, func(a, b string) int {
		return rank(a) - rank(b)
	})
	return names
}

func (rw *reportWriter) metricSummaries(runs []ReportRun, names []string, limit int) {
	if len(names) == 0 {
		rw.printf("*No training metrics available*\n")
		return
	}

	for _, name := range names[:min(len(names), limit)] {
		rw.printf("### %s\n\n", name)

		for _, run := range runs {
			if run.Data == nil {
				continue
			}
			series, ok := run.Data.Metrics[name]
			if !ok {
				continue
			}

			summary, ok := Summarize(series)
			if !ok {
				rw.printf("- **%s**: No data\n", run.Scan.RunName)
				continue
			}

			rw.printf("- **%s**: initial=%s, final=%s, min=%s, max=%s, trend=%s\n",
				run.Scan.RunName,
				FormatNumber(summary.Initial),
				FormatNumber(summary.Final),
				FormatNumber(summary.Min),
				FormatNumber(summary.Max),
				summary.Trend)
		}

		rw.printf("\n")
	}

	if len(names) > limit {
		rw.printf("*...and %d more metrics (see detailed data below)*\n\n", len(names)-limit)
	}
}

func (rw *reportWriter) detailedData(runs []ReportRun, names []string, limit int) {
	if len(names) == 0 {
		rw.printf("*No detailed metric data available*\n")
		return
	}

	for _, name := range names[:min(len(names), limit)] {
		metric := runmodel.MergedMetric{MetricName: name}
		for _, run := range runs {
			if run.Data == nil {
				continue
			}
			if series, ok := run.Data.Metrics[name]; ok {
				metric.Datasets = append(metric.Datasets, runmodel.Dataset{
					RunID:   run.Scan.RunID,
					RunName: run.label(),
					Data:    series,
				})
			}
		}

		if len(metric.Datasets) == 0 {
			continue
		}

		rw.printf("<details>\n")
		rw.printf("<summary>%s - Full Data (CSV)</summary>\n\n", name)
		rw.printf("```csv\n%s```\n\n", CSV(metric))
		rw.printf("</details>\n\n")
	}

	if len(names) > limit {
		rw.printf("*Additional %d metrics available in the original .wandb files*\n\n", len(names)-limit)
	}
}

func (rw *reportWriter) fileReferences(runs []ReportRun) {
	for _, run := range runs {
		dir := filepath.Dir(run.Scan.FilePath)

		rw.printf("### %s\n\n", run.label())
		rw.printf("- Output log: `@%s`\n", filepath.Join(dir, rundir.FilesDir, rundir.OutputLogName))
		rw.printf("- Config: `@%s`\n", filepath.Join(dir, rundir.FilesDir, rundir.ConfigName))
		rw.printf("- Metadata: `@%s`\n", filepath.Join(dir, rundir.FilesDir, rundir.MetadataName))
		rw.printf("- Summary: `@%s`\n", filepath.Join(dir, rundir.FilesDir, rundir.SummaryName))
		rw.printf("\n")
	}
}

var (
	codeBlockPattern = regexp.MustCompile("(?s)```.*?```")
	tokenSeparators  = "\t\n\v\f\r ,.;:!?()[]{}"
)

// EstimateTokens roughly counts the LLM tokens of a report, ignoring code
// blocks.
func EstimateTokens(content string) int {
	prose := codeBlockPattern.ReplaceAllString(content, "")
	words := strings.FieldsFunc(prose, func(r rune) bool {
		return strings.ContainsRune(tokenSeparators, r)
	})
	return int(math.Ceil(float64(len(words)) * 1.3))
}
