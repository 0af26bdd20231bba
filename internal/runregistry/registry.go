// Package runregistry tracks the runs of a workspace, which of them are
// selected, and their parsed data.
//
// Parsed data is kept in a bounded LRU cache. All mutations happen under
// a single lock, so a watcher and a command can share a registry.
package runregistry

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
	"golang.org/x/sync/errgroup"

	"github.com/wandb/runlens/internal/observability"
	"github.com/wandb/runlens/internal/rundir"
	"github.com/wandb/runlens/internal/runmodel"
)

//go:generate mockgen -source=registry.go -destination=runregistrytest/mock_parser.go -package=runregistrytest Parser

const (
	// DefaultCacheSize is the number of parsed runs kept in memory.
	DefaultCacheSize = 20

	// DefaultColor is reported for runs the registry does not know.
	DefaultColor = "#888888"

	DefaultMaxConcurrentParses = 4
)

// DefaultPalette is cycled over the sorted run IDs to color runs.
var DefaultPalette = []string{
	"#4dc9f6",
	"#f67019",
	"#f53794",
	"#537bc4",
	"#acc236",
	"#166a8f",
	"#00a950",
	"#58595b",
	"#8549ba",
	"#ff6384",
}

// Parser fully parses a run.
type Parser interface {
	Parse(ctx context.Context, scan runmodel.RunScanResult) (*runmodel.RunData, error)
}

type Params struct {
	Parser Parser
	Logger *observability.CoreLogger

	// CacheSize bounds the number of parsed runs kept in memory.
	CacheSize int

	// Palette is the list of run colors.
	Palette []string

	// MaxConcurrentParses bounds parallel parses in ParseSelected.
	MaxConcurrentParses int

	Metrics *Metrics
}

// Registry is the set of known runs and their cached parsed data.
type Registry struct {
	mu sync.Mutex

	parser              Parser
	logger              *observability.CoreLogger
	palette             []string
	maxConcurrentParses int
	metrics             *Metrics

	// runs maps run IDs to their scan results.
	runs map[string]runmodel.RunScanResult

	// byPath maps log file paths to run IDs.
	byPath map[string]string

	selected map[string]struct{}
	colors   map[string]string

	// cache maps run IDs to *runmodel.RunData.
	cache *simplelru.LRU

	// invalidating is set while entries are removed on purpose, so that
	// they are not counted as evictions.
	invalidating bool
}

func New(params Params) *Registry {
	r := &Registry{
		parser:              params.Parser,
		logger:              observability.OrNoOp(params.Logger),
		palette:             params.Palette,
		maxConcurrentParses: params.MaxConcurrentParses,
		metrics:             params.Metrics,
		runs:                make(map[string]runmodel.RunScanResult),
		byPath:              make(map[string]string),
		selected:            make(map[string]struct{}),
		colors:              make(map[string]string),
	}

	if len(r.palette) == 0 {
		r.palette = DefaultPalette
	}
	if r.maxConcurrentParses <= 0 {
		r.maxConcurrentParses = DefaultMaxConcurrentParses
	}

	cacheSize := params.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	// NewLRU only fails for a non-positive size.
	r.cache, _ = simplelru.NewLRU(cacheSize, r.onEvict)

	return r
}

func (r *Registry) onEvict(key, _ any) {
	if r.invalidating {
		return
	}

	r.metrics.evicted()
	r.logger.Debug("runregistry: evicted parsed run", "run_id", key)
}

// AddRun adds a run, or updates it if its ID is already known.
//
// New visible runs are selected.
func (r *Registry) AddRun(scan runmodel.RunScanResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addLocked(scan)
}

func (r *Registry) addLocked(scan runmodel.RunScanResult) {
	if _, ok := r.runs[scan.RunID]; ok {
		r.updateLocked(scan)
		return
	}

	r.runs[scan.RunID] = scan
	r.byPath[scan.FilePath] = scan.RunID
	if scan.Visible {
		r.selected[scan.RunID] = struct{}{}
	}

	r.recomputeColors()
}

// RemoveRun forgets a run and its parsed data.
//
// Returns false if the run was not known.
func (r *Registry) RemoveRun(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(runID)
}

func (r *Registry) removeLocked(runID string) bool {
	scan, ok := r.runs[runID]
	if !ok {
		return false
	}

	delete(r.runs, runID)
	if r.byPath[scan.FilePath] == runID {
		delete(r.byPath, scan.FilePath)
	}
	delete(r.selected, runID)
	r.invalidate(runID)

	r.recomputeColors()
	return true
}

// UpdateRun replaces a known run's scan result.
//
// If the log's modification time changed, the cached parsed data is
// dropped so that the next ParseSelected parses it again. Returns false
// if the run is not known.
func (r *Registry) UpdateRun(scan runmodel.RunScanResult) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(scan)
}

func (r *Registry) updateLocked(scan runmodel.RunScanResult) bool {
	old, ok := r.runs[scan.RunID]
	if !ok {
		return false
	}

	if old.FilePath != scan.FilePath {
		if r.byPath[old.FilePath] == scan.RunID {
			delete(r.byPath, old.FilePath)
		}
		r.byPath[scan.FilePath] = scan.RunID
	}

	r.runs[scan.RunID] = scan
	if !old.LastModified.Equal(scan.LastModified) {
		r.invalidate(scan.RunID)
	}
	return true
}

// HandleEvent applies a file change to the registry.
//
// A modified log whose run ID changed replaces the run it used to
// belong to.
func (r *Registry) HandleEvent(event runmodel.FileChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Type {
	case runmodel.ChangeAdded, runmodel.ChangeModified:
		if event.Scan == nil {
			return
		}

		if oldID, ok := r.byPath[event.FilePath]; ok && oldID != event.Scan.RunID {
			r.removeLocked(oldID)
		}
		r.addLocked(*event.Scan)

	case runmodel.ChangeDeleted:
		if runID, ok := r.byPath[event.FilePath]; ok {
			r.removeLocked(runID)
		}
	}
}

// ToggleRun flips whether a run is selected and returns the new state.
//
// Unknown runs are never selected.
func (r *Registry) ToggleRun(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[runID]; !ok {
		return false
	}

	if _, ok := r.selected[runID]; ok {
		delete(r.selected, runID)
		return false
	}

	r.selected[runID] = struct{}{}
	return true
}

// SelectAll selects every known run.
func (r *Registry) SelectAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for runID := range r.runs {
		r.selected[runID] = struct{}{}
	}
}

// DeselectAll clears the selection.
func (r *Registry) DeselectAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.selected)
}

// recomputeColors assigns palette colors in sorted run ID order.
//
// Colors depend only on the set of run IDs, not on discovery order.
func (r *Registry) recomputeColors() {
	clear(r.colors)
	for i, runID := range slices.Sorted(maps.Keys(r.runs)) {
		r.colors[runID] = r.palette[i%len(r.palette)]
	}
}

func (r *Registry) invalidate(runID string) {
	r.invalidating = true
	r.cache.Remove(runID)
	r.invalidating = false

	r.metrics.setCached(r.cache.Len())
}

type parseResult struct {
	scan runmodel.RunScanResult
	data *runmodel.RunData
	err  error
}

// ParseSelected makes sure every selected run's parsed data is cached.
//
// Runs missing from the cache are parsed concurrently without holding the
// lock. Results are applied in run ID order: cache hits are marked as
// recently used, new data is inserted and the least recently used entries
// are evicted. A result is discarded if its run was removed or its log
// changed while it was being parsed.
//
// Returns the errors of failed parses by run ID.
func (r *Registry) ParseSelected(ctx context.Context) map[string]error {
	r.mu.Lock()
	var hits []string
	var pending []runmodel.RunScanResult
	for _, runID := range slices.Sorted(maps.Keys(r.selected)) {
		if r.cache.Contains(runID) {
			hits = append(hits, runID)
		} else {
			pending = append(pending, r.runs[runID])
		}
	}
	r.mu.Unlock()

	results := make([]parseResult, len(pending))
	g := &errgroup.Group{}
	g.SetLimit(r.maxConcurrentParses)
	for i, scan := range pending {
		g.Go(func() error {
			results[i] = r.parse(ctx, scan)
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, runID := range hits {
		if _, ok := r.cache.Get(runID); ok {
			r.metrics.hit()
		}
	}

	errs := make(map[string]error)
	for _, result := range results {
		runID := result.scan.RunID
		r.metrics.miss()

		if result.err != nil {
			r.metrics.parseFailed()
			r.logger.CaptureError(result.err, "run_id", runID)
			errs[runID] = result.err
			continue
		}

		current, ok := r.runs[runID]
		if !ok {
			r.logger.Debug("runregistry: discarding parse of removed run", "run_id", runID)
			continue
		}
		if !current.LastModified.Equal(result.scan.LastModified) {
			r.logger.Debug("runregistry: discarding stale parse", "run_id", runID)
			continue
		}

		r.cache.Add(runID, result.data)
	}

	r.metrics.setCached(r.cache.Len())
	return errs
}

// parse runs the parser, turning a panic into an error.
func (r *Registry) parse(
	ctx context.Context,
	scan runmodel.RunScanResult,
) (result parseResult) {
	result.scan = scan

	defer func() {
		if p := recover(); p != nil {
			result.data = nil
			result.err = fmt.Errorf("runregistry: panic parsing %s: %v", scan.RunID, p)
		}
	}()

	data, err := r.parser.Parse(ctx, scan)
	switch {
	case err != nil:
		result.err = fmt.Errorf("runregistry: parsing %s: %w", scan.RunID, err)
	case data == nil:
		result.err = fmt.Errorf("runregistry: parsing %s: no data", scan.RunID)
	default:
		result.data = data
	}
	return result
}

// MergeMetrics combines the cached data of the selected runs by metric
// name.
//
// Selected runs that are not parsed yet are skipped. Metrics are ordered
// by name and datasets by run ID.
func (r *Registry) MergeMetrics() runmodel.MergedMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	training := make(map[string]*runmodel.MergedMetric)
	system := make(map[string]*runmodel.MergedMetric)

	for _, runID := range slices.Sorted(maps.Keys(r.selected)) {
		value, ok := r.cache.Peek(runID)
		if !ok {
			continue
		}
		data := value.(*runmodel.RunData)

		name := data.RunName
		if name == "" {
			name = r.runs[runID].RunName
		}

		dataset := runmodel.Dataset{
			RunID:   runID,
			RunName: name,
			Color:   r.colors[runID],
		}
		appendDatasets(training, data.Metrics, dataset)
		appendDatasets(system, data.SystemMetrics, dataset)
	}

	return runmodel.MergedMetrics{
		Training: sortedMetrics(training),
		System:   sortedMetrics(system),
	}
}

func appendDatasets(
	merged map[string]*runmodel.MergedMetric,
	metrics map[string]runmodel.MetricSeries,
	dataset runmodel.Dataset,
) {
	for name, series := range metrics {
		metric, ok := merged[name]
		if !ok {
			metric = &runmodel.MergedMetric{MetricName: name}
			merged[name] = metric
		}

		dataset.Data = series
		metric.Datasets = append(metric.Datasets, dataset)
	}
}

func sortedMetrics(merged map[string]*runmodel.MergedMetric) []runmodel.MergedMetric {
	out := make([]runmodel.MergedMetric, 0, len(merged))
	for _, name := range slices.Sorted(maps.Keys(merged)) {
		out = append(out, *merged[name])
	}
	return out
}

// Runs returns all known runs, newest run directory first.
func (r *Registry) Runs() []runmodel.RunScanResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	runs := slices.Collect(maps.Values(r.runs))
	slices.SortFunc(runs, func(a, b runmodel.RunScanResult) int {
		return rundir.CompareLogPaths(a.FilePath, b.FilePath)
	})
	return runs
}

// Run returns a known run's scan result.
func (r *Registry) Run(runID string) (runmodel.RunScanResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	scan, ok := r.runs[runID]
	return scan, ok
}

// RunByPath returns the run whose log is at path.
func (r *Registry) RunByPath(path string) (runmodel.RunScanResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runID, ok := r.byPath[path]
	if !ok {
		return runmodel.RunScanResult{}, false
	}
	scan, ok := r.runs[runID]
	return scan, ok
}

// SelectedRunIDs returns the sorted IDs of the selected runs.
func (r *Registry) SelectedRunIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Sorted(maps.Keys(r.selected))
}

func (r *Registry) IsSelected(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.selected[runID]
	return ok
}

// Color returns a run's color, or DefaultColor for unknown runs.
func (r *Registry) Color(runID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if color, ok := r.colors[runID]; ok {
		return color
	}
	return DefaultColor
}

// ParsedData returns a run's cached data without marking it as used.
func (r *Registry) ParsedData(runID string) (*runmodel.RunData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	value, ok := r.cache.Peek(runID)
	if !ok {
		return nil, false
	}
	return value.(*runmodel.RunData), true
}

// CachedRunIDs returns the IDs of cached runs, least recently used first.
func (r *Registry) CachedRunIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := r.cache.Keys()
	ids := make([]string, len(keys))
	for i, key := range keys {
		ids[i] = key.(string)
	}
	return ids
}
