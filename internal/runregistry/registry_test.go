package runregistry_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/wandb/runlens/internal/observabilitytest"
	"github.com/wandb/runlens/internal/runmodel"
	"github.com/wandb/runlens/internal/runregistry"
	"github.com/wandb/runlens/internal/runregistry/runregistrytest"
)

var baseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func scanOf(runID string, visible bool) runmodel.RunScanResult {
	return runmodel.RunScanResult{
		FilePath:     "/wandb/run-" + runID + "/run-" + runID + ".wandb",
		RunID:        runID,
		RunName:      "name-" + runID,
		LastModified: baseTime,
		Visible:      visible,
	}
}

// runDataFor is the parsed data the fake parser returns for a run.
func runDataFor(scan runmodel.RunScanResult) *runmodel.RunData {
	data := runmodel.NewRunData(scan.RunID)
	data.RunName = scan.RunName
	data.Metrics["loss"] = runmodel.MetricSeries{{Step: 0, Value: 1}, {Step: 1, Value: 0.5}}
	data.SystemMetrics["cpu"] = runmodel.MetricSeries{{Step: 0, Value: 10}}
	return data
}

type fixture struct {
	registry *runregistry.Registry
	parser   *runregistrytest.MockParser
	metrics  *runregistry.Metrics
}

func setup(t *testing.T, cacheSize int) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	parser := runregistrytest.NewMockParser(ctrl)
	metrics := runregistry.NewMetrics(prometheus.NewRegistry())

	return &fixture{
		registry: runregistry.New(runregistry.Params{
			Parser:    parser,
			Logger:    observabilitytest.NewTestLogger(t),
			CacheSize: cacheSize,
			Metrics:   metrics,
		}),
		parser:  parser,
		metrics: metrics,
	}
}

// parseAny makes the mock parser succeed for every run.
func (f *fixture) parseAny() *gomock.Call {
	return f.parser.EXPECT().
		Parse(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, scan runmodel.RunScanResult) (*runmodel.RunData, error) {
			return runDataFor(scan), nil
		}).
		AnyTimes()
}

func (f *fixture) expectParseOf(runIDs ...string) {
	for _, runID := range runIDs {
		f.parser.EXPECT().
			Parse(gomock.Any(), gomock.Cond(func(scan runmodel.RunScanResult) bool {
				return scan.RunID == runID
			})).
			DoAndReturn(func(_ context.Context, scan runmodel.RunScanResult) (*runmodel.RunData, error) {
				return runDataFor(scan), nil
			})
	}
}

func TestAddRun_SelectsVisibleRuns(t *testing.T) {
	f := setup(t, 0)

	f.registry.AddRun(scanOf("a", true))
	f.registry.AddRun(scanOf("b", false))

	assert.Equal(t, []string{"a"}, f.registry.SelectedRunIDs())
	assert.Len(t, f.registry.Runs(), 2)
}

func TestColors_IndependentOfDiscoveryOrder(t *testing.T) {
	ids := []string{"d", "a", "c", "b", "k", "e", "f", "g", "h", "i", "j"}

	forward := setup(t, 0).registry
	backward := setup(t, 0).registry
	for i := range ids {
		forward.AddRun(scanOf(ids[i], true))
		backward.AddRun(scanOf(ids[len(ids)-1-i], true))
	}

	for _, id := range ids {
		assert.Equal(t, forward.Color(id), backward.Color(id), id)
	}
	assert.Equal(t, runregistry.DefaultPalette[0], forward.Color("a"))
	assert.Equal(t, runregistry.DefaultPalette[1], forward.Color("b"))
	assert.Equal(t, runregistry.DefaultPalette[0], forward.Color("k"))
	assert.Equal(t, runregistry.DefaultColor, forward.Color("unknown"))
}

func TestColors_RecomputedOnRemove(t *testing.T) {
	r := setup(t, 0).registry
	r.AddRun(scanOf("a", true))
	r.AddRun(scanOf("b", true))
	assert.Equal(t, runregistry.DefaultPalette[1], r.Color("b"))

	assert.True(t, r.RemoveRun("a"))

	assert.Equal(t, runregistry.DefaultPalette[0], r.Color("b"))
	assert.Equal(t, runregistry.DefaultColor, r.Color("a"))
	assert.False(t, r.RemoveRun("a"))
}

func TestSelection(t *testing.T) {
	r := setup(t, 0).registry
	r.AddRun(scanOf("a", false))
	r.AddRun(scanOf("b", false))

	assert.True(t, r.ToggleRun("a"))
	assert.True(t, r.IsSelected("a"))
	assert.False(t, r.ToggleRun("a"))
	assert.False(t, r.IsSelected("a"))
	assert.False(t, r.ToggleRun("unknown"))

	r.SelectAll()
	assert.Equal(t, []string{"a", "b"}, r.SelectedRunIDs())

	r.DeselectAll()
	assert.Empty(t, r.SelectedRunIDs())
}

func TestParseSelected_CachesResults(t *testing.T) {
	f := setup(t, 0)
	f.registry.AddRun(scanOf("a", true))
	f.registry.AddRun(scanOf("b", true))
	f.registry.AddRun(scanOf("c", false))
	f.expectParseOf("a", "b")

	errs := f.registry.ParseSelected(context.Background())
	require.Empty(t, errs)

	// Already cached, so not parsed again.
	errs = f.registry.ParseSelected(context.Background())
	require.Empty(t, errs)

	assert.ElementsMatch(t, []string{"a", "b"}, f.registry.CachedRunIDs())
	data, ok := f.registry.ParsedData("a")
	require.True(t, ok)
	assert.Equal(t, "name-a", data.RunName)
	_, ok = f.registry.ParsedData("c")
	assert.False(t, ok)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CacheMisses))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CachedRuns))
}

func TestParseSelected_EvictsLeastRecentlyUsed(t *testing.T) {
	f := setup(t, runregistry.DefaultCacheSize)
	f.parseAny()

	var ids []string
	for i := range runregistry.DefaultCacheSize + 1 {
		id := fmt.Sprintf("run-%02d", i)
		ids = append(ids, id)
		f.registry.AddRun(scanOf(id, false))
	}

	for _, id := range ids {
		f.registry.DeselectAll()
		f.registry.ToggleRun(id)
		require.Empty(t, f.registry.ParseSelected(context.Background()))
	}

	cached := f.registry.CachedRunIDs()
	assert.Equal(t, ids[1:], cached)
	for _, id := range ids {
		_, ok := f.registry.ParsedData(id)
		assert.Equal(t, id != "run-00", ok, id)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Evictions))
}

func TestParseSelected_HitsAreTouched(t *testing.T) {
	f := setup(t, 3)
	f.parseAny()
	for _, id := range []string{"a", "b", "c", "d"} {
		f.registry.AddRun(scanOf(id, false))
	}

	parseOnly := func(id string) {
		f.registry.DeselectAll()
		f.registry.ToggleRun(id)
		require.Empty(t, f.registry.ParseSelected(context.Background()))
	}

	parseOnly("a")
	parseOnly("b")
	parseOnly("c")
	parseOnly("a")
	parseOnly("d")

	assert.Equal(t, []string{"c", "a", "d"}, f.registry.CachedRunIDs())
}

func TestParseSelected_FailureDoesNotAffectOthers(t *testing.T) {
	f := setup(t, 0)
	f.registry.AddRun(scanOf("good", true))
	f.registry.AddRun(scanOf("bad", true))
	f.registry.AddRun(scanOf("panics", true))

	f.expectParseOf("good")
	f.parser.EXPECT().
		Parse(gomock.Any(), gomock.Cond(func(scan runmodel.RunScanResult) bool {
			return scan.RunID == "bad"
		})).
		Return(nil, errors.New("runparse: invalid format"))
	f.parser.EXPECT().
		Parse(gomock.Any(), gomock.Cond(func(scan runmodel.RunScanResult) bool {
			return scan.RunID == "panics"
		})).
		DoAndReturn(func(context.Context, runmodel.RunScanResult) (*runmodel.RunData, error) {
			panic("boom")
		})

	errs := f.registry.ParseSelected(context.Background())

	assert.Len(t, errs, 2)
	assert.ErrorContains(t, errs["bad"], "invalid format")
	assert.ErrorContains(t, errs["panics"], "boom")
	assert.Equal(t, []string{"good"}, f.registry.CachedRunIDs())
	assert.Len(t, f.registry.Runs(), 3)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ParseFailures))
}

func TestUpdateRun_InvalidatesOnModification(t *testing.T) {
	f := setup(t, 0)
	f.registry.AddRun(scanOf("a", true))
	f.expectParseOf("a")
	require.Empty(t, f.registry.ParseSelected(context.Background()))

	same := scanOf("a", true)
	assert.True(t, f.registry.UpdateRun(same))
	assert.Equal(t, []string{"a"}, f.registry.CachedRunIDs())

	changed := scanOf("a", true)
	changed.LastModified = baseTime.Add(time.Second)
	assert.True(t, f.registry.UpdateRun(changed))
	assert.Empty(t, f.registry.CachedRunIDs())
	assert.Zero(t, testutil.ToFloat64(f.metrics.Evictions))

	f.expectParseOf("a")
	require.Empty(t, f.registry.ParseSelected(context.Background()))
	assert.Equal(t, []string{"a"}, f.registry.CachedRunIDs())

	assert.False(t, f.registry.UpdateRun(scanOf("unknown", true)))
}

func TestParseSelected_DiscardsRemovedRun(t *testing.T) {
	f := setup(t, 0)
	f.registry.AddRun(scanOf("a", true))
	f.parser.EXPECT().
		Parse(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, scan runmodel.RunScanResult) (*runmodel.RunData, error) {
			f.registry.RemoveRun(scan.RunID)
			return runDataFor(scan), nil
		})

	errs := f.registry.ParseSelected(context.Background())

	assert.Empty(t, errs)
	assert.Empty(t, f.registry.CachedRunIDs())
}

func TestParseSelected_DiscardsStaleParse(t *testing.T) {
	f := setup(t, 0)
	f.registry.AddRun(scanOf("a", true))
	f.parser.EXPECT().
		Parse(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, scan runmodel.RunScanResult) (*runmodel.RunData, error) {
			newer := scan
			newer.LastModified = scan.LastModified.Add(time.Minute)
			f.registry.UpdateRun(newer)
			return runDataFor(scan), nil
		})

	require.Empty(t, f.registry.ParseSelected(context.Background()))
	assert.Empty(t, f.registry.CachedRunIDs())

	f.expectParseOf("a")
	require.Empty(t, f.registry.ParseSelected(context.Background()))
	assert.Equal(t, []string{"a"}, f.registry.CachedRunIDs())
}

func TestMergeMetrics(t *testing.T) {
	f := setup(t, 0)
	f.registry.AddRun(scanOf("b", true))
	f.registry.AddRun(scanOf("a", true))
	f.registry.AddRun(scanOf("hidden", false))
	f.registry.AddRun(scanOf("later", false))
	f.parser.EXPECT().
		Parse(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, scan runmodel.RunScanResult) (*runmodel.RunData, error) {
			data := runDataFor(scan)
			if scan.RunID == "b" {
				data.RunName = ""
				data.Metrics["acc"] = runmodel.MetricSeries{{Step: 0, Value: 0.1}, {Step: 1, Value: 0.2}}
			}
			return data, nil
		}).
		Times(2)
	require.Empty(t, f.registry.ParseSelected(context.Background()))

	// Selected but not parsed yet.
	f.registry.ToggleRun("later")

	merged := f.registry.MergeMetrics()

	require.Len(t, merged.Training, 2)
	assert.Equal(t, "acc", merged.Training[0].MetricName)
	assert.Equal(t, []runmodel.Dataset{{
		RunID:   "b",
		RunName: "name-b",
		Color:   f.registry.Color("b"),
		Data:    runmodel.MetricSeries{{Step: 0, Value: 0.1}, {Step: 1, Value: 0.2}},
	}}, merged.Training[0].Datasets)

	loss := merged.Training[1]
	assert.Equal(t, "loss", loss.MetricName)
	require.Len(t, loss.Datasets, 2)
	assert.Equal(t, "a", loss.Datasets[0].RunID)
	assert.Equal(t, "b", loss.Datasets[1].RunID)

	require.Len(t, merged.System, 1)
	assert.Equal(t, "cpu", merged.System[0].MetricName)
	assert.Len(t, merged.System[0].Datasets, 2)
}

func TestHandleEvent(t *testing.T) {
	f := setup(t, 0)
	f.parseAny()

	added := scanOf("a", true)
	f.registry.HandleEvent(runmodel.FileChangeEvent{
		Type:     runmodel.ChangeAdded,
		FilePath: added.FilePath,
		Scan:     &added,
	})
	require.Empty(t, f.registry.ParseSelected(context.Background()))
	assert.Equal(t, []string{"a"}, f.registry.CachedRunIDs())

	// The log now reports a different run ID.
	renamed := added
	renamed.RunID = "a2"
	renamed.LastModified = baseTime.Add(time.Second)
	f.registry.HandleEvent(runmodel.FileChangeEvent{
		Type:     runmodel.ChangeModified,
		FilePath: renamed.FilePath,
		Scan:     &renamed,
	})
	_, ok := f.registry.Run("a")
	assert.False(t, ok)
	_, ok = f.registry.Run("a2")
	assert.True(t, ok)
	assert.Empty(t, f.registry.CachedRunIDs())
	byPath, ok := f.registry.RunByPath(renamed.FilePath)
	assert.True(t, ok)
	assert.Equal(t, "a2", byPath.RunID)

	f.registry.HandleEvent(runmodel.FileChangeEvent{
		Type:     runmodel.ChangeModified,
		FilePath: "/ignored",
	})
	f.registry.HandleEvent(runmodel.FileChangeEvent{
		Type:     runmodel.ChangeDeleted,
		FilePath: renamed.FilePath,
	})
	assert.Empty(t, f.registry.Runs())
	_, ok = f.registry.RunByPath(renamed.FilePath)
	assert.False(t, ok)
}

func TestConcurrentMutations(t *testing.T) {
	f := setup(t, 5)
	f.parseAny()
	for i := range 10 {
		f.registry.AddRun(scanOf(fmt.Sprintf("r%d", i), true))
	}

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("r%d", i)
			for range 20 {
				f.registry.ToggleRun(id)
				f.registry.ParseSelected(context.Background())
				f.registry.MergeMetrics()
			}
		}()
	}
	wg.Wait()

	cached := f.registry.CachedRunIDs()
	assert.LessOrEqual(t, len(cached), 5)
	for _, id := range cached {
		_, ok := f.registry.ParsedData(id)
		assert.True(t, ok)
	}
}
