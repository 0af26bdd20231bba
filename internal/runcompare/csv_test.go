package runcompare_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wandb/runlens/internal/runcompare"
	"github.com/wandb/runlens/internal/runmodel"
)

func TestWriteCSV_OuterJoin(t *testing.T) {
	metric := runmodel.MergedMetric{
		MetricName: "loss",
		Datasets: []runmodel.Dataset{
			{
				RunID:   "a",
				RunName: "alpha",
				Data: runmodel.MetricSeries{
					{Step: 0, Value: 1},
					{Step: 1, Value: 0.5},
					{Step: 2, Value: 0.25},
				},
			},
			{
				RunID: "bbbbbbbbcccc",
				Data: runmodel.MetricSeries{
					{Step: 1, Value: 2},
					{Step: 2, Value: 1.5},
					{Step: 3, Value: 1},
				},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, runcompare.WriteCSV(&buf, metric))

	assert.Equal(t,
		"step,alpha,bbbbbbbb\n"+
			"0,1,\n"+
			"1,0.5,2\n"+
			"2,0.25,1.5\n"+
			"3,,1\n",
		buf.String())
}

func TestWriteCSV_QuotesNames(t *testing.T) {
	csv := runcompare.CSV(runmodel.MergedMetric{
		Datasets: []runmodel.Dataset{{
			RunName: "lr=0.1, bs=32",
			Data:    runmodel.MetricSeries{{Step: 5, Value: 12345.678}},
		}},
	})

	assert.Equal(t, "step,\"lr=0.1, bs=32\"\n5,1.234568e+4\n", csv)
}

func TestWriteCSV_NoDatasets(t *testing.T) {
	assert.Empty(t, runcompare.CSV(runmodel.MergedMetric{MetricName: "loss"}))
}

func TestDecimatePoints(t *testing.T) {
	series := make(runmodel.MetricSeries, 1000)
	for i := range series {
		series[i] = runmodel.MetricPoint{Step: int64(i), Value: float64(i)}
	}

	decimated := runcompare.DecimatePoints(series, 500)

	assert.Len(t, decimated, 501)
	assert.Equal(t, int64(0), decimated[0].Step)
	assert.Equal(t, int64(2), decimated[1].Step)
	assert.Equal(t, int64(999), decimated[len(decimated)-1].Step)

	assert.Len(t, runcompare.DecimatePoints(series[:500], 0), 500)
	assert.Len(t, runcompare.DecimatePoints(series[:301], 100), 76)
}

func TestGroupMetricsByPrefix(t *testing.T) {
	groups := runcompare.GroupMetricsByPrefix([]string{
		"loss/train",
		"train_loss",
		"gpu.0.memory",
		"loss/val",
		"gpu.0.temp",
		"acc",
		"lr.decay",
	})

	assert.Equal(t, map[string][]string{
		"loss":     {"loss/train", "loss/val"},
		"train":    {"train_loss"},
		"gpu.0":    {"gpu.0.memory", "gpu.0.temp"},
		"acc":      {"acc"},
		"lr.decay": {"lr.decay"},
	}, groups)
}
