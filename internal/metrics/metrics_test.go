package metrics_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/seqreg/internal/metrics"
)

func TestMetricValues(t *testing.T) {
	preds := []float32{1, 2, 3, 4}
	targets := []float32{1.5, 2, 2.5, 5}

	tests := []struct {
		name string
		fn   metrics.Func
		want float64
	}{
		{"mae", metrics.MAE, (0.5 + 0 + 0.5 + 1) / 4},
		{"mse", metrics.MSE, (0.25 + 0 + 0.25 + 1) / 4},
		{"rmse", metrics.RMSE, math.Sqrt(1.5 / 4)},
		{"spearman", metrics.Spearman, 1},
		// mean 2.75, ss_tot = 1.5625+0.5625+0.0625+5.0625
		{"r2", metrics.R2, 1 - 1.5/7.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.fn(preds, targets), 1e-9)
		})
	}
}

func TestPearson(t *testing.T) {
	assert.InDelta(t, 1.0, metrics.Pearson([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, -1.0, metrics.Pearson([]float32{1, 2, 3}, []float32{3, 2, 1}), 1e-9)
	assert.InDelta(t, 0.0, metrics.Pearson([]float32{1, 2, 3, 4}, []float32{1, -1, -1, 1}), 1e-9)
}

func TestSpearmanTies(t *testing.T) {
	// ranks: preds [1, 2.5, 2.5, 4], targets [1, 2, 3, 4]
	got := metrics.Spearman([]float32{0.1, 0.5, 0.5, 0.9}, []float32{1, 2, 3, 4})
	assert.InDelta(t, 0.9486832980505138, got, 1e-9)

	// Monotonic but non-linear: Spearman is exact where Pearson is not.
	x := []float32{1, 2, 3, 4, 5}
	y := []float32{1, 8, 27, 64, 125}
	assert.InDelta(t, 1.0, metrics.Spearman(x, y), 1e-9)
	assert.Less(t, metrics.Pearson(x, y), 1.0)
}

func TestDegenerateInputs(t *testing.T) {
	assert.True(t, math.IsNaN(metrics.Pearson([]float32{1}, []float32{2})))
	assert.True(t, math.IsNaN(metrics.Pearson([]float32{1, 1}, []float32{2, 3})))
	assert.True(t, math.IsNaN(metrics.Spearman(nil, nil)))
	assert.True(t, math.IsNaN(metrics.R2([]float32{1, 2}, []float32{3, 3})))
	assert.True(t, math.IsNaN(metrics.MAE(nil, nil)))

	assert.Panics(t, func() { metrics.MSE([]float32{1}, []float32{1, 2}) })
}

func TestLookup(t *testing.T) {
	m, err := metrics.Lookup(" Pearson ")
	require.NoError(t, err)
	assert.Equal(t, "pearson", m.Name)
	assert.InDelta(t, 1.0, m.Fn([]float32{1, 2}, []float32{3, 4}), 1e-9)

	_, err = metrics.Lookup("accuracy")
	require.ErrorIs(t, err, metrics.ErrUnknownMetric)

	all, err := metrics.Resolve(metrics.Names())
	require.NoError(t, err)
	assert.Len(t, all, 6)

	_, err = metrics.Resolve([]string{"mae", "f1"})
	require.ErrorIs(t, err, metrics.ErrUnknownMetric)
}
