// Package metrics implements regression evaluation metrics over flat
// prediction and target slices.
//
// Correlations are undefined for fewer than two points or zero variance
// and return NaN in that case rather than an error, so a degenerate batch
// shows up in the logs instead of aborting an epoch.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
)

// ErrUnknownMetric is returned by Lookup for unregistered names.
var ErrUnknownMetric = errors.New("unknown metric")

// Func scores predictions against targets. Both slices have equal length.
type Func func(preds, targets []float32) float64

// Metric is a named metric function. The name is appended to a stage
// prefix when logged ("val" + "pearson").
type Metric struct {
	Name string
	Fn   Func
}

var registry = map[string]Func{
	"pearson":  Pearson,
	"spearman": Spearman,
	"mae":      MAE,
	"mse":      MSE,
	"rmse":     RMSE,
	"r2":       R2,
}

// Names returns the registered metric names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves a registered metric by case-insensitive name.
func Lookup(name string) (Metric, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	fn, ok := registry[key]
	if !ok {
		return Metric{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownMetric, name, strings.Join(Names(), ", "))
	}
	return Metric{Name: key, Fn: fn}, nil
}

// Resolve looks up every name in order.
func Resolve(names []string) ([]Metric, error) {
	out := make([]Metric, 0, len(names))
	for _, name := range names {
		m, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Pearson returns the Pearson correlation coefficient.
func Pearson(preds, targets []float32) float64 {
	checkLengths(preds, targets)
	return pearson(widen(preds), widen(targets))
}

// Spearman returns the Spearman rank correlation. Ties receive the
// average of the ranks they span.
func Spearman(preds, targets []float32) float64 {
	checkLengths(preds, targets)
	return pearson(ranks(preds), ranks(targets))
}

// MAE returns the mean absolute error.
func MAE(preds, targets []float32) float64 {
	checkLengths(preds, targets)
	if len(preds) == 0 {
		return math.NaN()
	}
	var sum float64
	for i := range preds {
		sum += math.Abs(float64(preds[i]) - float64(targets[i]))
	}
	return sum / float64(len(preds))
}

// MSE returns the mean squared error.
func MSE(preds, targets []float32) float64 {
	checkLengths(preds, targets)
	if len(preds) == 0 {
		return math.NaN()
	}
	var sum float64
	for i := range preds {
		d := float64(preds[i]) - float64(targets[i])
		sum += d * d
	}
	return sum / float64(len(preds))
}

// RMSE returns the root mean squared error.
func RMSE(preds, targets []float32) float64 {
	return math.Sqrt(MSE(preds, targets))
}

// R2 returns the coefficient of determination, 1 - SS_res/SS_tot.
// Constant targets give NaN.
func R2(preds, targets []float32) float64 {
	checkLengths(preds, targets)
	if len(targets) < 2 {
		return math.NaN()
	}
	mean := meanOf(widen(targets))
	var ssRes, ssTot float64
	for i := range targets {
		t := float64(targets[i])
		d := float64(preds[i]) - t
		ssRes += d * d
		ssTot += (t - mean) * (t - mean)
	}
	if ssTot == 0 {
		return math.NaN()
	}
	return 1 - ssRes/ssTot
}

func pearson(x, y []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	mx, my := meanOf(x), meanOf(y)
	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}

// ranks returns 1-based average ranks.
func ranks(values []float32) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		switch {
		case values[a] < values[b]:
			return -1
		case values[a] > values[b]:
			return 1
		default:
			return 0
		}
	})

	out := make([]float64, len(values))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

func meanOf(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

func widen(x []float32) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = float64(v)
	}
	return out
}

func checkLengths(preds, targets []float32) {
	if len(preds) != len(targets) {
		panic(fmt.Sprintf("metrics: %d predictions for %d targets", len(preds), len(targets)))
	}
}
