// Package observe provides sinks for the observations emitted by the
// adapter's lifecycle steps.
package observe

import (
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/born-ml/seqreg/internal/adapter"
	"github.com/born-ml/seqreg/internal/logger"
)

// Recorder keeps every observation in memory and aggregates them into
// means weighted by batch size. It is safe for concurrent use.
//
// NaN values (a correlation over a degenerate batch) are kept in the raw
// list but left out of means.
type Recorder struct {
	mu   sync.Mutex
	all  []adapter.Observation
	aggs map[string]*aggregate
}

type aggregate struct {
	weighted float64
	weight   float64
	last     float64
	count    int
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{aggs: make(map[string]*aggregate)}
}

// Log records obs.
func (r *Recorder) Log(obs adapter.Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.all = append(r.all, obs)
	agg, ok := r.aggs[obs.Name]
	if !ok {
		agg = &aggregate{}
		r.aggs[obs.Name] = agg
	}
	agg.last = obs.Value
	agg.count++
	if math.IsNaN(obs.Value) {
		return
	}
	w := float64(max(obs.BatchSize, 1))
	agg.weighted += obs.Value * w
	agg.weight += w
}

// Observations returns a copy of everything logged since the last Reset.
func (r *Recorder) Observations() []adapter.Observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]adapter.Observation(nil), r.all...)
}

// Mean returns the batch-size weighted mean of name. It reports false
// when name was never logged and NaN when every value was NaN.
func (r *Recorder) Mean(name string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agg, ok := r.aggs[name]
	if !ok {
		return 0, false
	}
	if agg.weight == 0 {
		return math.NaN(), true
	}
	return agg.weighted / agg.weight, true
}

// Last returns the most recent value of name.
func (r *Recorder) Last(name string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agg, ok := r.aggs[name]
	if !ok {
		return 0, false
	}
	return agg.last, true
}

// Means returns the weighted mean of every name.
func (r *Recorder) Means() map[string]float64 {
	names := r.Names()
	out := make(map[string]float64, len(names))
	for _, name := range names {
		out[name], _ = r.Mean(name)
	}
	return out
}

// Names returns every logged name in sorted order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.aggs))
	for name := range r.aggs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset forgets everything, typically at an epoch boundary.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = nil
	r.aggs = make(map[string]*aggregate)
}

// Slog writes each observation as a debug record.
type Slog struct {
	log logger.Logger
}

// NewSlog creates a sink writing to log.
func NewSlog(log logger.Logger) *Slog {
	return &Slog{log: log}
}

// Log writes obs.
func (s *Slog) Log(obs adapter.Observation) {
	s.log.Debug("observation",
		"name", obs.Name,
		"value", obs.Value,
		"stage", string(obs.Stage),
		"batch", obs.BatchIdx,
		"batch_size", obs.BatchSize,
	)
}

// Record is one line of a JSON lines metrics file. Non-finite values are
// written as null.
type Record struct {
	Time      time.Time     `json:"time"`
	RunID     string        `json:"run_id,omitempty"`
	Epoch     int           `json:"epoch"`
	Step      int           `json:"step"`
	Name      string        `json:"name"`
	Value     *float64      `json:"value"`
	Stage     adapter.Stage `json:"stage"`
	BatchIdx  int           `json:"batch_idx"`
	BatchSize int           `json:"batch_size,omitempty"`
}

// JSONLines writes one JSON object per observation. Write errors are
// kept and returned by Err, since Log has no error result.
type JSONLines struct {
	mu    sync.Mutex
	enc   *json.Encoder
	runID string
	epoch int
	step  int
	err   error
	now   func() time.Time
}

// NewJSONLines creates a sink writing to w. runID is stamped on every line.
func NewJSONLines(w io.Writer, runID string) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w), runID: runID, now: time.Now}
}

// SetPosition sets the epoch and global step stamped on later lines.
func (j *JSONLines) SetPosition(epoch, step int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.epoch, j.step = epoch, step
}

// Log writes obs as one line.
func (j *JSONLines) Log(obs adapter.Observation) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.write(Record{
		Time:      j.now().UTC(),
		RunID:     j.runID,
		Epoch:     j.epoch,
		Step:      j.step,
		Name:      obs.Name,
		Value:     finite(obs.Value),
		Stage:     obs.Stage,
		BatchIdx:  obs.BatchIdx,
		BatchSize: obs.BatchSize,
	})
}

// LogSummary writes an aggregated value, such as an epoch mean, with
// batch index -1.
func (j *JSONLines) LogSummary(name string, value float64, stage adapter.Stage) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.write(Record{
		Time:     j.now().UTC(),
		RunID:    j.runID,
		Epoch:    j.epoch,
		Step:     j.step,
		Name:     name,
		Value:    finite(value),
		Stage:    stage,
		BatchIdx: -1,
	})
}

// Err returns the first write error.
func (j *JSONLines) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *JSONLines) write(rec Record) {
	if j.err != nil {
		return
	}
	j.err = j.enc.Encode(rec)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Multi fans observations out to several sinks in order.
type Multi []adapter.Logger

// Log forwards obs to every non-nil sink.
func (m Multi) Log(obs adapter.Observation) {
	for _, l := range m {
		if l != nil {
			l.Log(obs)
		}
	}
}
