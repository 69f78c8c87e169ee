// Package trainer drives an adapter through fit, validate, test and
// predict loops on a tape-recording backend.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/born-ml/seqreg/internal/adapter"
	"github.com/born-ml/seqreg/internal/autodiff"
	"github.com/born-ml/seqreg/internal/logger"
	"github.com/born-ml/seqreg/internal/observe"
	"github.com/born-ml/seqreg/internal/optim"
	"github.com/born-ml/seqreg/internal/tensor"
)

var (
	// ErrStepFailed wraps a panic recovered from inside a step.
	ErrStepFailed = errors.New("trainer: step failed")

	// ErrUnlabelled is returned when a loop that needs targets receives a
	// batch without them.
	ErrUnlabelled = errors.New("trainer: batch has no targets")
)

// Source yields the batches of one epoch.
type Source[B tensor.Backend] interface {
	Batches() iter.Seq2[int, *adapter.Batch[B]]
	Len() int
}

// Mode tells whether the monitored value improves downwards or upwards.
type Mode string

const (
	ModeMin Mode = "min"
	ModeMax Mode = "max"
)

// Config controls the fit loop.
type Config struct {
	// MaxEpochs bounds training; zero runs until MaxSteps.
	MaxEpochs int `yaml:"max_epochs"`
	// MaxSteps stops after this many optimizer steps (0 = unbounded).
	MaxSteps int `yaml:"max_steps"`
	// GradClipNorm rescales gradients to this global L2 norm (0 = off).
	GradClipNorm float64 `yaml:"grad_clip_norm"`
	// ValCheckInterval runs validation every N epochs. The last epoch is
	// always validated.
	ValCheckInterval int `yaml:"val_check_interval"`
	// Monitor names the epoch mean that selects the best checkpoint and
	// drives early stopping, e.g. "val_loss" or "valpearson".
	Monitor string `yaml:"monitor"`
	Mode    Mode   `yaml:"mode"`
	// Patience stops after this many validations without improvement
	// (0 = never).
	Patience int `yaml:"patience"`
	// CheckpointDir holds one directory per run. Empty disables writing.
	CheckpointDir string `yaml:"checkpoint_dir"`
	// LogEvery emits a progress line every N steps (0 = only per epoch).
	LogEvery int `yaml:"log_every"`
}

// DefaultConfig returns a single-epoch configuration monitoring val_loss.
func DefaultConfig() Config {
	return Config{
		MaxEpochs:        1,
		ValCheckInterval: 1,
		Monitor:          "val_loss",
		Mode:             ModeMin,
	}
}

// EpochSummary holds the epoch means of every logged name.
type EpochSummary struct {
	Epoch    int                `json:"epoch" yaml:"epoch"`
	Step     int                `json:"step" yaml:"step"`
	LR       float32            `json:"lr" yaml:"lr"`
	Metrics  map[string]float64 `json:"metrics" yaml:"metrics"`
	Duration time.Duration      `json:"duration" yaml:"duration"`
}

// Result describes a finished Fit.
type Result struct {
	RunID     string
	Epochs    int
	Steps     int
	BestEpoch int
	BestScore float64
	// StopReason is max_epochs, max_steps or early_stopping.
	StopReason string
	History    []EpochSummary
	// RunDir is empty when checkpointing is disabled.
	RunDir string
}

// Option configures a Trainer.
type Option func(*options)

type options struct {
	log   logger.Logger
	sinks []adapter.Logger
	runID string
}

// WithLogger sets the process logger.
func WithLogger(log logger.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithSink adds an observation sink next to the built-in ones.
func WithSink(sink adapter.Logger) Option {
	return func(o *options) { o.sinks = append(o.sinks, sink) }
}

// WithRunID fixes the run id instead of drawing a random UUID.
func WithRunID(id string) Option {
	return func(o *options) { o.runID = id }
}

// Trainer runs the loops. It is not safe for concurrent use.
type Trainer[B autodiff.BackwardCapable] struct {
	cfg     Config
	backend B
	log     logger.Logger
	sinks   []adapter.Logger
	runID   string
}

// New creates a trainer over backend, whose tape records training steps.
func New[B autodiff.BackwardCapable](backend B, cfg Config, opts ...Option) (*Trainer[B], error) {
	o := options{log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}

	if cfg.MaxEpochs <= 0 && cfg.MaxSteps <= 0 {
		return nil, errors.New("trainer: max epochs or max steps must be positive")
	}
	if cfg.GradClipNorm < 0 || cfg.Patience < 0 {
		return nil, errors.New("trainer: grad clip norm and patience must not be negative")
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeMin
	case ModeMin, ModeMax:
	default:
		return nil, fmt.Errorf("trainer: unknown mode %q", cfg.Mode)
	}
	if cfg.ValCheckInterval <= 0 {
		cfg.ValCheckInterval = 1
	}

	return &Trainer[B]{
		cfg:     cfg,
		backend: backend,
		log:     o.log.With("run_id", o.runID),
		sinks:   o.sinks,
		runID:   o.runID,
	}, nil
}

// RunID returns the id used for logging and the checkpoint directory.
func (t *Trainer[B]) RunID() string {
	return t.runID
}

// Fit trains a on train, validating on val when it is non-nil.
func (t *Trainer[B]) Fit(ctx context.Context, a *adapter.Adapter[B], train, val Source[B]) (*Result, error) {
	if train == nil || train.Len() == 0 {
		return nil, errors.New("trainer: empty training set")
	}

	ckpt, err := t.openCheckpoints(a)
	if err != nil {
		return nil, err
	}
	defer ckpt.close()

	recorder := observe.NewRecorder()
	a.SetLogger(t.sinkFor(recorder, ckpt.jsonl()))

	oc := a.ConfigureOptimizers()
	opt := oc.Optimizer
	var sched optim.Scheduler
	stepInterval := false
	if oc.Paired() {
		sched = oc.Scheduler.Scheduler
		stepInterval = oc.Scheduler.Interval == optim.IntervalStep
	}

	res := &Result{RunID: t.runID, RunDir: ckpt.dir, BestScore: math.NaN()}
	t.log.Info("fit started",
		"train_batches", train.Len(),
		"params", len(a.Parameters()),
		"optimizer_lr", opt.GetLR(),
		"scheduled", oc.Paired(),
	)

	stale := 0
	step := 0
	for epoch := 1; t.cfg.MaxEpochs <= 0 || epoch <= t.cfg.MaxEpochs; epoch++ {
		started := time.Now()
		recorder.Reset()
		a.SetTraining(true)

		for idx, batch := range train.Batches() {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			ckpt.position(epoch, step)
			loss, err := t.trainStep(a, opt, batch, idx)
			if err != nil {
				return res, err
			}
			step++
			if sched != nil && stepInterval {
				sched.Step()
			}
			if t.cfg.LogEvery > 0 && step%t.cfg.LogEvery == 0 {
				t.log.Info("train", "epoch", epoch, "step", step, "loss", loss, "lr", opt.GetLR())
			}
			if t.cfg.MaxSteps > 0 && step >= t.cfg.MaxSteps {
				break
			}
		}

		last := t.lastEpoch(epoch, step)
		if val != nil && (epoch%t.cfg.ValCheckInterval == 0 || last) {
			if err := t.evaluate(ctx, a, val, adapter.StageValidate); err != nil {
				return res, err
			}
		}
		if sched != nil && !stepInterval {
			sched.Step()
		}

		summary := EpochSummary{
			Epoch:    epoch,
			Step:     step,
			LR:       opt.GetLR(),
			Metrics:  recorder.Means(),
			Duration: time.Since(started),
		}
		res.History = append(res.History, summary)
		res.Epochs, res.Steps = epoch, step
		ckpt.summary(summary)
		t.logEpoch(summary)

		improved, seen := t.improved(summary.Metrics, res.BestScore)
		if improved {
			res.BestScore = summary.Metrics[t.cfg.Monitor]
			res.BestEpoch = epoch
			stale = 0
			if err := ckpt.save(bestDir); err != nil {
				return res, err
			}
		} else if seen {
			stale++
		}
		if err := ckpt.save(lastDir); err != nil {
			return res, err
		}

		switch {
		case t.cfg.Patience > 0 && stale >= t.cfg.Patience:
			res.StopReason = "early_stopping"
		case t.cfg.MaxSteps > 0 && step >= t.cfg.MaxSteps:
			res.StopReason = "max_steps"
		case last:
			res.StopReason = "max_epochs"
		}
		if res.StopReason != "" {
			break
		}
	}

	if err := ckpt.err(); err != nil {
		return res, err
	}
	t.log.Info("fit finished",
		"epochs", res.Epochs,
		"steps", res.Steps,
		"reason", res.StopReason,
		"best_epoch", res.BestEpoch,
		"best_"+t.cfg.Monitor, res.BestScore,
	)
	return res, nil
}

// Validate runs the validation loop and returns the means of val_loss
// and every val metric.
func (t *Trainer[B]) Validate(ctx context.Context, a *adapter.Adapter[B], src Source[B]) (map[string]float64, error) {
	return t.run(ctx, a, src, adapter.StageValidate)
}

// Test runs the test loop and returns the means of every test metric.
func (t *Trainer[B]) Test(ctx context.Context, a *adapter.Adapter[B], src Source[B]) (map[string]float64, error) {
	return t.run(ctx, a, src, adapter.StageTest)
}

// Predict returns one score per example in source order.
func (t *Trainer[B]) Predict(ctx context.Context, a *adapter.Adapter[B], src Source[B]) ([]float32, error) {
	a.SetTraining(false)
	var preds []float32
	var err error
	autodiff.NoGrad(t.backend, func() {
		for idx, batch := range src.Batches() {
			if err = ctx.Err(); err != nil {
				return
			}
			err = guard(adapter.StagePredict, idx, func() {
				// A single-example batch squeezes to 0-D; Data has one
				// element either way.
				preds = append(preds, a.PredictStep(batch, idx).Data()...)
			})
			if err != nil {
				return
			}
		}
	})
	return preds, err
}

func (t *Trainer[B]) run(ctx context.Context, a *adapter.Adapter[B], src Source[B], stage adapter.Stage) (map[string]float64, error) {
	recorder := observe.NewRecorder()
	a.SetLogger(t.sinkFor(recorder, nil))
	if err := t.evaluate(ctx, a, src, stage); err != nil {
		return nil, err
	}
	means := recorder.Means()
	t.log.Info(string(stage)+" finished", flatten(means)...)
	return means, nil
}

func (t *Trainer[B]) trainStep(a *adapter.Adapter[B], opt optim.Optimizer, batch *adapter.Batch[B], idx int) (loss float32, err error) {
	if batch.Targets == nil {
		return 0, fmt.Errorf("%w: train batch %d", ErrUnlabelled, idx)
	}

	tape := t.backend.GetTape()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	err = guard(adapter.StageTrain, idx, func() {
		tape.StartRecording()
		l := a.TrainingStep(batch, idx)
		grads := autodiff.Backward(l, t.backend)
		tape.StopRecording()

		if t.cfg.GradClipNorm > 0 {
			optim.ClipGradNorm(grads, a.Parameters(), t.cfg.GradClipNorm)
		}
		opt.Step(grads)
		opt.ZeroGrad()
		loss = l.Item()
	})
	return loss, err
}

func (t *Trainer[B]) evaluate(ctx context.Context, a *adapter.Adapter[B], src Source[B], stage adapter.Stage) error {
	a.SetTraining(false)
	defer a.SetTraining(true)

	var err error
	autodiff.NoGrad(t.backend, func() {
		for idx, batch := range src.Batches() {
			if err = ctx.Err(); err != nil {
				return
			}
			if batch.Targets == nil {
				err = fmt.Errorf("%w: %s batch %d", ErrUnlabelled, stage, idx)
				return
			}
			err = guard(stage, idx, func() {
				if stage == adapter.StageTest {
					a.TestStep(batch, idx)
				} else {
					a.ValidationStep(batch, idx)
				}
			})
			if err != nil {
				return
			}
		}
	})
	return err
}

// guard converts a panic raised by the engine into an error.
func guard(stage adapter.Stage, idx int, f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s batch %d: %v", ErrStepFailed, stage, idx, r)
		}
	}()
	f()
	return nil
}

func (t *Trainer[B]) sinkFor(recorder *observe.Recorder, jsonl *observe.JSONLines) adapter.Logger {
	sinks := observe.Multi{recorder, observe.NewSlog(t.log)}
	if jsonl != nil {
		sinks = append(sinks, jsonl)
	}
	return append(sinks, t.sinks...)
}

func (t *Trainer[B]) lastEpoch(epoch, step int) bool {
	if t.cfg.MaxSteps > 0 && step >= t.cfg.MaxSteps {
		return true
	}
	return t.cfg.MaxEpochs > 0 && epoch >= t.cfg.MaxEpochs
}

// improved reports whether the monitored mean beats best, and whether it
// was present at all.
func (t *Trainer[B]) improved(means map[string]float64, best float64) (better, seen bool) {
	v, ok := means[t.cfg.Monitor]
	if !ok || math.IsNaN(v) {
		return false, false
	}
	if math.IsNaN(best) {
		return true, true
	}
	if t.cfg.Mode == ModeMax {
		return v > best, true
	}
	return v < best, true
}

func (t *Trainer[B]) logEpoch(s EpochSummary) {
	args := []any{"epoch", s.Epoch, "step", s.Step, "lr", s.LR, "duration", s.Duration}
	t.log.Info("epoch finished", append(args, flatten(s.Metrics)...)...)
}

func flatten(m map[string]float64) []any {
	args := make([]any, 0, 2*len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		args = append(args, k, m[k])
	}
	return args
}
