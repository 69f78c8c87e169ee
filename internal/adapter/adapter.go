// Package adapter binds a sequence-regression backbone to a loss, a fixed
// list of metrics and optimizer factories, and exposes the training,
// validation, test and prediction steps a training loop drives.
//
// Every step reports through an explicit Logger rather than a framework
// side channel:
//
//	train step      -> "train_loss"
//	validation step -> "val_loss", then "val"+name per metric
//	test step       -> "test"+name per metric (no loss)
package adapter

import (
	"errors"
	"fmt"
	"maps"

	"github.com/born-ml/seqreg/internal/metrics"
	"github.com/born-ml/seqreg/internal/model"
	"github.com/born-ml/seqreg/internal/nn"
	"github.com/born-ml/seqreg/internal/optim"
	"github.com/born-ml/seqreg/internal/tensor"
)

// Errors returned by New.
var (
	ErrMissingCollaborator = errors.New("missing collaborator")
	ErrDuplicateMetric     = errors.New("duplicate metric name")
	ErrInvalidMetric       = errors.New("invalid metric")
)

// Backbone is a pretrained sequence classifier with a single output label.
type Backbone[B tensor.Backend] interface {
	Forward(input *model.Input[B]) *model.Output[B]
	Parameters() []*nn.Parameter[B]
}

// Batch pairs model inputs with regression targets. Targets may be nil
// for prediction.
type Batch[B tensor.Backend] struct {
	Inputs  *model.Input[B]
	Targets *tensor.Tensor[float64, B] // [batch] or [batch, 1]
}

// Size returns the number of examples in the batch.
func (b *Batch[B]) Size() int {
	return b.Inputs.InputIDs.Shape()[0]
}

// SchedulerConfig is a scheduler bound to an optimizer, with the unit it
// steps on.
type SchedulerConfig struct {
	Scheduler optim.Scheduler
	Interval  optim.Interval
}

// OptimizerConfig is the result of ConfigureOptimizers: a bare optimizer,
// or an optimizer paired with its scheduler.
type OptimizerConfig struct {
	Optimizer optim.Optimizer
	Scheduler *SchedulerConfig
}

// Paired reports whether a scheduler accompanies the optimizer.
func (c OptimizerConfig) Paired() bool {
	return c.Scheduler != nil
}

type settings struct {
	scheduler optim.SchedulerFactory
	interval  optim.Interval
	logger    Logger
	hparams   map[string]any
}

// Option configures New.
type Option func(*settings)

// WithScheduler pairs the optimizer with a learning-rate scheduler built
// by factory, stepped every interval.
func WithScheduler(factory optim.SchedulerFactory, interval optim.Interval) Option {
	return func(s *settings) {
		s.scheduler = factory
		s.interval = interval
	}
}

// WithLogger sets the observation sink. Without one, observations are
// discarded.
func WithLogger(logger Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithHyperparameters records the construction arguments for checkpoints
// and reporting.
func WithHyperparameters(hparams map[string]any) Option {
	return func(s *settings) { s.hparams = maps.Clone(hparams) }
}

// Adapter routes batches through a backbone and produces loss and metric
// signals per lifecycle stage.
type Adapter[B tensor.Backend] struct {
	backbone  Backbone[B]
	criterion nn.Loss[B]
	metrics   []metrics.Metric
	optimizer optim.Factory[B]
	scheduler optim.SchedulerFactory
	interval  optim.Interval
	logger    Logger
	hparams   map[string]any
}

// readiness is implemented by backbones that can tell a typed nil pointer
// or a zero value from a built model.
type readiness interface {
	Ready() bool
}

func ready(backbone any) bool {
	r, ok := backbone.(readiness)
	return !ok || r.Ready()
}

// New creates an adapter. The backbone, criterion and optimizer factory
// are required. Metric names must be unique since each becomes a log key.
func New[B tensor.Backend](
	backbone Backbone[B],
	criterion nn.Loss[B],
	metricList []metrics.Metric,
	optimizerFactory optim.Factory[B],
	opts ...Option,
) (*Adapter[B], error) {
	switch {
	case backbone == nil || !ready(backbone):
		return nil, fmt.Errorf("%w: backbone", ErrMissingCollaborator)
	case criterion == nil:
		return nil, fmt.Errorf("%w: criterion", ErrMissingCollaborator)
	case optimizerFactory == nil:
		return nil, fmt.Errorf("%w: optimizer factory", ErrMissingCollaborator)
	}

	seen := make(map[string]bool, len(metricList))
	for _, m := range metricList {
		if m.Name == "" || m.Fn == nil {
			return nil, fmt.Errorf("%w: %q needs a name and a function", ErrInvalidMetric, m.Name)
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateMetric, m.Name)
		}
		seen[m.Name] = true
	}

	s := settings{interval: optim.IntervalStep, logger: discard{}}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = discard{}
	}

	return &Adapter[B]{
		backbone:  backbone,
		criterion: criterion,
		metrics:   append([]metrics.Metric(nil), metricList...),
		optimizer: optimizerFactory,
		scheduler: s.scheduler,
		interval:  s.interval,
		logger:    s.logger,
		hparams:   s.hparams,
	}, nil
}

// Forward returns the backbone's logits, shape [batch, 1].
func (a *Adapter[B]) Forward(input *model.Input[B]) *tensor.Tensor[float32, B] {
	return a.backbone.Forward(input).Logits
}

// TrainingStep computes the loss for a batch and logs "train_loss".
// The returned 0-D loss is what the caller differentiates.
func (a *Adapter[B]) TrainingStep(batch *Batch[B], batchIdx int) *tensor.Tensor[float32, B] {
	logits := a.Forward(batch.Inputs)
	loss := a.criterion.Forward(logits, batch.Targets.Float32())
	a.log("train_loss", float64(loss.Item()), StageTrain, batchIdx, batch.Size())
	return loss
}

// ValidationStep logs "val_loss" and every metric as "val"+name.
func (a *Adapter[B]) ValidationStep(batch *Batch[B], batchIdx int) *tensor.Tensor[float32, B] {
	logits := a.Forward(batch.Inputs)
	targets := batch.Targets.Float32()
	loss := a.criterion.Forward(logits, targets)
	a.log("val_loss", float64(loss.Item()), StageValidate, batchIdx, batch.Size())
	a.logMetrics(logits, targets, StageValidate, batchIdx, batch.Size())
	return loss
}

// TestStep logs every metric as "test"+name. No loss is computed.
func (a *Adapter[B]) TestStep(batch *Batch[B], batchIdx int) {
	logits := a.Forward(batch.Inputs)
	a.logMetrics(logits, batch.Targets.Float32(), StageTest, batchIdx, batch.Size())
}

// PredictStep returns the logits with every singleton dimension removed.
//
// A batch of N > 1 yields shape [N]. A batch of one yields a 0-D tensor,
// not [1]: callers that collect predictions must handle both shapes.
func (a *Adapter[B]) PredictStep(batch *Batch[B], _ int) *tensor.Tensor[float32, B] {
	return a.Forward(batch.Inputs).Squeeze()
}

// ConfigureOptimizers builds the optimizer over the backbone's parameters
// and, when a scheduler factory was given, a scheduler bound to it.
func (a *Adapter[B]) ConfigureOptimizers() OptimizerConfig {
	opt := a.optimizer(a.backbone.Parameters())
	if a.scheduler == nil {
		return OptimizerConfig{Optimizer: opt}
	}
	return OptimizerConfig{
		Optimizer: opt,
		Scheduler: &SchedulerConfig{Scheduler: a.scheduler(opt), Interval: a.interval},
	}
}

// Hyperparameters returns a copy of the recorded hyperparameters.
func (a *Adapter[B]) Hyperparameters() map[string]any {
	return maps.Clone(a.hparams)
}

// Backbone returns the wrapped model.
func (a *Adapter[B]) Backbone() Backbone[B] {
	return a.backbone
}

// Parameters returns the backbone's trainable parameters.
func (a *Adapter[B]) Parameters() []*nn.Parameter[B] {
	return a.backbone.Parameters()
}

// Metrics returns the registered metrics in order.
func (a *Adapter[B]) Metrics() []metrics.Metric {
	return append([]metrics.Metric(nil), a.metrics...)
}

// SetTraining toggles dropout when the backbone supports it.
func (a *Adapter[B]) SetTraining(training bool) {
	if t, ok := a.backbone.(nn.Trainable); ok {
		t.SetTraining(training)
	}
}

// SetLogger replaces the observation sink. Nil discards.
func (a *Adapter[B]) SetLogger(logger Logger) {
	if logger == nil {
		logger = discard{}
	}
	a.logger = logger
}

func (a *Adapter[B]) logMetrics(logits, targets *tensor.Tensor[float32, B], stage Stage, batchIdx, batchSize int) {
	if len(a.metrics) == 0 {
		return
	}
	preds := logits.Squeeze().Data()
	truth := targets.Squeeze().Data()
	for _, m := range a.metrics {
		a.log(string(stage)+m.Name, m.Fn(preds, truth), stage, batchIdx, batchSize)
	}
}

func (a *Adapter[B]) log(name string, value float64, stage Stage, batchIdx, batchSize int) {
	a.logger.Log(Observation{
		Name:      name,
		Value:     value,
		Stage:     stage,
		BatchIdx:  batchIdx,
		BatchSize: batchSize,
	})
}
