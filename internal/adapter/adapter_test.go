package adapter_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/seqreg/internal/adapter"
	"github.com/born-ml/seqreg/internal/autodiff"
	"github.com/born-ml/seqreg/internal/backend/cpu"
	"github.com/born-ml/seqreg/internal/metrics"
	"github.com/born-ml/seqreg/internal/model"
	"github.com/born-ml/seqreg/internal/nn"
	"github.com/born-ml/seqreg/internal/optim"
	"github.com/born-ml/seqreg/internal/tensor"
)

type backendT = *cpu.CPUBackend

// fixedBackbone returns preset logits, one per row of input ids.
type fixedBackbone struct {
	logits   []float32
	param    *nn.Parameter[backendT]
	training bool
}

func newFixedBackbone(logits ...float32) *fixedBackbone {
	return &fixedBackbone{
		logits: logits,
		param:  nn.NewParameter("w", tensor.Ones[float32](tensor.Shape{1}, cpu.New())),
	}
}

func (f *fixedBackbone) Forward(input *model.Input[backendT]) *model.Output[backendT] {
	n := input.InputIDs.Shape()[0]
	return &model.Output[backendT]{
		Logits: tensor.MustFromSlice(append([]float32(nil), f.logits[:n]...), tensor.Shape{n, 1}, cpu.New()),
	}
}

func (f *fixedBackbone) Parameters() []*nn.Parameter[backendT] {
	return []*nn.Parameter[backendT]{f.param}
}

func (f *fixedBackbone) SetTraining(training bool) {
	f.training = training
}

type recorder struct {
	obs []adapter.Observation
}

func (r *recorder) Log(obs adapter.Observation) {
	r.obs = append(r.obs, obs)
}

func (r *recorder) names() []string {
	names := make([]string, len(r.obs))
	for i, o := range r.obs {
		names[i] = o.Name
	}
	return names
}

func (r *recorder) value(name string) float64 {
	for _, o := range r.obs {
		if o.Name == name {
			return o.Value
		}
	}
	return math.NaN()
}

func batchOf(t *testing.T, targets ...float64) *adapter.Batch[backendT] {
	t.Helper()
	backend := cpu.New()
	n := len(targets)
	ids := tensor.Zeros[int32](tensor.Shape{n, 4}, backend)
	y, err := tensor.FromSlice(targets, tensor.Shape{n}, backend)
	require.NoError(t, err)
	return &adapter.Batch[backendT]{
		Inputs:  &model.Input[backendT]{InputIDs: ids},
		Targets: y,
	}
}

func sgdFactory(params []*nn.Parameter[backendT]) optim.Optimizer {
	return optim.NewSGD(params, optim.SGDConfig{LR: 0.1})
}

func testMetrics(t *testing.T) []metrics.Metric {
	t.Helper()
	ms, err := metrics.Resolve([]string{"pearson", "mae"})
	require.NoError(t, err)
	return ms
}

func newAdapter(t *testing.T, backbone *fixedBackbone, opts ...adapter.Option) (*adapter.Adapter[backendT], *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]adapter.Option{adapter.WithLogger(rec)}, opts...)
	a, err := adapter.New[backendT](backbone, nn.NewL1Loss[backendT](), testMetrics(t), sgdFactory, opts...)
	require.NoError(t, err)
	return a, rec
}

func TestNewRequiresCollaborators(t *testing.T) {
	backbone := newFixedBackbone(1)
	loss := nn.NewL1Loss[backendT]()

	tests := []struct {
		name     string
		backbone adapter.Backbone[backendT]
		loss     nn.Loss[backendT]
		factory  optim.Factory[backendT]
		metrics  []metrics.Metric
		want     error
	}{
		{"backbone", nil, loss, sgdFactory, nil, adapter.ErrMissingCollaborator},
		{"criterion", backbone, nil, sgdFactory, nil, adapter.ErrMissingCollaborator},
		{"optimizer", backbone, loss, nil, nil, adapter.ErrMissingCollaborator},
		{"duplicate", backbone, loss, sgdFactory, []metrics.Metric{
			{Name: "mae", Fn: metrics.MAE}, {Name: "mae", Fn: metrics.MSE},
		}, adapter.ErrDuplicateMetric},
		{"nameless", backbone, loss, sgdFactory, []metrics.Metric{{Fn: metrics.MAE}}, adapter.ErrInvalidMetric},
		{"no func", backbone, loss, sgdFactory, []metrics.Metric{{Name: "mae"}}, adapter.ErrInvalidMetric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := adapter.New(tt.backbone, tt.loss, tt.metrics, tt.factory)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := adapter.New[backendT](backbone, loss, nil, sgdFactory)
	require.NoError(t, err, "metrics are optional")
}

func TestNewRejectsUnbuiltClassifier(t *testing.T) {
	loss := nn.NewL1Loss[backendT]()

	var typedNil *model.SequenceClassifier[backendT]
	_, err := adapter.New[backendT](typedNil, loss, nil, sgdFactory)
	require.ErrorIs(t, err, adapter.ErrMissingCollaborator)

	_, err = adapter.New[backendT](&model.SequenceClassifier[backendT]{}, loss, nil, sgdFactory)
	require.ErrorIs(t, err, adapter.ErrMissingCollaborator)

	built, _, err := model.FromPretrained("roberta-tiny", cpu.New())
	require.NoError(t, err)
	_, err = adapter.New[backendT](built, loss, nil, sgdFactory)
	require.NoError(t, err)
}

func TestForwardReturnsLogitsPerExample(t *testing.T) {
	a, rec := newAdapter(t, newFixedBackbone(0.1, 0.2, 0.3))

	logits := a.Forward(batchOf(t, 0, 0, 0).Inputs)
	assert.Equal(t, tensor.Shape{3, 1}, logits.Shape())
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, logits.Data(), 1e-7)
	assert.Empty(t, rec.obs, "forward has no side effects")
}

func TestTrainingStep(t *testing.T) {
	a, rec := newAdapter(t, newFixedBackbone(1, 2, 4))

	loss := a.TrainingStep(batchOf(t, 1, 3, 1), 7)

	// L1: (0 + 1 + 3) / 3
	assert.Equal(t, 0, len(loss.Shape()))
	assert.InDelta(t, 4.0/3, loss.Item(), 1e-6)
	assert.GreaterOrEqual(t, loss.Item(), float32(0))

	require.Len(t, rec.obs, 1)
	assert.Equal(t, adapter.Observation{
		Name: "train_loss", Value: float64(loss.Item()), Stage: adapter.StageTrain, BatchIdx: 7, BatchSize: 3,
	}, rec.obs[0])
}

func TestValidationStep(t *testing.T) {
	a, rec := newAdapter(t, newFixedBackbone(1, 2, 3))

	loss := a.ValidationStep(batchOf(t, 2, 4, 6), 0)

	assert.Equal(t, []string{"val_loss", "valpearson", "valmae"}, rec.names())
	assert.InDelta(t, float64(loss.Item()), rec.value("val_loss"), 1e-9)
	assert.InDelta(t, 2.0, rec.value("val_loss"), 1e-6)
	assert.InDelta(t, 1.0, rec.value("valpearson"), 1e-9)
	assert.InDelta(t, 2.0, rec.value("valmae"), 1e-9)
	for _, o := range rec.obs {
		assert.Equal(t, adapter.StageValidate, o.Stage)
		assert.Equal(t, 3, o.BatchSize)
	}
}

func TestTestStepLogsMetricsOnly(t *testing.T) {
	a, rec := newAdapter(t, newFixedBackbone(3, 2, 1))

	a.TestStep(batchOf(t, 1, 2, 3), 2)

	assert.Equal(t, []string{"testpearson", "testmae"}, rec.names())
	assert.InDelta(t, -1.0, rec.value("testpearson"), 1e-9)
	assert.InDelta(t, 4.0/3, rec.value("testmae"), 1e-9)
}

func TestTargetsShapedLikeLogits(t *testing.T) {
	a, rec := newAdapter(t, newFixedBackbone(1, 2))
	batch := batchOf(t, 2, 3)
	batch.Targets = batch.Targets.Reshape(2, 1)

	loss := a.ValidationStep(batch, 0)
	assert.InDelta(t, 1.0, loss.Item(), 1e-6)
	assert.InDelta(t, 1.0, rec.value("valmae"), 1e-9)
}

func TestPredictStep(t *testing.T) {
	a, rec := newAdapter(t, newFixedBackbone(0.5, -0.5, 2))

	preds := a.PredictStep(batchOf(t, 0, 0, 0), 0)
	assert.Equal(t, tensor.Shape{3}, preds.Shape(), "no singleton dimension remains")
	assert.InDeltaSlice(t, []float32{0.5, -0.5, 2}, preds.Data(), 1e-7)
	assert.Empty(t, rec.obs)
}

// A single-example batch squeezes to a 0-D scalar rather than [1]. This
// is kept deliberately; consumers read it with Item or Data.
func TestPredictStepSingleExampleCollapsesToScalar(t *testing.T) {
	a, _ := newAdapter(t, newFixedBackbone(0.25))

	preds := a.PredictStep(batchOf(t, 0), 0)
	assert.Equal(t, 0, len(preds.Shape()))
	assert.Equal(t, 1, preds.NumElements())
	assert.Equal(t, float32(0.25), preds.Item())
	assert.Equal(t, []float32{0.25}, preds.Data())
}

// With one example, correlation metrics see a single point and report NaN.
func TestValidationStepSingleExample(t *testing.T) {
	a, rec := newAdapter(t, newFixedBackbone(1))

	a.ValidationStep(batchOf(t, 2), 0)
	assert.True(t, math.IsNaN(rec.value("valpearson")))
	assert.InDelta(t, 1.0, rec.value("valmae"), 1e-9)
}

func TestConfigureOptimizersBare(t *testing.T) {
	backbone := newFixedBackbone(1)
	a, _ := newAdapter(t, backbone)

	cfg := a.ConfigureOptimizers()
	require.NotNil(t, cfg.Optimizer)
	assert.Nil(t, cfg.Scheduler)
	assert.False(t, cfg.Paired())

	// The optimizer is bound to the backbone's parameters.
	grads := map[*tensor.RawTensor]*tensor.RawTensor{
		backbone.param.Tensor().Raw(): tensor.Ones[float32](tensor.Shape{1}, cpu.New()).Raw(),
	}
	cfg.Optimizer.Step(grads)
	assert.InDelta(t, 0.9, backbone.param.Tensor().Item(), 1e-6)
}

func TestConfigureOptimizersPaired(t *testing.T) {
	a, _ := newAdapter(t, newFixedBackbone(1),
		adapter.WithScheduler(func(o optim.Optimizer) optim.Scheduler {
			return optim.NewStepLR(o, 1, 0.5)
		}, optim.IntervalEpoch))

	cfg := a.ConfigureOptimizers()
	require.True(t, cfg.Paired())
	assert.Equal(t, optim.IntervalEpoch, cfg.Scheduler.Interval)

	cfg.Scheduler.Scheduler.Step()
	assert.InDelta(t, 0.05, cfg.Optimizer.GetLR(), 1e-7, "scheduler drives the returned optimizer")
}

func TestNilLoggerDiscards(t *testing.T) {
	a, err := adapter.New[backendT](newFixedBackbone(1, 2), nn.NewMSELoss[backendT](), testMetrics(t), sgdFactory,
		adapter.WithLogger(nil))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		a.TrainingStep(batchOf(t, 1, 2), 0)
		a.ValidationStep(batchOf(t, 1, 2), 0)
		a.TestStep(batchOf(t, 1, 2), 0)
	})

	var got []string
	a.SetLogger(adapter.LoggerFunc(func(o adapter.Observation) { got = append(got, o.Name) }))
	a.TestStep(batchOf(t, 1, 2), 0)
	assert.Equal(t, []string{"testpearson", "testmae"}, got)
}

func TestHyperparametersAreCopied(t *testing.T) {
	hp := map[string]any{"checkpoint": "roberta-base", "lr": 2e-5}
	a, _ := newAdapter(t, newFixedBackbone(1), adapter.WithHyperparameters(hp))
	hp["lr"] = 1.0

	got := a.Hyperparameters()
	assert.Equal(t, 2e-5, got["lr"])
	got["checkpoint"] = "other"
	assert.Equal(t, "roberta-base", a.Hyperparameters()["checkpoint"])
}

func TestSetTrainingReachesBackbone(t *testing.T) {
	backbone := newFixedBackbone(1)
	a, _ := newAdapter(t, backbone)

	a.SetTraining(true)
	assert.True(t, backbone.training)
	a.SetTraining(false)
	assert.False(t, backbone.training)
}

// End to end on the real encoder: the training loss shrinks when the
// returned loss is differentiated and the configured optimizer steps.
func TestTrainingStepWithEncoder(t *testing.T) {
	type adT = *autodiff.AutodiffBackend[*cpu.CPUBackend]
	backend := autodiff.New(cpu.New())

	cfg, ok := model.Preset("roberta-tiny")
	require.True(t, ok)
	backbone, err := model.New(cfg, backend, model.WithDropout(0))
	require.NoError(t, err)

	factory, err := optim.NewFactory[adT](optim.Settings{Name: "adamw", LR: 1e-3})
	require.NoError(t, err)
	a, err := adapter.New[adT](backbone, nn.NewMSELoss[adT](), nil, factory)
	require.NoError(t, err)
	opt := a.ConfigureOptimizers().Optimizer

	ids := tensor.MustFromSlice([]int32{0, 10, 11, 2, 0, 20, 21, 2}, tensor.Shape{2, 4}, backend)
	y := tensor.MustFromSlice([]float64{1, -1}, tensor.Shape{2}, backend)
	batch := &adapter.Batch[adT]{Inputs: &model.Input[adT]{InputIDs: ids}, Targets: y}

	var first, last float32
	for step := range 30 {
		backend.Tape().StartRecording()
		loss := a.TrainingStep(batch, step)
		grads := autodiff.Backward(loss, backend)
		opt.Step(grads)
		opt.ZeroGrad()
		backend.Tape().Clear()

		if step == 0 {
			first = loss.Item()
		}
		last = loss.Item()
	}
	assert.Less(t, last, first)
}
