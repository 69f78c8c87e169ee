package trainer

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/seqreg/internal/adapter"
	"github.com/born-ml/seqreg/internal/autodiff"
	"github.com/born-ml/seqreg/internal/backend/cpu"
	"github.com/born-ml/seqreg/internal/data"
	"github.com/born-ml/seqreg/internal/metrics"
	"github.com/born-ml/seqreg/internal/model"
	"github.com/born-ml/seqreg/internal/nn"
	"github.com/born-ml/seqreg/internal/optim"
	"github.com/born-ml/seqreg/internal/tokenizer"
)

type adT = *autodiff.AutodiffBackend[*cpu.CPUBackend]

var pairs = []data.Example{
	{First: "a cat sits", Second: "a cat sat", Label: 0.9, HasLabel: true},
	{First: "dogs bark", Second: "rain falls", Label: 0.1, HasLabel: true},
	{First: "hello", Second: "hello there", Label: 0.7, HasLabel: true},
	{First: "red", Second: "blue", Label: 0.3, HasLabel: true},
	{First: "go build", Second: "go test", Label: 0.5, HasLabel: true},
	{First: "up", Second: "down", Label: 0.2, HasLabel: true},
	{First: "same text", Second: "same text", Label: 1.0, HasLabel: true},
	{First: "x", Second: "y", Label: 0.0, HasLabel: true},
}

func newLoader(t *testing.T, backend adT, examples []data.Example, batch int) *data.Loader[adT] {
	t.Helper()
	l, err := data.NewLoader(examples, tokenizer.NewByte(), backend, data.LoaderOptions{BatchSize: batch, MaxLength: 32})
	require.NoError(t, err)
	return l
}

func newAdapter(t *testing.T, backend adT, settings optim.Settings, extra []metrics.Metric, opts ...adapter.Option) *adapter.Adapter[adT] {
	t.Helper()
	cfg, ok := model.Preset("roberta-tiny")
	require.True(t, ok)
	backbone, err := model.New(cfg, backend, model.WithDropout(0), model.WithNumLabels(1))
	require.NoError(t, err)

	factory, err := optim.NewFactory[adT](settings)
	require.NoError(t, err)
	ms, err := metrics.Resolve([]string{"pearson"})
	require.NoError(t, err)
	a, err := adapter.New[adT](backbone, nn.NewMSELoss[adT](), append(ms, extra...), factory, opts...)
	require.NoError(t, err)
	return a
}

func TestFitWritesCheckpoints(t *testing.T) {
	backend := autodiff.New(cpu.New())
	a := newAdapter(t, backend, optim.Settings{Name: "adamw", LR: 1e-3}, nil,
		adapter.WithHyperparameters(map[string]any{"lr": 1e-3}))

	cfg := DefaultConfig()
	cfg.MaxEpochs = 2
	cfg.GradClipNorm = 1
	cfg.CheckpointDir = t.TempDir()
	tr, err := New(backend, cfg, WithRunID("run-1"))
	require.NoError(t, err)

	res, err := tr.Fit(context.Background(), a, newLoader(t, backend, pairs, 4), newLoader(t, backend, pairs[:4], 2))
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 2, res.Epochs)
	assert.Equal(t, 4, res.Steps)
	assert.Equal(t, "max_epochs", res.StopReason)
	require.Len(t, res.History, 2)
	for _, s := range res.History {
		assert.Contains(t, s.Metrics, "train_loss")
		assert.Contains(t, s.Metrics, "val_loss")
		assert.Contains(t, s.Metrics, "valpearson")
	}
	assert.NotZero(t, res.BestEpoch)

	dir := filepath.Join(cfg.CheckpointDir, "run-1")
	assert.Equal(t, dir, res.RunDir)
	for _, f := range []string{
		"hparams.yaml", "metrics.jsonl", "history.yaml",
		"best/model.safetensors", "best/config.json",
		"last/model.safetensors", "last/config.json",
	} {
		assert.FileExists(t, filepath.Join(dir, f))
	}

	f, err := os.Open(filepath.Join(dir, "metrics.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	lines := 0
	for s := bufio.NewScanner(f); s.Scan(); {
		lines++
	}
	assert.Greater(t, lines, 4)

	hparams, err := os.ReadFile(filepath.Join(dir, "hparams.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(hparams), "run_id: run-1")
	assert.Contains(t, string(hparams), "max_epochs: 2")

	reloaded, _, err := model.FromPretrained(filepath.Join(dir, "best"), backend)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Config().NumLabels)
}

func TestFitMaxSteps(t *testing.T) {
	backend := autodiff.New(cpu.New())
	a := newAdapter(t, backend, optim.Settings{Name: "sgd", LR: 0.01}, nil)

	cfg := DefaultConfig()
	cfg.MaxEpochs = 5
	cfg.MaxSteps = 3
	tr, err := New(backend, cfg)
	require.NoError(t, err)

	res, err := tr.Fit(context.Background(), a, newLoader(t, backend, pairs, 2), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Steps)
	assert.Equal(t, 1, res.Epochs)
	assert.Equal(t, "max_steps", res.StopReason)
	assert.Empty(t, res.RunDir)
	assert.NotContains(t, res.History[0].Metrics, "val_loss")
}

func TestFitEarlyStopping(t *testing.T) {
	backend := autodiff.New(cpu.New())
	constant := metrics.Metric{Name: "const", Fn: func([]float32, []float32) float64 { return 1 }}
	a := newAdapter(t, backend, optim.Settings{Name: "sgd", LR: 0.01}, []metrics.Metric{constant})

	cfg := DefaultConfig()
	cfg.MaxEpochs = 10
	cfg.Monitor = "valconst"
	cfg.Mode = ModeMax
	cfg.Patience = 2
	tr, err := New(backend, cfg)
	require.NoError(t, err)

	res, err := tr.Fit(context.Background(), a, newLoader(t, backend, pairs, 4), newLoader(t, backend, pairs, 4))
	require.NoError(t, err)
	assert.Equal(t, "early_stopping", res.StopReason)
	assert.Equal(t, 3, res.Epochs)
	assert.Equal(t, 1, res.BestEpoch)
	assert.Equal(t, 1.0, res.BestScore)
}

func TestFitSchedulerIntervals(t *testing.T) {
	backend := autodiff.New(cpu.New())
	factory, interval, err := optim.NewSchedulerFactory(optim.SchedulerSettings{Name: "step", Interval: "epoch", StepSize: 1, Gamma: 0.5})
	require.NoError(t, err)
	a := newAdapter(t, backend, optim.Settings{Name: "sgd", LR: 0.1}, nil, adapter.WithScheduler(factory, interval))

	cfg := DefaultConfig()
	cfg.MaxEpochs = 2
	tr, err := New(backend, cfg)
	require.NoError(t, err)

	res, err := tr.Fit(context.Background(), a, newLoader(t, backend, pairs, 4), nil)
	require.NoError(t, err)
	require.Len(t, res.History, 2)
	assert.InDelta(t, 0.05, res.History[0].LR, 1e-7)
	assert.InDelta(t, 0.025, res.History[1].LR, 1e-7)
}

func TestValidateTestPredict(t *testing.T) {
	backend := autodiff.New(cpu.New())
	a := newAdapter(t, backend, optim.Settings{Name: "adamw", LR: 1e-3}, nil)
	tr, err := New(backend, DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	val, err := tr.Validate(ctx, a, newLoader(t, backend, pairs, 4))
	require.NoError(t, err)
	assert.Len(t, val, 2)
	assert.Contains(t, val, "val_loss")
	assert.Contains(t, val, "valpearson")

	test, err := tr.Test(ctx, a, newLoader(t, backend, pairs, 4))
	require.NoError(t, err)
	assert.Len(t, test, 1)
	assert.Contains(t, test, "testpearson")

	// Five examples in batches of two leave a final batch of one.
	preds, err := tr.Predict(ctx, a, newLoader(t, backend, pairs[:5], 2))
	require.NoError(t, err)
	assert.Len(t, preds, 5)
	assert.Zero(t, backend.Tape().NumOps(), "evaluation records nothing")
}

type panicking struct{}

func (panicking) Forward(*model.Input[adT]) *model.Output[adT] { panic("shape mismatch") }
func (panicking) Parameters() []*nn.Parameter[adT]             { return nil }

func TestStepPanicBecomesError(t *testing.T) {
	backend := autodiff.New(cpu.New())
	factory, err := optim.NewFactory[adT](optim.Settings{Name: "sgd", LR: 0.1})
	require.NoError(t, err)
	a, err := adapter.New[adT](panicking{}, nn.NewMSELoss[adT](), nil, factory)
	require.NoError(t, err)

	tr, err := New(backend, DefaultConfig())
	require.NoError(t, err)

	_, err = tr.Fit(context.Background(), a, newLoader(t, backend, pairs, 4), nil)
	require.ErrorIs(t, err, ErrStepFailed)
	assert.Contains(t, err.Error(), "shape mismatch")
	assert.False(t, backend.Tape().IsRecording())

	_, err = tr.Predict(context.Background(), a, newLoader(t, backend, pairs, 4))
	assert.ErrorIs(t, err, ErrStepFailed)
}

func TestCancelledContext(t *testing.T) {
	backend := autodiff.New(cpu.New())
	a := newAdapter(t, backend, optim.Settings{Name: "sgd", LR: 0.1}, nil)
	tr, err := New(backend, DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.Fit(ctx, a, newLoader(t, backend, pairs, 4), nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = tr.Validate(ctx, a, newLoader(t, backend, pairs, 4))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnlabelled(t *testing.T) {
	backend := autodiff.New(cpu.New())
	a := newAdapter(t, backend, optim.Settings{Name: "sgd", LR: 0.1}, nil)
	tr, err := New(backend, DefaultConfig())
	require.NoError(t, err)

	unlabelled := []data.Example{{First: "a", Second: "b"}, {First: "c", Second: "d"}}
	_, err = tr.Validate(context.Background(), a, newLoader(t, backend, unlabelled, 2))
	assert.ErrorIs(t, err, ErrUnlabelled)

	_, err = tr.Fit(context.Background(), a, newLoader(t, backend, unlabelled, 2), nil)
	assert.ErrorIs(t, err, ErrUnlabelled)

	preds, err := tr.Predict(context.Background(), a, newLoader(t, backend, unlabelled, 2))
	require.NoError(t, err)
	assert.Len(t, preds, 2)
}

func TestNewValidatesConfig(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tests := map[string]Config{
		"no budget": {},
		"negative":  {MaxEpochs: 1, Patience: -1},
		"mode":      {MaxEpochs: 1, Mode: "sideways"},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := New(backend, cfg)
			assert.Error(t, err)
		})
	}

	tr, err := New(backend, Config{MaxSteps: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, tr.RunID())
	assert.Equal(t, ModeMin, tr.cfg.Mode)
}
