package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/seqreg/internal/autodiff"
	"github.com/born-ml/seqreg/internal/backend/cpu"
	"github.com/born-ml/seqreg/internal/nn"
	"github.com/born-ml/seqreg/internal/optim"
	"github.com/born-ml/seqreg/internal/tensor"
)

type backendT = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newParam(t *testing.T, values ...float32) (*nn.Parameter[backendT], backendT) {
	t.Helper()
	backend := autodiff.New(cpu.New())
	x, err := tensor.FromSlice(values, tensor.Shape{len(values)}, backend)
	require.NoError(t, err)
	return nn.NewParameter("x", x), backend
}

func gradFor(t *testing.T, param *nn.Parameter[backendT], values ...float32) map[*tensor.RawTensor]*tensor.RawTensor {
	t.Helper()
	grad, err := tensor.NewRaw(tensor.Shape{len(values)}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(grad.AsFloat32(), values)
	return map[*tensor.RawTensor]*tensor.RawTensor{param.Tensor().Raw(): grad}
}

func TestSGDSimpleUpdate(t *testing.T) {
	param, _ := newParam(t, 2.0)
	opt := optim.NewSGD([]*nn.Parameter[backendT]{param}, optim.SGDConfig{LR: 0.1})

	opt.Step(gradFor(t, param, 1.0))

	// x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0
	assert.InDelta(t, 1.9, param.Tensor().Data()[0], 1e-6)
}

func TestSGDMomentum(t *testing.T) {
	param, _ := newParam(t, 1.0)
	opt := optim.NewSGD([]*nn.Parameter[backendT]{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})

	opt.Step(gradFor(t, param, 1.0)) // v = 1, x = 0.9
	opt.Step(gradFor(t, param, 1.0)) // v = 1.9, x = 0.71

	assert.InDelta(t, 0.71, param.Tensor().Data()[0], 1e-6)
}

func TestSGDNesterovAndWeightDecay(t *testing.T) {
	param, _ := newParam(t, 1.0)
	opt := optim.NewSGD([]*nn.Parameter[backendT]{param},
		optim.SGDConfig{LR: 0.1, Momentum: 0.5, Nesterov: true, WeightDecay: 1})

	// d = g + wd*x = 2; v = 2; step = d + m*v = 3
	opt.Step(gradFor(t, param, 1.0))
	assert.InDelta(t, 0.7, param.Tensor().Data()[0], 1e-6)
}

func TestSGDSkipsParametersWithoutGradient(t *testing.T) {
	param, _ := newParam(t, 3.0)
	opt := optim.NewSGD([]*nn.Parameter[backendT]{param}, optim.SGDConfig{LR: 0.1})

	opt.Step(map[*tensor.RawTensor]*tensor.RawTensor{})
	assert.Equal(t, float32(3.0), param.Tensor().Data()[0])
}

func TestAdamFirstStep(t *testing.T) {
	param, _ := newParam(t, 1.0, -1.0)
	opt := optim.NewAdam([]*nn.Parameter[backendT]{param}, optim.AdamConfig{LR: 0.01})

	// After bias correction the first step moves each weight by lr*sign(g).
	opt.Step(gradFor(t, param, 0.5, -2.0))

	assert.InDeltaSlice(t, []float32{0.99, -0.99}, param.Tensor().Data(), 1e-5)
	assert.Equal(t, 1, opt.GetTimestep())
}

func TestAdamWDecouplesWeightDecay(t *testing.T) {
	param, _ := newParam(t, 1.0)
	opt := optim.NewAdamW([]*nn.Parameter[backendT]{param}, optim.AdamConfig{LR: 0.1, WeightDecay: 0.5})

	// Zero gradient: only the decoupled decay moves the weight.
	opt.Step(gradFor(t, param, 0))
	assert.InDelta(t, 0.95, param.Tensor().Data()[0], 1e-6)

	coupled, _ := newParam(t, 1.0)
	adam := optim.NewAdam([]*nn.Parameter[backendT]{coupled}, optim.AdamConfig{LR: 0.1, WeightDecay: 0.5})
	adam.Step(gradFor(t, coupled, 0))
	// L2 decay enters the moments, so the first step is a full lr step.
	assert.InDelta(t, 0.9, coupled.Tensor().Data()[0], 1e-5)
}

// Training y = w*x towards w = 3 drives the loss down end to end.
func TestAdamMinimizesQuadratic(t *testing.T) {
	param, backend := newParam(t, 0.0)
	opt := optim.NewAdam([]*nn.Parameter[backendT]{param}, optim.AdamConfig{LR: 0.1})

	for range 200 {
		backend.Tape().StartRecording()
		diff := param.Tensor().SubScalar(3)
		loss := diff.Mul(diff).Sum()
		grads := autodiff.Backward(loss, backend)
		opt.Step(grads)
		opt.ZeroGrad()
		backend.Tape().Clear()
	}

	assert.InDelta(t, 3.0, param.Tensor().Data()[0], 0.05)
}

func TestSetLR(t *testing.T) {
	param, _ := newParam(t, 1.0)
	for _, opt := range []optim.Optimizer{
		optim.NewSGD([]*nn.Parameter[backendT]{param}, optim.SGDConfig{}),
		optim.NewAdam([]*nn.Parameter[backendT]{param}, optim.AdamConfig{}),
		optim.NewAdamW([]*nn.Parameter[backendT]{param}, optim.AdamConfig{}),
	} {
		opt.SetLR(0.5)
		assert.Equal(t, float32(0.5), opt.GetLR())
	}
}

func TestClipGradNorm(t *testing.T) {
	param, _ := newParam(t, 0, 0)
	grads := gradFor(t, param, 3, 4)
	params := []*nn.Parameter[backendT]{param}

	norm := optim.ClipGradNorm(grads, params, 1.0)
	assert.InDelta(t, 5.0, norm, 1e-6)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, grads[param.Tensor().Raw()].AsFloat32(), 1e-5)

	// Already within bounds: unchanged.
	grads = gradFor(t, param, 0.3, 0.4)
	optim.ClipGradNorm(grads, params, 1.0)
	assert.InDeltaSlice(t, []float32{0.3, 0.4}, grads[param.Tensor().Raw()].AsFloat32(), 1e-6)
}

func TestNewFactory(t *testing.T) {
	param, _ := newParam(t, 1.0)
	params := []*nn.Parameter[backendT]{param}

	tests := []struct {
		name    string
		want    any
		wantErr bool
	}{
		{name: "sgd", want: &optim.SGD[backendT]{}},
		{name: "adam", want: &optim.Adam[backendT]{}},
		{name: "AdamW", want: &optim.Adam[backendT]{}},
		{name: "lbfgs", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, err := optim.NewFactory[backendT](optim.Settings{Name: tt.name, LR: 0.02})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			opt := factory(params)
			assert.IsType(t, tt.want, opt)
			assert.Equal(t, float32(0.02), opt.GetLR())
		})
	}

	_, err := optim.NewFactory[backendT](optim.Settings{Name: "sgd", Nesterov: true})
	require.Error(t, err)
}

func TestSchedulers(t *testing.T) {
	newOpt := func() optim.Optimizer {
		param, _ := newParam(t, 1.0)
		return optim.NewSGD([]*nn.Parameter[backendT]{param}, optim.SGDConfig{LR: 1.0})
	}

	lrs := func(s optim.Scheduler, n int) []float64 {
		out := []float64{float64(s.LR())}
		for range n {
			s.Step()
			out = append(out, float64(s.LR()))
		}
		return out
	}

	tests := []struct {
		name  string
		build func(optim.Optimizer) optim.Scheduler
		want  []float64
	}{
		{
			name:  "constant",
			build: func(o optim.Optimizer) optim.Scheduler { return optim.NewConstant(o) },
			want:  []float64{1, 1, 1, 1},
		},
		{
			name:  "step",
			build: func(o optim.Optimizer) optim.Scheduler { return optim.NewStepLR(o, 2, 0.5) },
			want:  []float64{1, 1, 0.5, 0.5, 0.25},
		},
		{
			name:  "linear warmup",
			build: func(o optim.Optimizer) optim.Scheduler { return optim.NewLinearWarmup(o, 2, 6) },
			want:  []float64{0, 0.5, 1, 0.75, 0.5, 0.25, 0, 0},
		},
		{
			name:  "cosine",
			build: func(o optim.Optimizer) optim.Scheduler { return optim.NewCosineAnnealing(o, 0, 2, 0) },
			want:  []float64{1, 0.5, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lrs(tt.build(newOpt()), len(tt.want)-1)
			assert.InDeltaSlice(t, tt.want, got, 1e-6)
		})
	}
}

func TestSchedulerDrivesOptimizer(t *testing.T) {
	param, _ := newParam(t, 1.0)
	opt := optim.NewAdamW([]*nn.Parameter[backendT]{param}, optim.AdamConfig{LR: 2e-5})
	sched := optim.NewLinearWarmup(opt, 10, 100)

	assert.Equal(t, float32(0), opt.GetLR())
	for range 10 {
		sched.Step()
	}
	assert.InDelta(t, 2e-5, opt.GetLR(), 1e-12)
	assert.Equal(t, 10, sched.StepCount())
}

func TestNewSchedulerFactory(t *testing.T) {
	factory, interval, err := optim.NewSchedulerFactory(optim.SchedulerSettings{})
	require.NoError(t, err)
	assert.Nil(t, factory)
	assert.Equal(t, optim.IntervalStep, interval)

	factory, interval, err = optim.NewSchedulerFactory(optim.SchedulerSettings{
		Name: "linear_warmup", Interval: "step", WarmupRatio: 0.1, TotalSteps: 100,
	})
	require.NoError(t, err)
	require.NotNil(t, factory)
	assert.Equal(t, optim.IntervalStep, interval)

	param, _ := newParam(t, 1.0)
	opt := optim.NewSGD([]*nn.Parameter[backendT]{param}, optim.SGDConfig{LR: 1})
	sched := factory(opt)
	for range 10 {
		sched.Step()
	}
	assert.InDelta(t, 1.0, sched.LR(), 1e-6)

	_, interval, err = optim.NewSchedulerFactory(optim.SchedulerSettings{Name: "step", StepSize: 1, Interval: "epoch"})
	require.NoError(t, err)
	assert.Equal(t, optim.IntervalEpoch, interval)

	for _, bad := range []optim.SchedulerSettings{
		{Name: "step"},
		{Name: "cosine"},
		{Name: "linear_warmup"},
		{Name: "cyclic"},
		{Name: "constant", Interval: "batch"},
	} {
		_, _, err := optim.NewSchedulerFactory(bad)
		assert.Error(t, err, "%+v", bad)
	}

	assert.False(t, math.IsNaN(float64(opt.GetLR())))
}
