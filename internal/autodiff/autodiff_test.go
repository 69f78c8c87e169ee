package autodiff_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/seqreg/internal/autodiff"
	"github.com/born-ml/seqreg/internal/backend/cpu"
	"github.com/born-ml/seqreg/internal/tensor"
)

type backendT = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newBackend() backendT {
	return autodiff.New(cpu.New())
}

func TestBackwardSquare(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()

	x := tensor.MustFromSlice([]float32{2, -3}, tensor.Shape{2}, backend)
	y := x.Mul(x).Sum()

	grads := autodiff.Backward(y, backend)
	require.Contains(t, grads, x.Raw())
	assert.InDeltaSlice(t, []float32{4, -6}, grads[x.Raw()].AsFloat32(), 1e-6)
}

func TestBackwardAccumulatesReusedInputs(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()

	x := tensor.MustFromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	y := x.Add(x).Add(x.MulScalar(3)).Sum() // 5x

	grads := autodiff.Backward(y, backend)
	assert.InDeltaSlice(t, []float32{5, 5}, grads[x.Raw()].AsFloat32(), 1e-6)
}

func TestBackwardIgnoresOpsAfterLoss(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()

	x := tensor.MustFromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	loss := x.MulScalar(2).Sum()
	_ = x.Exp().Sum() // recorded after the loss, must not contribute

	grads := autodiff.Backward(loss, backend)
	assert.InDeltaSlice(t, []float32{2, 2}, grads[x.Raw()].AsFloat32(), 1e-6)
}

func TestBackwardWithoutRecordingPanics(t *testing.T) {
	backend := newBackend()
	x := tensor.Ones[float32](tensor.Shape{2}, backend)
	assert.Panics(t, func() { autodiff.Backward(x.Sum(), backend) })
}

func TestNoGrad(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()

	x := tensor.Ones[float32](tensor.Shape{2}, backend)
	autodiff.NoGrad(backend, func() {
		_ = x.Add(x)
	})
	assert.Equal(t, 0, backend.Tape().NumOps())
	assert.True(t, backend.Tape().IsRecording())

	_ = x.Add(x)
	assert.Equal(t, 1, backend.Tape().NumOps())

	backend.Tape().Clear()
	assert.Equal(t, 0, backend.Tape().NumOps())
}

func TestCastIsNotRecorded(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()

	labels := tensor.MustFromSlice([]float64{1.5, 2.5}, tensor.Shape{2}, backend)
	targets := labels.Float32()
	assert.Equal(t, []float32{1.5, 2.5}, targets.Data())
	assert.Equal(t, 0, backend.Tape().NumOps())
}

func TestEmbeddingGradient(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()

	w := tensor.MustFromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2}, backend)
	ids := tensor.MustFromSlice([]int32{2, 0, 2}, tensor.Shape{3}, backend)

	loss := tensor.Embedding(w, ids).Sum()
	grads := autodiff.Backward(loss, backend)

	assert.Equal(t, []float32{1, 1, 0, 0, 2, 2}, grads[w.Raw()].AsFloat32())
	assert.NotContains(t, grads, ids.Raw())
}

// numericCheck compares the tape gradient of f at x with central
// finite differences.
func numericCheck(t *testing.T, shape tensor.Shape, f func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT]) {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 11))

	backend := newBackend()
	x := tensor.Randn[float32](shape, backend, rng)

	backend.Tape().StartRecording()
	out := f(x)
	grads := autodiff.Backward(out, backend)
	backend.Tape().StopRecording()
	backend.Tape().Clear()

	analytic, ok := grads[x.Raw()]
	require.True(t, ok, "no gradient reached the input")
	got := analytic.AsFloat32()

	const eps = 1e-2
	data := x.Data()
	for i := range data {
		orig := data[i]
		data[i] = orig + eps
		plus := f(x).Item()
		data[i] = orig - eps
		minus := f(x).Item()
		data[i] = orig

		want := (plus - minus) / (2 * eps)
		assert.InDelta(t, want, got[i], 2e-2, "element %d", i)
	}
}

func TestNumericalGradients(t *testing.T) {
	type fn = func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT]

	weights := func(x *tensor.Tensor[float32, backendT], shape ...int) *tensor.Tensor[float32, backendT] {
		rng := rand.New(rand.NewPCG(3, 5))
		return tensor.Randn[float32](tensor.Shape(shape), x.Backend(), rng)
	}

	tests := []struct {
		name  string
		shape tensor.Shape
		f     fn
	}{
		{"add broadcast", tensor.Shape{2, 1}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			return x.Add(weights(x, 2, 3)).Mul(weights(x, 2, 3)).Sum()
		}},
		{"sub", tensor.Shape{3}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			return weights(x, 3).Sub(x).Mul(x).Sum()
		}},
		{"div", tensor.Shape{3}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			return weights(x, 3).Div(x.Mul(x).AddScalar(1)).Sum()
		}},
		{"matmul", tensor.Shape{2, 3}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			return x.MatMul(weights(x, 3, 4)).Tanh().Sum()
		}},
		{"batchmatmul", tensor.Shape{2, 2, 3}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			return x.BatchMatMul(x.Transpose(0, 2, 1)).Mul(weights(x, 2, 2, 2)).Sum()
		}},
		{"softmax", tensor.Shape{2, 4}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			return x.Softmax(-1).Mul(weights(x, 2, 4)).Sum()
		}},
		{"gelu", tensor.Shape{5}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			return x.GELU().Mul(weights(x, 5)).Sum()
		}},
		{"meandim and rsqrt", tensor.Shape{2, 3}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			variance := x.Mul(x).MeanDim(-1, true).AddScalar(1)
			return x.Mul(variance.Rsqrt()).Mul(weights(x, 2, 3)).Sum()
		}},
		{"sumdim and exp", tensor.Shape{2, 3}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			return x.MulScalar(0.5).Exp().SumDim(0, false).Log().Sum()
		}},
		{"reshape and squeeze", tensor.Shape{3, 1}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			return x.Squeeze().Unsqueeze(0).Reshape(3).Mul(weights(x, 3)).Sum()
		}},
		{"expand", tensor.Shape{1, 3}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			return x.Expand(tensor.Shape{2, 3}).Mul(weights(x, 2, 3)).Sum()
		}},
		{"sqrt and divscalar", tensor.Shape{3}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			return x.Mul(x).AddScalar(0.5).Sqrt().DivScalar(3).SubScalar(1).Sum()
		}},
		{"mean", tensor.Shape{4}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			return x.Mul(x).Mean()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			numericCheck(t, tt.shape, tt.f)
		})
	}
}

func TestAbsAndReLUGradients(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()

	x := tensor.MustFromSlice([]float32{-2, 0, 3}, tensor.Shape{3}, backend)
	grads := autodiff.Backward(x.Abs().Add(x.ReLU()).Sum(), backend)

	assert.Equal(t, []float32{-1, 0, 2}, grads[x.Raw()].AsFloat32())
}
