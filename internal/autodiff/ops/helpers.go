package ops

import (
	"fmt"

	"github.com/born-ml/seqreg/internal/tensor"
)

// reduceBroadcast reduces a gradient to match the shape of an input that
// was broadcast in the forward pass.
//
//	Forward: a[3,1] + b[3,4] -> c[3,4]  (a was broadcast along dim 1)
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
func reduceBroadcast(grad *tensor.RawTensor, target tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(target) {
		return grad
	}

	result := grad
	// Leading dimensions the input never had are summed away.
	for len(result.Shape()) > len(target) {
		result = backend.SumDim(result, 0, false)
	}
	for i, d := range target {
		if d == 1 && result.Shape()[i] != 1 {
			result = backend.SumDim(result, i, true)
		}
	}

	if !result.Shape().Equal(target) {
		result = backend.Reshape(result, target)
	}
	return result
}

// mapFloat32 builds a new tensor shaped like like whose i-th element is f(i).
func mapFloat32(like *tensor.RawTensor, f func(i int) float32) *tensor.RawTensor {
	result, err := tensor.NewRaw(like.Shape(), tensor.Float32, like.Device())
	if err != nil {
		panic(fmt.Sprintf("autodiff: failed to allocate gradient: %v", err))
	}
	dst := result.AsFloat32()
	for i := range dst {
		dst[i] = f(i)
	}
	return result
}
