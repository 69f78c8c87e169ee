package cpu

import (
	"math"

	"github.com/born-ml/seqreg/internal/tensor"
)

// Tanh applies the hyperbolic tangent element-wise.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("tanh", x, func(v float32) float32 { return float32(math.Tanh(float64(v))) })
}

// ReLU applies max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("relu", x, func(v float32) float32 { return max(v, 0) })
}

// GELU applies the exact Gaussian error linear unit:
//
//	GELU(x) = x * 0.5 * (1 + erf(x / sqrt(2)))
func (cpu *CPUBackend) GELU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("gelu", x, func(v float32) float32 {
		f := float64(v)
		return float32(0.5 * f * (1 + math.Erf(f/math.Sqrt2)))
	})
}

// Softmax computes softmax along dim with max-shifting for stability:
//
//	softmax(x)_i = exp(x_i - max(x)) / Σ_j exp(x_j - max(x))
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	requireFloat32("softmax", x)
	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape))

	result := tensor.MustNewRaw(shape, tensor.Float32, cpu.device)
	src, dst := x.AsFloat32(), result.AsFloat32()

	size := shape[dim]
	inner := shape.ComputeStrides()[dim]
	outer := shape.NumElements() / (size * inner)

	forRows(cpu, outer*inner, func(line int) {
		o, in := line/inner, line%inner
		base := o*size*inner + in

		maxVal := float32(math.Inf(-1))
		for i := 0; i < size; i++ {
			maxVal = max(maxVal, src[base+i*inner])
		}

		var sum float64
		for i := 0; i < size; i++ {
			e := math.Exp(float64(src[base+i*inner] - maxVal))
			dst[base+i*inner] = float32(e)
			sum += e
		}

		inv := float32(1 / sum)
		for i := 0; i < size; i++ {
			dst[base+i*inner] *= inv
		}
	})
	return result
}
