package cpu

import (
	"fmt"

	"github.com/born-ml/seqreg/internal/tensor"
)

// Sum reduces all elements to a 0-D scalar. Accumulates in float64.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("sum", x)
	result := tensor.MustNewRaw(tensor.Shape{}, tensor.Float32, cpu.device)

	var sum float64
	for _, v := range x.AsFloat32() {
		sum += float64(v)
	}
	result.AsFloat32()[0] = float32(sum)
	return result
}

// SumDim sums tensor elements along the specified dimension.
//
// Parameters:
//   - dim: dimension to reduce (supports negative indexing: -1 = last dim)
//   - keepDim: if true, keep the reduced dimension with size 1; if false, remove it
//
// Example:
//
//	x := tensor.Randn[float32](tensor.Shape{2, 3, 4}, backend, nil)
//	y := backend.SumDim(x.Raw(), -1, true)   // shape: [2, 3, 1]
//	z := backend.SumDim(x.Raw(), -1, false)  // shape: [2, 3]
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	requireFloat32("sumdim", x)
	shape := x.Shape()
	if len(shape) == 0 {
		panic(fmt.Sprintf("sumdim: cannot reduce dimension %d of a 0-D tensor", dim))
	}
	dim = tensor.NormalizeDim(dim, len(shape))

	var outShape tensor.Shape
	if keepDim {
		outShape = shape.Clone()
		outShape[dim] = 1
	} else {
		outShape = make(tensor.Shape, 0, len(shape)-1)
		outShape = append(outShape, shape[:dim]...)
		outShape = append(outShape, shape[dim+1:]...)
	}

	result := tensor.MustNewRaw(outShape, tensor.Float32, cpu.device)
	sumDimFloat32(x.AsFloat32(), result.AsFloat32(), shape, dim)
	return result
}

// MeanDim computes the mean of tensor elements along the specified dimension.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	result := cpu.SumDim(x, dim, keepDim)

	shape := x.Shape()
	divisor := float32(shape[tensor.NormalizeDim(dim, len(shape))])
	data := result.AsFloat32()
	for i := range data {
		data[i] /= divisor
	}
	return result
}

// sumDimFloat32 reduces src of the given shape along dim into dst.
// The tensor is viewed as [outer, size, inner] with size = shape[dim].
func sumDimFloat32(src, dst []float32, shape tensor.Shape, dim int) {
	size := shape[dim]
	inner := shape.ComputeStrides()[dim]
	outer := shape.NumElements() / (size * inner)

	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			var sum float32
			base := o*size*inner + in
			for i := 0; i < size; i++ {
				sum += src[base+i*inner]
			}
			dst[o*inner+in] = sum
		}
	}
}
