package cpu

import (
	"fmt"

	"github.com/born-ml/seqreg/internal/tensor"
)

// Reshape returns a tensor with the same data and a new shape.
// One dimension may be -1, in which case it is inferred.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	return t.View(inferShape(t.NumElements(), newShape)).Clone()
}

func inferShape(numElements int, shape tensor.Shape) tensor.Shape {
	out := shape.Clone()
	inferred := -1
	known := 1
	for i, d := range out {
		if d == -1 {
			if inferred >= 0 {
				panic(fmt.Sprintf("reshape: only one dimension can be -1, got %v", shape))
			}
			inferred = i
			continue
		}
		known *= d
	}
	if inferred >= 0 {
		if known == 0 || numElements%known != 0 {
			panic(fmt.Sprintf("reshape: cannot infer dimension for %d elements into %v", numElements, shape))
		}
		out[inferred] = numElements / known
	}
	if out.NumElements() != numElements {
		panic(fmt.Sprintf("reshape: cannot reshape %d elements into %v", numElements, shape))
	}
	return out
}

// Transpose permutes dimensions. With no axes all dimensions are reversed.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: expected %d axes, got %d", ndim, len(axes)))
	}

	seen := make([]bool, ndim)
	outShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		ax = tensor.NormalizeDim(ax, ndim)
		if seen[ax] {
			panic(fmt.Sprintf("transpose: repeated axis %d in %v", ax, axes))
		}
		seen[ax] = true
		axes[i] = ax
		outShape[i] = shape[ax]
	}

	// Strides of the source, reordered to follow the output dimensions.
	srcStrides := shape.ComputeStrides()
	strides := make([]int, ndim)
	for i, ax := range axes {
		strides[i] = srcStrides[ax]
	}

	result := tensor.MustNewRaw(outShape, t.DType(), cpu.device)
	switch t.DType() {
	case tensor.Float32:
		gatherStrided(result.AsFloat32(), t.AsFloat32(), outShape, strides)
	case tensor.Int32:
		gatherStrided(result.AsInt32(), t.AsInt32(), outShape, strides)
	default:
		panic(fmt.Sprintf("transpose: unsupported dtype %s", t.DType()))
	}
	return result
}

// gatherStrided fills dst in row-major order of shape, reading src through strides.
func gatherStrided[T float32 | int32](dst, src []T, shape tensor.Shape, strides []int) {
	forEachIndex(shape, func(flat int, coords []int) {
		dst[flat] = src[offsetOf(coords, strides)]
	})
}

// Unsqueeze inserts a dimension of size 1 at dim. dim may equal ndim.
func (cpu *CPUBackend) Unsqueeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape)+1)

	outShape := make(tensor.Shape, 0, len(shape)+1)
	outShape = append(outShape, shape[:dim]...)
	outShape = append(outShape, 1)
	outShape = append(outShape, shape[dim:]...)
	return cpu.Reshape(x, outShape)
}

// Squeeze removes dimension dim, which must have size 1.
func (cpu *CPUBackend) Squeeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape))
	if shape[dim] != 1 {
		panic(fmt.Sprintf("squeeze: dimension %d has size %d, expected 1", dim, shape[dim]))
	}

	outShape := make(tensor.Shape, 0, len(shape)-1)
	outShape = append(outShape, shape[:dim]...)
	outShape = append(outShape, shape[dim+1:]...)
	return cpu.Reshape(x, outShape)
}

// Expand broadcasts x to shape following NumPy rules.
func (cpu *CPUBackend) Expand(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	requireFloat32("expand", x)
	out, _, err := tensor.BroadcastShapes(x.Shape(), shape)
	if err != nil || !out.Equal(shape) {
		panic(fmt.Sprintf("expand: cannot expand %v to %v", x.Shape(), shape))
	}

	result := tensor.MustNewRaw(shape, tensor.Float32, cpu.device)
	gatherStrided(result.AsFloat32(), x.AsFloat32(), shape, broadcastStrides(x.Shape(), shape))
	return result
}
