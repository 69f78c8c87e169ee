package tensor

import "fmt"

// Add performs element-wise addition with broadcasting.
//
//	a := tensor.Ones[float32](Shape{3, 1}, backend)
//	b := tensor.Ones[float32](Shape{3, 5}, backend)
//	c := a.Add(b) // Shape: [3, 5]
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Add(t.raw, other.raw), t.backend)
}

// Sub performs element-wise subtraction with broadcasting.
func (t *Tensor[T, B]) Sub(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Sub(t.raw, other.raw), t.backend)
}

// Mul performs element-wise multiplication with broadcasting.
func (t *Tensor[T, B]) Mul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Mul(t.raw, other.raw), t.backend)
}

// Div performs element-wise division with broadcasting.
func (t *Tensor[T, B]) Div(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Div(t.raw, other.raw), t.backend)
}

// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) → (M, N).
func (t *Tensor[T, B]) MatMul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.MatMul(t.raw, other.raw), t.backend)
}

// BatchMatMul performs batched matrix multiplication on 3D or 4D tensors.
//
//	q := tensor.Randn[float32](Shape{2, 4, 8, 16}, backend, nil)
//	k := tensor.Randn[float32](Shape{2, 4, 16, 8}, backend, nil)
//	scores := q.BatchMatMul(k) // Shape: [2, 4, 8, 8]
func (t *Tensor[T, B]) BatchMatMul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.BatchMatMul(t.raw, other.raw), t.backend)
}

// Reshape returns a tensor with the same data but different shape.
// The new shape must have the same number of elements.
func (t *Tensor[T, B]) Reshape(newShape ...int) *Tensor[T, B] {
	return New[T, B](t.backend.Reshape(t.raw, Shape(newShape)), t.backend)
}

// Transpose permutes the tensor's dimensions.
// With no axes all dimensions are reversed.
//
//	t := tensor.Randn[float32](Shape{2, 3, 4}, backend, nil)
//	transposed := t.Transpose(2, 0, 1) // Shape: [4, 2, 3]
func (t *Tensor[T, B]) Transpose(axes ...int) *Tensor[T, B] {
	return New[T, B](t.backend.Transpose(t.raw, axes...), t.backend)
}

// T is a shortcut for 2D transpose (swaps rows and columns).
// Panics if the tensor is not 2D.
func (t *Tensor[T, B]) T() *Tensor[T, B] {
	if len(t.Shape()) != 2 {
		panic("T() only works for 2D tensors")
	}
	return t.Transpose(1, 0)
}

// Unsqueeze adds a dimension of size 1 at the specified position.
// Supports negative dim indexing.
//
//	x := tensor.Randn[float32](Shape{2, 3}, backend, nil)
//	y := x.Unsqueeze(1)  // Shape: [2, 1, 3]
func (t *Tensor[T, B]) Unsqueeze(dim int) *Tensor[T, B] {
	return New[T, B](t.backend.Unsqueeze(t.raw, dim), t.backend)
}

// Squeeze removes dimensions of size 1.
//
// With no arguments every singleton dimension is removed, so a [1, 1]
// tensor becomes a 0-D scalar. With a dimension, only that dimension is
// removed and it must have size 1.
//
//	x := tensor.Randn[float32](Shape{4, 1}, backend, nil)
//	x.Squeeze()   // Shape: [4]
//	y := tensor.Randn[float32](Shape{1, 1}, backend, nil)
//	y.Squeeze()   // Shape: []
//	y.Squeeze(-1) // Shape: [1]
func (t *Tensor[T, B]) Squeeze(dims ...int) *Tensor[T, B] {
	switch len(dims) {
	case 0:
		shape := t.Shape()
		squeezed := make(Shape, 0, len(shape))
		for _, d := range shape {
			if d != 1 {
				squeezed = append(squeezed, d)
			}
		}
		if len(squeezed) == len(shape) {
			return t
		}
		return New[T, B](t.backend.Reshape(t.raw, squeezed), t.backend)
	case 1:
		return New[T, B](t.backend.Squeeze(t.raw, dims[0]), t.backend)
	default:
		panic(fmt.Sprintf("squeeze: expected at most one dimension, got %d", len(dims)))
	}
}

// Expand broadcasts the tensor to a larger shape.
func (t *Tensor[T, B]) Expand(shape Shape) *Tensor[T, B] {
	return New[T, B](t.backend.Expand(t.raw, shape), t.backend)
}

// Embedding gathers rows of weight [V, D] for each int32 index, producing
// a tensor of shape indices.Shape() + [D].
//
//	ids := tensor.MustFromSlice([]int32{0, 2}, Shape{2}, backend)
//	rows := tensor.Embedding(weight, ids) // Shape: [2, D]
func Embedding[T DType, B Backend](weight *Tensor[T, B], indices *Tensor[int32, B]) *Tensor[T, B] {
	return New[T, B](weight.backend.Embedding(weight.raw, indices.raw), weight.backend)
}
