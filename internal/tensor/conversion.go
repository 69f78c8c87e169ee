package tensor

// Cast converts t to element type U on the same backend.
//
//	labels := tensor.MustFromSlice([]float64{0.5, 4.2}, Shape{2}, backend)
//	targets := tensor.Cast[float32](labels)
func Cast[U, T DType, B Backend](t *Tensor[T, B]) *Tensor[U, B] {
	var dummy U
	dtype := inferDataType(dummy)
	if t.DType() == dtype {
		return New[U, B](t.raw, t.backend)
	}
	return New[U, B](t.backend.Cast(t.raw, dtype), t.backend)
}

// Float32 converts the tensor to float32.
func (t *Tensor[T, B]) Float32() *Tensor[float32, B] {
	return Cast[float32](t)
}

// Float64 converts the tensor to float64.
func (t *Tensor[T, B]) Float64() *Tensor[float64, B] {
	return Cast[float64](t)
}

// Int32 converts the tensor to int32 (truncating toward zero).
func (t *Tensor[T, B]) Int32() *Tensor[int32, B] {
	return Cast[int32](t)
}
