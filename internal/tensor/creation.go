package tensor

import (
	"math"
	"math/rand/v2"
)

// Zeros creates a tensor filled with zeros.
//
//	backend := cpu.New()
//	t := tensor.Zeros[float32](Shape{3, 4}, backend)
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	var dummy T
	raw, err := NewRaw(shape, inferDataType(dummy), b.Device())
	if err != nil {
		panic(err) // Shape validation should prevent this
	}
	return New[T, B](raw, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T, B](shape, T(1), b)
}

// Full creates a tensor filled with a specific value.
//
//	t := tensor.Full[float32](Shape{3, 3}, 3.14, backend)
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Randn creates a tensor with values drawn from N(0, 1) using the
// Box-Muller transform. A nil rng uses the global source.
// Only float types are supported.
//
//	rng := rand.New(rand.NewPCG(42, 0))
//	t := tensor.Randn[float32](Shape{100, 100}, backend, rng)
func Randn[T DType, B Backend](shape Shape, b B, rng *rand.Rand) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	uniform := uniformSource(rng)

	normals := func(n int, set func(i int, v float64)) {
		for i := 0; i < n; i += 2 {
			u1 := 1 - uniform() // (0, 1] keeps the log finite
			u2 := uniform()
			r := math.Sqrt(-2.0 * math.Log(u1))
			set(i, r*math.Cos(2.0*math.Pi*u2))
			if i+1 < n {
				set(i+1, r*math.Sin(2.0*math.Pi*u2))
			}
		}
	}

	switch data := any(t.Data()).(type) {
	case []float32:
		normals(len(data), func(i int, v float64) { data[i] = float32(v) })
	case []float64:
		normals(len(data), func(i int, v float64) { data[i] = v })
	default:
		panic("Randn only supports float32 and float64 types")
	}
	return t
}

// Rand creates a tensor with values uniformly distributed in [0, 1).
// A nil rng uses the global source. Only float types are supported.
func Rand[T DType, B Backend](shape Shape, b B, rng *rand.Rand) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	uniform := uniformSource(rng)

	switch data := any(t.Data()).(type) {
	case []float32:
		for i := range data {
			data[i] = float32(uniform())
		}
	case []float64:
		for i := range data {
			data[i] = uniform()
		}
	default:
		panic("Rand only supports float32 and float64 types")
	}
	return t
}

func uniformSource(rng *rand.Rand) func() float64 {
	if rng == nil {
		return rand.Float64 //nolint:gosec // G404: statistical use, not security
	}
	return rng.Float64
}
