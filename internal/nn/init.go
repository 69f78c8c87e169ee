package nn

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/seqreg/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
//
// A nil rng uses the global source.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B, rng *rand.Rand) *tensor.Tensor[float32, B] {
	bound := float32(math.Sqrt(6.0 / float64(fanIn+fanOut)))
	t := tensor.Rand[float32](shape, backend, rng)
	data := t.Data()
	for i := range data {
		data[i] = (data[i]*2 - 1) * bound
	}
	return t
}

// Normal initializes weights from N(0, std²), the scheme BERT-family
// checkpoints are trained from (std 0.02).
func Normal[B tensor.Backend](std float32, shape tensor.Shape, backend B, rng *rand.Rand) *tensor.Tensor[float32, B] {
	t := tensor.Randn[float32](shape, backend, rng)
	data := t.Data()
	for i := range data {
		data[i] *= std
	}
	return t
}

// Zeros creates a tensor filled with zeros.
// This is commonly used for bias initialization.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}

// Ones creates a tensor filled with ones.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Ones[float32](shape, backend)
}
