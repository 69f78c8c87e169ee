package nn

import (
	"math/rand/v2"

	"github.com/born-ml/seqreg/internal/tensor"
)

// Dropout zeroes elements with probability P during training and scales
// the survivors by 1/(1-P). In evaluation mode it is the identity.
// Modules start in evaluation mode.
type Dropout[B tensor.Backend] struct {
	P        float32
	training bool
	rng      *rand.Rand
}

// NewDropout creates a dropout layer. A nil rng uses the global source.
func NewDropout[B tensor.Backend](p float32, rng *rand.Rand) *Dropout[B] {
	return &Dropout[B]{P: p, rng: rng}
}

// SetTraining switches between training and evaluation behaviour.
func (d *Dropout[B]) SetTraining(training bool) {
	d.training = training
}

// Forward applies the dropout mask. The mask is a constant, so gradients
// flow through the multiplication.
func (d *Dropout[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.P <= 0 {
		return x
	}

	mask := tensor.Rand[float32](x.Shape(), x.Backend(), d.rng)
	keep := 1 / (1 - d.P)
	data := mask.Data()
	for i, u := range data {
		if u < d.P {
			data[i] = 0
		} else {
			data[i] = keep
		}
	}
	return x.Mul(mask)
}

// Parameters returns nil; dropout has no weights.
func (d *Dropout[B]) Parameters() []*Parameter[B] {
	return nil
}
