package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/seqreg/internal/tensor"
)

// Linear implements a fully connected layer: y = x @ W^T + b.
//
// The input may have any number of leading dimensions; the last one must
// equal InFeatures. [batch, seq, in] maps to [batch, seq, out].
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter[B] // [out_features, in_features]
	bias        *Parameter[B] // [out_features], nil when disabled
}

type linearConfig struct {
	rng    *rand.Rand
	std    float32
	noBias bool
}

// LinearOption configures NewLinear.
type LinearOption func(*linearConfig)

// WithRNG draws initial weights from rng.
func WithRNG(rng *rand.Rand) LinearOption {
	return func(c *linearConfig) { c.rng = rng }
}

// WithNormalInit initializes weights from N(0, std²) instead of Xavier.
func WithNormalInit(std float32) LinearOption {
	return func(c *linearConfig) { c.std = std }
}

// WithoutBias disables the bias term.
func WithoutBias() LinearOption {
	return func(c *linearConfig) { c.noBias = true }
}

// NewLinear creates a new linear layer with Xavier-initialized weights and
// zero bias unless options say otherwise.
//
//	layer := nn.NewLinear(768, 768, backend, nn.WithNormalInit(0.02))
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B, opts ...LinearOption) *Linear[B] {
	var cfg linearConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	shape := tensor.Shape{outFeatures, inFeatures}
	var w *tensor.Tensor[float32, B]
	if cfg.std > 0 {
		w = Normal(cfg.std, shape, backend, cfg.rng)
	} else {
		w = Xavier(inFeatures, outFeatures, shape, backend, cfg.rng)
	}

	l := &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", w),
	}
	if !cfg.noBias {
		l.bias = NewParameter("bias", Zeros(tensor.Shape{outFeatures}, backend))
	}
	return l
}

// Forward computes x @ W^T + b over the last dimension of x.
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) == 0 || shape[len(shape)-1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input with %d features in the last dimension, got shape %v",
			l.inFeatures, shape))
	}

	x := input
	if len(shape) != 2 {
		x = input.Reshape(-1, l.inFeatures)
	}

	output := x.MatMul(l.weight.Tensor().T())
	if l.bias != nil {
		output = output.Add(l.bias.Tensor())
	}

	if len(shape) != 2 {
		outShape := shape.Clone()
		outShape[len(outShape)-1] = l.outFeatures
		output = output.Reshape(outShape...)
	}
	return output
}

// Parameters returns weight and, if present, bias.
func (l *Linear[B]) Parameters() []*Parameter[B] {
	if l.bias != nil {
		return []*Parameter[B]{l.weight, l.bias}
	}
	return []*Parameter[B]{l.weight}
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *Parameter[B] {
	return l.weight
}

// Bias returns the bias parameter, or nil.
func (l *Linear[B]) Bias() *Parameter[B] {
	return l.bias
}

// InFeatures returns the input feature count.
func (l *Linear[B]) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the output feature count.
func (l *Linear[B]) OutFeatures() int {
	return l.outFeatures
}
