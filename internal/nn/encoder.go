package nn

import (
	"math/rand/v2"

	"github.com/born-ml/seqreg/internal/tensor"
)

// EncoderLayer is a post-norm transformer encoder layer:
//
//	h   = LayerNorm(x + SelfAttention(x))
//	out = LayerNorm(h + Dropout(W_2 · GELU(W_1 · h)))
type EncoderLayer[B tensor.Backend] struct {
	Attention    *SelfAttention[B]
	Intermediate *Linear[B]
	Output       *Linear[B]
	LayerNorm    *LayerNorm[B]

	dropout *Dropout[B]
}

// EncoderConfig sizes an EncoderLayer.
type EncoderConfig struct {
	AttentionConfig
	Intermediate int
}

// NewEncoderLayer creates an encoder layer.
func NewEncoderLayer[B tensor.Backend](cfg EncoderConfig, backend B, rng *rand.Rand) *EncoderLayer[B] {
	opts := []LinearOption{WithRNG(rng), WithNormalInit(cfg.InitializerStd)}
	return &EncoderLayer[B]{
		Attention:    NewSelfAttention(cfg.AttentionConfig, backend, rng),
		Intermediate: NewLinear(cfg.Hidden, cfg.Intermediate, backend, opts...),
		Output:       NewLinear(cfg.Intermediate, cfg.Hidden, backend, opts...),
		LayerNorm:    NewLayerNorm(cfg.Hidden, cfg.LayerNormEps, backend),
		dropout:      NewDropout[B](cfg.Dropout, rng),
	}
}

// Forward runs the layer on x [batch, seq, hidden] with an optional
// additive attention mask.
func (l *EncoderLayer[B]) Forward(x, mask *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	h := l.Attention.Forward(x, mask)
	ff := l.Output.Forward(l.Intermediate.Forward(h).GELU())
	return l.LayerNorm.Forward(h.Add(l.dropout.Forward(ff)))
}

// SetTraining toggles every dropout in the layer.
func (l *EncoderLayer[B]) SetTraining(training bool) {
	l.Attention.SetTraining(training)
	l.dropout.SetTraining(training)
}

// NamedParameters uses the Hugging Face layer layout.
func (l *EncoderLayer[B]) NamedParameters() []NamedParameter[B] {
	var named []NamedParameter[B]
	named = append(named, Prefix("attention", l.Attention.NamedParameters())...)
	named = append(named, Named("intermediate.dense", l.Intermediate.Parameters())...)
	named = append(named, Named("output.dense", l.Output.Parameters())...)
	named = append(named, Named("output.LayerNorm", l.LayerNorm.Parameters())...)
	return named
}

// Parameters returns all weights of the layer.
func (l *EncoderLayer[B]) Parameters() []*Parameter[B] {
	return Unnamed(l.NamedParameters())
}
