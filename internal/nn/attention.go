package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/born-ml/seqreg/internal/tensor"
)

// MaskValue is added to attention scores of padded key positions.
// A large finite value keeps fully padded rows free of NaN.
const MaskValue = -1e9

// SelfAttention is bidirectional multi-head self-attention followed by the
// output projection, dropout, residual connection and LayerNorm, matching
// the BERT/RoBERTa "attention" block.
//
// Architecture:
//
//	Q, K, V = x @ W_q, x @ W_k, x @ W_v
//	scores  = Q @ K^T / sqrt(head_dim) + mask
//	ctx     = softmax(scores) @ V
//	out     = LayerNorm(x + Dropout(ctx @ W_o))
type SelfAttention[B tensor.Backend] struct {
	Query     *Linear[B]
	Key       *Linear[B]
	Value     *Linear[B]
	Output    *Linear[B]
	LayerNorm *LayerNorm[B]

	attnDropout *Dropout[B]
	outDropout  *Dropout[B]

	numHeads int
	headDim  int
	hidden   int
}

// AttentionConfig sizes a SelfAttention block.
type AttentionConfig struct {
	Hidden         int
	NumHeads       int
	Dropout        float32 // on the projected output
	ProbsDropout   float32 // on the attention probabilities
	LayerNormEps   float32
	InitializerStd float32
}

// NewSelfAttention creates a self-attention block.
// Panics if Hidden is not divisible by NumHeads.
func NewSelfAttention[B tensor.Backend](cfg AttentionConfig, backend B, rng *rand.Rand) *SelfAttention[B] {
	if cfg.NumHeads <= 0 || cfg.Hidden%cfg.NumHeads != 0 {
		panic(fmt.Sprintf("SelfAttention: hidden size %d not divisible by %d heads", cfg.Hidden, cfg.NumHeads))
	}

	opts := []LinearOption{WithRNG(rng), WithNormalInit(cfg.InitializerStd)}
	return &SelfAttention[B]{
		Query:       NewLinear(cfg.Hidden, cfg.Hidden, backend, opts...),
		Key:         NewLinear(cfg.Hidden, cfg.Hidden, backend, opts...),
		Value:       NewLinear(cfg.Hidden, cfg.Hidden, backend, opts...),
		Output:      NewLinear(cfg.Hidden, cfg.Hidden, backend, opts...),
		LayerNorm:   NewLayerNorm(cfg.Hidden, cfg.LayerNormEps, backend),
		attnDropout: NewDropout[B](cfg.ProbsDropout, rng),
		outDropout:  NewDropout[B](cfg.Dropout, rng),
		numHeads:    cfg.NumHeads,
		headDim:     cfg.Hidden / cfg.NumHeads,
		hidden:      cfg.Hidden,
	}
}

// Forward attends x [batch, seq, hidden] to itself.
// mask is an additive [batch, 1, 1, seq] tensor (0 for tokens, MaskValue
// for padding) or nil.
func (a *SelfAttention[B]) Forward(x, mask *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 3 || shape[2] != a.hidden {
		panic(fmt.Sprintf("SelfAttention.Forward: expected [batch, seq, %d], got %v", a.hidden, shape))
	}
	batch, seq := shape[0], shape[1]

	q := a.splitHeads(a.Query.Forward(x), batch, seq)
	k := a.splitHeads(a.Key.Forward(x), batch, seq)
	v := a.splitHeads(a.Value.Forward(x), batch, seq)

	scores := q.BatchMatMul(k.Transpose(0, 1, 3, 2))
	scores = scores.MulScalar(float32(1 / math.Sqrt(float64(a.headDim))))
	if mask != nil {
		scores = scores.Add(mask)
	}

	probs := a.attnDropout.Forward(scores.Softmax(-1))
	ctx := probs.BatchMatMul(v) // [batch, heads, seq, head_dim]
	ctx = ctx.Transpose(0, 2, 1, 3).Reshape(batch, seq, a.hidden)

	out := a.outDropout.Forward(a.Output.Forward(ctx))
	return a.LayerNorm.Forward(out.Add(x))
}

// splitHeads reshapes [batch, seq, hidden] to [batch, heads, seq, head_dim].
func (a *SelfAttention[B]) splitHeads(x *tensor.Tensor[float32, B], batch, seq int) *tensor.Tensor[float32, B] {
	return x.Reshape(batch, seq, a.numHeads, a.headDim).Transpose(0, 2, 1, 3)
}

// SetTraining toggles both dropout layers.
func (a *SelfAttention[B]) SetTraining(training bool) {
	a.attnDropout.SetTraining(training)
	a.outDropout.SetTraining(training)
}

// NamedParameters uses the Hugging Face layout: self.{query,key,value}
// and output.{dense,LayerNorm}.
func (a *SelfAttention[B]) NamedParameters() []NamedParameter[B] {
	var named []NamedParameter[B]
	named = append(named, Named("self.query", a.Query.Parameters())...)
	named = append(named, Named("self.key", a.Key.Parameters())...)
	named = append(named, Named("self.value", a.Value.Parameters())...)
	named = append(named, Named("output.dense", a.Output.Parameters())...)
	named = append(named, Named("output.LayerNorm", a.LayerNorm.Parameters())...)
	return named
}

// Parameters returns all weights of the block.
func (a *SelfAttention[B]) Parameters() []*Parameter[B] {
	return Unnamed(a.NamedParameters())
}
