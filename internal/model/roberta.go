// Package model implements a RoBERTa encoder with a sequence
// classification head, loadable from Hugging Face checkpoints.
package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/seqreg/internal/nn"
	"github.com/born-ml/seqreg/internal/tensor"
)

// Input is a batch of token ids.
type Input[B tensor.Backend] struct {
	// InputIDs holds token ids, shape [batch, seq].
	InputIDs *tensor.Tensor[int32, B]

	// AttentionMask marks real tokens with 1 and padding with 0, shape
	// [batch, seq]. Nil attends to every position.
	AttentionMask *tensor.Tensor[int32, B]
}

// Output holds the classification head's result.
type Output[B tensor.Backend] struct {
	// Logits has shape [batch, num_labels].
	Logits *tensor.Tensor[float32, B]
}

// embeddings sums word, position and token type embeddings.
type embeddings[B tensor.Backend] struct {
	word      *nn.Embedding[B]
	position  *nn.Embedding[B]
	tokenType *nn.Embedding[B]
	layerNorm *nn.LayerNorm[B]
	dropout   *nn.Dropout[B]
	padID     int32
}

func newEmbeddings[B tensor.Backend](cfg Config, backend B, rng *rand.Rand) *embeddings[B] {
	std := float32(cfg.InitializerRange)
	e := &embeddings[B]{
		word:      nn.NewEmbedding(cfg.VocabSize, cfg.HiddenSize, std, backend, rng),
		position:  nn.NewEmbedding(cfg.MaxPositionEmbeddings, cfg.HiddenSize, std, backend, rng),
		tokenType: nn.NewEmbedding(cfg.TypeVocabSize, cfg.HiddenSize, std, backend, rng),
		layerNorm: nn.NewLayerNorm(cfg.HiddenSize, float32(cfg.LayerNormEps), backend),
		dropout:   nn.NewDropout[B](float32(cfg.HiddenDropoutProb), rng),
		padID:     int32(cfg.PadTokenID), //nolint:gosec // G115: validated against vocab size
	}
	e.word.ZeroRow(cfg.PadTokenID)
	e.position.ZeroRow(cfg.PadTokenID)
	return e
}

func (e *embeddings[B]) forward(ids *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	positions := positionIDs(ids, e.padID)
	tokenTypes := tensor.Zeros[int32](ids.Shape(), ids.Backend())

	x := e.word.Forward(ids).
		Add(e.position.Forward(positions)).
		Add(e.tokenType.Forward(tokenTypes))
	return e.dropout.Forward(e.layerNorm.Forward(x))
}

func (e *embeddings[B]) namedParameters() []nn.NamedParameter[B] {
	var named []nn.NamedParameter[B]
	named = append(named, nn.Named("word_embeddings", e.word.Parameters())...)
	named = append(named, nn.Named("position_embeddings", e.position.Parameters())...)
	named = append(named, nn.Named("token_type_embeddings", e.tokenType.Parameters())...)
	named = append(named, nn.Named("LayerNorm", e.layerNorm.Parameters())...)
	return named
}

// positionIDs numbers non-padding tokens from padID+1 and gives padding
// tokens padID, so padded positions hit the zeroed padding row.
func positionIDs[B tensor.Backend](ids *tensor.Tensor[int32, B], padID int32) *tensor.Tensor[int32, B] {
	shape := ids.Shape()
	seq := shape[len(shape)-1]
	src := ids.Data()

	out := tensor.Zeros[int32](shape, ids.Backend())
	dst := out.Data()
	for row := 0; row < len(src); row += seq {
		next := padID
		for j := row; j < row+seq; j++ {
			if src[j] == padID {
				dst[j] = padID
				continue
			}
			next++
			dst[j] = next
		}
	}
	return out
}

// classificationHead maps the <s> token's hidden state to logits.
type classificationHead[B tensor.Backend] struct {
	dense   *nn.Linear[B]
	outProj *nn.Linear[B]
	dropout *nn.Dropout[B]
}

func newClassificationHead[B tensor.Backend](cfg Config, backend B, rng *rand.Rand) *classificationHead[B] {
	opts := []nn.LinearOption{nn.WithRNG(rng), nn.WithNormalInit(float32(cfg.InitializerRange))}
	return &classificationHead[B]{
		dense:   nn.NewLinear(cfg.HiddenSize, cfg.HiddenSize, backend, opts...),
		outProj: nn.NewLinear(cfg.HiddenSize, cfg.NumLabels, backend, opts...),
		dropout: nn.NewDropout[B](float32(cfg.classifierDropout()), rng),
	}
}

func (h *classificationHead[B]) forward(cls *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	x := h.dropout.Forward(cls)
	x = h.dense.Forward(x).Tanh()
	x = h.dropout.Forward(x)
	return h.outProj.Forward(x)
}

func (h *classificationHead[B]) namedParameters() []nn.NamedParameter[B] {
	var named []nn.NamedParameter[B]
	named = append(named, nn.Named("dense", h.dense.Parameters())...)
	named = append(named, nn.Named("out_proj", h.outProj.Parameters())...)
	return named
}

// SequenceClassifier is a RoBERTa encoder topped with a classification
// head over the first (<s>) token. With NumLabels == 1 it is a regressor.
//
//	cfg, _ := model.Preset("roberta-tiny")
//	m, err := model.New(cfg, backend)
//	out := m.Forward(&model.Input[B]{InputIDs: ids, AttentionMask: mask})
//	out.Logits // [batch, 1]
type SequenceClassifier[B tensor.Backend] struct {
	config     Config
	embeddings *embeddings[B]
	layers     []*nn.EncoderLayer[B]
	head       *classificationHead[B]
	dropouts   []nn.Trainable
	training   bool
}

// New builds a randomly initialized classifier for cfg.
func New[B tensor.Backend](cfg Config, backend B, opts ...Option) (*SequenceClassifier[B], error) {
	o := applyOptions(opts)
	cfg = o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15)) //nolint:gosec // G404: weight init

	m := &SequenceClassifier[B]{
		config:     cfg,
		embeddings: newEmbeddings(cfg, backend, rng),
		head:       newClassificationHead(cfg, backend, rng),
	}

	layerCfg := nn.EncoderConfig{
		AttentionConfig: nn.AttentionConfig{
			Hidden:         cfg.HiddenSize,
			NumHeads:       cfg.NumAttentionHeads,
			Dropout:        float32(cfg.HiddenDropoutProb),
			ProbsDropout:   float32(cfg.AttentionProbsDropoutProb),
			LayerNormEps:   float32(cfg.LayerNormEps),
			InitializerStd: float32(cfg.InitializerRange),
		},
		Intermediate: cfg.IntermediateSize,
	}
	for range cfg.NumHiddenLayers {
		layer := nn.NewEncoderLayer(layerCfg, backend, rng)
		m.layers = append(m.layers, layer)
		m.dropouts = append(m.dropouts, layer)
	}
	m.dropouts = append(m.dropouts, m.embeddings.dropout, m.head.dropout)
	return m, nil
}

// Forward computes logits for a batch.
// Panics if ids are not [batch, seq] or exceed the position table.
func (m *SequenceClassifier[B]) Forward(input *Input[B]) *Output[B] {
	ids := input.InputIDs
	shape := ids.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("SequenceClassifier.Forward: expected input ids [batch, seq], got %v", shape))
	}
	batch, seq := shape[0], shape[1]
	if seq > m.config.MaxSequenceLength() {
		panic(fmt.Sprintf("SequenceClassifier.Forward: sequence length %d exceeds maximum %d",
			seq, m.config.MaxSequenceLength()))
	}

	var mask *tensor.Tensor[float32, B]
	if input.AttentionMask != nil {
		if !input.AttentionMask.Shape().Equal(shape) {
			panic(fmt.Sprintf("SequenceClassifier.Forward: attention mask %v does not match ids %v",
				input.AttentionMask.Shape(), shape))
		}
		mask = additiveMask(input.AttentionMask)
	}

	hidden := m.embeddings.forward(ids)
	for _, layer := range m.layers {
		hidden = layer.Forward(hidden, mask)
	}

	return &Output[B]{Logits: m.head.forward(firstToken(hidden, batch, seq))}
}

// additiveMask turns a [batch, seq] 0/1 mask into [batch, 1, 1, seq]
// attention biases.
func additiveMask[B tensor.Backend](mask *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	shape := mask.Shape()
	out := tensor.Zeros[float32](tensor.Shape{shape[0], 1, 1, shape[1]}, mask.Backend())
	dst := out.Data()
	for i, v := range mask.Data() {
		if v == 0 {
			dst[i] = nn.MaskValue
		}
	}
	return out
}

// firstToken selects hidden[:, 0, :] as a [batch, hidden] tensor. The
// backend has no slicing op, so it multiplies by a one-hot selector,
// which keeps the selection differentiable.
func firstToken[B tensor.Backend](hidden *tensor.Tensor[float32, B], batch, seq int) *tensor.Tensor[float32, B] {
	selector := tensor.Zeros[float32](tensor.Shape{batch, 1, seq}, hidden.Backend())
	data := selector.Data()
	for b := range batch {
		data[b*seq] = 1
	}
	dim := hidden.Shape()[2]
	return selector.BatchMatMul(hidden).Reshape(batch, dim)
}

// SetTraining enables or disables every dropout layer.
func (m *SequenceClassifier[B]) SetTraining(training bool) {
	m.training = training
	for _, d := range m.dropouts {
		d.SetTraining(training)
	}
}

// Training reports whether dropout is active.
func (m *SequenceClassifier[B]) Training() bool {
	return m.training
}

// Config returns the model configuration.
func (m *SequenceClassifier[B]) Config() Config {
	return m.config
}

// Ready reports whether m was built by New or FromPretrained. It is safe
// to call on a nil pointer.
func (m *SequenceClassifier[B]) Ready() bool {
	return m != nil && m.embeddings != nil && m.head != nil
}

// NamedParameters returns every weight under its Hugging Face name.
func (m *SequenceClassifier[B]) NamedParameters() []nn.NamedParameter[B] {
	named := nn.Prefix("roberta.embeddings", m.embeddings.namedParameters())
	for i, layer := range m.layers {
		named = append(named, nn.Prefix(fmt.Sprintf("roberta.encoder.layer.%d", i), layer.NamedParameters())...)
	}
	named = append(named, nn.Prefix("classifier", m.head.namedParameters())...)
	return named
}

// Parameters returns every trainable weight.
func (m *SequenceClassifier[B]) Parameters() []*nn.Parameter[B] {
	return nn.Unnamed(m.NamedParameters())
}

// StateDict maps Hugging Face names to weights.
func (m *SequenceClassifier[B]) StateDict() map[string]*tensor.RawTensor {
	return nn.StateDict(m.NamedParameters())
}
