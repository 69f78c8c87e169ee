package nn

import (
	"math/rand/v2"

	"github.com/born-ml/seqreg/internal/tensor"
)

// Embedding is a lookup table mapping token ids to dense vectors.
//
//	emb := nn.NewEmbedding(50265, 768, 0.02, backend, rng)
//	vectors := emb.Forward(ids) // [batch, seq] -> [batch, seq, 768]
type Embedding[B tensor.Backend] struct {
	Weight        *Parameter[B] // [num_embeddings, embedding_dim]
	NumEmbeddings int
	EmbeddingDim  int
}

// NewEmbedding creates an embedding table initialized from N(0, std²).
func NewEmbedding[B tensor.Backend](numEmbeddings, embeddingDim int, std float32, backend B, rng *rand.Rand) *Embedding[B] {
	w := Normal(std, tensor.Shape{numEmbeddings, embeddingDim}, backend, rng)
	return &Embedding[B]{
		Weight:        NewParameter("weight", w),
		NumEmbeddings: numEmbeddings,
		EmbeddingDim:  embeddingDim,
	}
}

// ZeroRow zeroes one row of the table, used for the padding index.
func (e *Embedding[B]) ZeroRow(idx int) {
	data := e.Weight.Tensor().Data()
	clear(data[idx*e.EmbeddingDim : (idx+1)*e.EmbeddingDim])
}

// Forward looks up the vectors for ids of any shape.
func (e *Embedding[B]) Forward(ids *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	return tensor.Embedding(e.Weight.Tensor(), ids)
}

// Parameters returns the embedding table.
func (e *Embedding[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{e.Weight}
}
