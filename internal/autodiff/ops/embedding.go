package ops

import (
	"fmt"

	"github.com/born-ml/seqreg/internal/tensor"
)

// EmbeddingOp represents a row lookup: output[i] = weight[indices[i]].
//
// The weight gradient scatters each output row gradient back to the row
// it came from, accumulating repeated indices. Indices get no gradient.
type EmbeddingOp struct {
	node
}

// NewEmbeddingOp creates a new EmbeddingOp.
func NewEmbeddingOp(weight, indices, output *tensor.RawTensor) *EmbeddingOp {
	return &EmbeddingOp{newNode(output, weight, indices)}
}

// Backward scatter-adds the output gradient into a weight-shaped gradient.
func (op *EmbeddingOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	weight, indices := op.inputs[0], op.inputs[1]
	dim := weight.Shape()[1]

	gradW, err := tensor.NewRaw(weight.Shape(), tensor.Float32, backend.Device())
	if err != nil {
		panic(fmt.Sprintf("embedding backward: %v", err))
	}

	dst := gradW.AsFloat32()
	g := outputGrad.AsFloat32()
	for i, idx := range indices.AsInt32() {
		row := dst[int(idx)*dim : (int(idx)+1)*dim]
		for j := range row {
			row[j] += g[i*dim+j]
		}
	}
	return []*tensor.RawTensor{gradW, nil}
}
