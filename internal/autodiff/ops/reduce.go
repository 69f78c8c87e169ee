package ops

import "github.com/born-ml/seqreg/internal/tensor"

// SumOp represents the total sum, output = Σ x (0-D).
type SumOp struct {
	node
}

// NewSumOp creates a new SumOp.
func NewSumOp(x, output *tensor.RawTensor) *SumOp {
	return &SumOp{newNode(output, x)}
}

// Backward broadcasts the scalar gradient to the input shape.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Expand(outputGrad, op.inputs[0].Shape())}
}

// SumDimOp represents a sum along one dimension.
type SumDimOp struct {
	node
	dim     int
	keepDim bool
	scale   float64
}

// NewSumDimOp creates a new SumDimOp. dim must be non-negative.
func NewSumDimOp(x, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	return &SumDimOp{node: newNode(output, x), dim: dim, keepDim: keepDim, scale: 1}
}

// NewMeanDimOp creates the op for a mean along dim: a sum scaled by
// 1/size in the backward pass.
func NewMeanDimOp(x, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	op := NewSumDimOp(x, output, dim, keepDim)
	op.scale = 1 / float64(x.Shape()[dim])
	return op
}

// Backward restores the reduced dimension and broadcasts the gradient.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := outputGrad
	if !op.keepDim {
		grad = backend.Unsqueeze(grad, op.dim)
	}
	grad = backend.Expand(grad, op.inputs[0].Shape())
	if op.scale != 1 {
		grad = backend.MulScalar(grad, op.scale)
	}
	return []*tensor.RawTensor{grad}
}
