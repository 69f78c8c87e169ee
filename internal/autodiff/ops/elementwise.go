package ops

import "github.com/born-ml/seqreg/internal/tensor"

// ExpOp represents output = exp(x). d/dx = exp(x) = output.
type ExpOp struct {
	node
}

// NewExpOp creates a new ExpOp.
func NewExpOp(x, output *tensor.RawTensor) *ExpOp {
	return &ExpOp{newNode(output, x)}
}

// Backward computes grad_x = g * output.
func (op *ExpOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Mul(outputGrad, op.output)}
}

// LogOp represents output = ln(x). d/dx = 1/x.
type LogOp struct {
	node
}

// NewLogOp creates a new LogOp.
func NewLogOp(x, output *tensor.RawTensor) *LogOp {
	return &LogOp{newNode(output, x)}
}

// Backward computes grad_x = g / x.
func (op *LogOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Div(outputGrad, op.inputs[0])}
}

// SqrtOp represents output = sqrt(x). d/dx = 1 / (2 * sqrt(x)).
type SqrtOp struct {
	node
}

// NewSqrtOp creates a new SqrtOp.
func NewSqrtOp(x, output *tensor.RawTensor) *SqrtOp {
	return &SqrtOp{newNode(output, x)}
}

// Backward computes grad_x = g * 0.5 / output.
func (op *SqrtOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MulScalar(backend.Div(outputGrad, op.output), 0.5)}
}

// RsqrtOp represents output = 1/sqrt(x). d/dx = -0.5 * x^(-3/2) = -0.5 * output³.
type RsqrtOp struct {
	node
}

// NewRsqrtOp creates a new RsqrtOp.
func NewRsqrtOp(x, output *tensor.RawTensor) *RsqrtOp {
	return &RsqrtOp{newNode(output, x)}
}

// Backward computes grad_x = -0.5 * g * output³.
func (op *RsqrtOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	g := outputGrad.AsFloat32()
	y := op.output.AsFloat32()
	return []*tensor.RawTensor{mapFloat32(op.output, func(i int) float32 {
		return -0.5 * g[i] * y[i] * y[i] * y[i]
	})}
}

// AbsOp represents output = |x|. The subgradient at 0 is 0.
type AbsOp struct {
	node
}

// NewAbsOp creates a new AbsOp.
func NewAbsOp(x, output *tensor.RawTensor) *AbsOp {
	return &AbsOp{newNode(output, x)}
}

// Backward computes grad_x = g * sign(x).
func (op *AbsOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	g := outputGrad.AsFloat32()
	x := op.inputs[0].AsFloat32()
	return []*tensor.RawTensor{mapFloat32(op.inputs[0], func(i int) float32 {
		switch {
		case x[i] > 0:
			return g[i]
		case x[i] < 0:
			return -g[i]
		default:
			return 0
		}
	})}
}
