package ops

import (
	"math"

	"github.com/born-ml/seqreg/internal/tensor"
)

// TanhOp represents output = tanh(x). d/dx = 1 - tanh²(x).
type TanhOp struct {
	node
}

// NewTanhOp creates a new TanhOp.
func NewTanhOp(x, output *tensor.RawTensor) *TanhOp {
	return &TanhOp{newNode(output, x)}
}

// Backward computes grad_x = g * (1 - output²).
func (op *TanhOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	g := outputGrad.AsFloat32()
	y := op.output.AsFloat32()
	return []*tensor.RawTensor{mapFloat32(op.output, func(i int) float32 {
		return g[i] * (1 - y[i]*y[i])
	})}
}

// ReLUOp represents output = max(0, x). d/dx = 1 if x > 0, else 0.
type ReLUOp struct {
	node
}

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(x, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{newNode(output, x)}
}

// Backward masks the output gradient with x > 0.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	g := outputGrad.AsFloat32()
	x := op.inputs[0].AsFloat32()
	return []*tensor.RawTensor{mapFloat32(op.inputs[0], func(i int) float32 {
		if x[i] > 0 {
			return g[i]
		}
		return 0
	})}
}

// GELUOp represents the exact GELU, output = x * Φ(x).
//
//	d/dx = Φ(x) + x * φ(x)
//
// where Φ is the standard normal CDF and φ its density.
type GELUOp struct {
	node
}

// NewGELUOp creates a new GELUOp.
func NewGELUOp(x, output *tensor.RawTensor) *GELUOp {
	return &GELUOp{newNode(output, x)}
}

// Backward computes grad_x = g * (Φ(x) + x φ(x)).
func (op *GELUOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	g := outputGrad.AsFloat32()
	x := op.inputs[0].AsFloat32()
	invSqrt2Pi := 1 / math.Sqrt(2*math.Pi)
	return []*tensor.RawTensor{mapFloat32(op.inputs[0], func(i int) float32 {
		v := float64(x[i])
		cdf := 0.5 * (1 + math.Erf(v/math.Sqrt2))
		pdf := invSqrt2Pi * math.Exp(-0.5*v*v)
		return g[i] * float32(cdf+v*pdf)
	})}
}

// SoftmaxOp represents softmax along a dimension.
//
// With y = softmax(x), the vector-Jacobian product is
//
//	grad_x = y * (g - Σ_j g_j y_j)
//
// where the sum runs along the softmax dimension.
type SoftmaxOp struct {
	node
	dim int
}

// NewSoftmaxOp creates a new SoftmaxOp. dim must be non-negative.
func NewSoftmaxOp(x, output *tensor.RawTensor, dim int) *SoftmaxOp {
	return &SoftmaxOp{node: newNode(output, x), dim: dim}
}

// Backward computes the softmax vector-Jacobian product.
func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	gy := backend.Mul(outputGrad, op.output)
	dot := backend.SumDim(gy, op.dim, true)
	return []*tensor.RawTensor{backend.Mul(op.output, backend.Sub(outputGrad, dot))}
}
