package nn

import (
	"fmt"

	"github.com/born-ml/seqreg/internal/tensor"
)

// Loss computes a scalar training objective from predictions and targets.
//
// Implementations are composed from differentiable tensor operations, so
// calling Forward on an autodiff backend records the whole loss on the
// tape.
type Loss[B tensor.Backend] interface {
	// Forward returns the mean loss as a 0-D tensor.
	Forward(pred, target *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Name identifies the loss in configuration and logs.
	Name() string
}

// MSELoss is the mean squared error.
//
//	loss = mean((pred - target)²)
type MSELoss[B tensor.Backend] struct{}

// NewMSELoss creates a new MSE loss.
func NewMSELoss[B tensor.Backend]() *MSELoss[B] {
	return &MSELoss[B]{}
}

// Forward computes mean((pred - target)²).
func (l *MSELoss[B]) Forward(pred, target *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	diff := pred.Sub(alignTarget(pred, target))
	return diff.Mul(diff).Mean()
}

// Name returns "mse".
func (l *MSELoss[B]) Name() string { return "mse" }

// L1Loss is the mean absolute error.
type L1Loss[B tensor.Backend] struct{}

// NewL1Loss creates a new L1 loss.
func NewL1Loss[B tensor.Backend]() *L1Loss[B] {
	return &L1Loss[B]{}
}

// Forward computes mean(|pred - target|).
func (l *L1Loss[B]) Forward(pred, target *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return pred.Sub(alignTarget(pred, target)).Abs().Mean()
}

// Name returns "l1".
func (l *L1Loss[B]) Name() string { return "l1" }

// HuberLoss is quadratic for errors below Delta and linear above it.
//
//	loss = 0.5·d²              if |d| <= delta
//	       delta·(|d| - 0.5·delta) otherwise
type HuberLoss[B tensor.Backend] struct {
	Delta float32
}

// NewHuberLoss creates a Huber loss. Delta must be positive.
func NewHuberLoss[B tensor.Backend](delta float32) *HuberLoss[B] {
	if delta <= 0 {
		panic(fmt.Sprintf("HuberLoss: delta must be positive, got %g", delta))
	}
	return &HuberLoss[B]{Delta: delta}
}

// Forward computes the mean Huber loss.
//
// With a = |d| and q = min(a, delta) = delta - relu(delta - a), the loss
// is 0.5·q² + delta·(a - q), which covers both branches without a select.
func (l *HuberLoss[B]) Forward(pred, target *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	a := pred.Sub(alignTarget(pred, target)).Abs()
	q := a.MulScalar(-1).AddScalar(l.Delta).ReLU().MulScalar(-1).AddScalar(l.Delta)
	quadratic := q.Mul(q).MulScalar(0.5)
	linear := a.Sub(q).MulScalar(l.Delta)
	return quadratic.Add(linear).Mean()
}

// Name returns "huber".
func (l *HuberLoss[B]) Name() string { return "huber" }

// NewLoss resolves a loss by name: "mse", "l1" or "huber".
func NewLoss[B tensor.Backend](name string, huberDelta float32) (Loss[B], error) {
	switch name {
	case "mse", "":
		return NewMSELoss[B](), nil
	case "l1", "mae":
		return NewL1Loss[B](), nil
	case "huber", "smooth_l1":
		if huberDelta <= 0 {
			huberDelta = 1
		}
		return NewHuberLoss[B](huberDelta), nil
	default:
		return nil, fmt.Errorf("unknown loss %q", name)
	}
}

// alignTarget reshapes target to pred's shape when both hold the same
// number of elements, so [N] targets line up with [N, 1] predictions
// instead of broadcasting to [N, N].
func alignTarget[B tensor.Backend](pred, target *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if target.Shape().Equal(pred.Shape()) {
		return target
	}
	if target.NumElements() != pred.NumElements() {
		panic(fmt.Sprintf("loss: prediction shape %v and target shape %v hold different element counts",
			pred.Shape(), target.Shape()))
	}
	return target.Reshape(pred.Shape()...)
}
