// Package optim implements optimization algorithms and learning-rate
// schedules for training neural networks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum, weight decay and Nesterov
//   - Adam and AdamW: Adaptive Moment Estimation (coupled and decoupled decay)
//   - Scheduler: StepLR, LinearWarmup, CosineAnnealing, Constant
//   - ClipGradNorm: global gradient norm clipping
//
// Example usage:
//
//	optimizer := optim.NewAdamW(model.Parameters(), optim.AdamConfig{LR: 2e-5})
//	scheduler := optim.NewLinearWarmup(optimizer, 100, 1000)
//
//	for step := range steps {
//	    backend.Tape().StartRecording()
//	    loss := lossFunc.Forward(model.Forward(input), targets)
//	    grads := autodiff.Backward(loss, backend)
//
//	    optimizer.Step(grads)
//	    optimizer.ZeroGrad()
//	    scheduler.Step()
//	}
package optim

import (
	"fmt"
	"math"
	"strings"

	"github.com/born-ml/seqreg/internal/nn"
	"github.com/born-ml/seqreg/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
//
// Optimizers update model parameters in place based on computed gradients.
type Optimizer interface {
	// Step applies gradient updates to all parameters.
	//
	// Takes a gradient map from Backward() keyed by each parameter's
	// RawTensor. Parameters without a gradient are skipped.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR overrides the learning rate. Schedulers drive this.
	SetLR(lr float32)
}

// Factory builds an optimizer bound to a parameter set. Parameters only
// exist once the backbone is built, so the optimizer is constructed late.
type Factory[B tensor.Backend] func(params []*nn.Parameter[B]) Optimizer

// Settings selects and configures an optimizer by name.
type Settings struct {
	Name        string     // sgd, adam or adamw
	LR          float32    // Learning rate
	Momentum    float32    // SGD only
	Nesterov    bool       // SGD only
	WeightDecay float32    // L2 penalty (decoupled for adamw)
	Betas       [2]float32 // Adam family only
	Eps         float32    // Adam family only
}

// NewFactory returns a Factory for the optimizer named in s.
func NewFactory[B tensor.Backend](s Settings) (Factory[B], error) {
	switch strings.ToLower(s.Name) {
	case "sgd":
		cfg := SGDConfig{LR: s.LR, Momentum: s.Momentum, Nesterov: s.Nesterov, WeightDecay: s.WeightDecay}
		if cfg.Nesterov && cfg.Momentum <= 0 {
			return nil, fmt.Errorf("optim: nesterov requires momentum > 0")
		}
		return func(params []*nn.Parameter[B]) Optimizer { return NewSGD(params, cfg) }, nil
	case "adam":
		cfg := AdamConfig{LR: s.LR, Betas: s.Betas, Eps: s.Eps, WeightDecay: s.WeightDecay}
		return func(params []*nn.Parameter[B]) Optimizer { return NewAdam(params, cfg) }, nil
	case "adamw", "":
		cfg := AdamConfig{LR: s.LR, Betas: s.Betas, Eps: s.Eps, WeightDecay: s.WeightDecay}
		return func(params []*nn.Parameter[B]) Optimizer { return NewAdamW(params, cfg) }, nil
	default:
		return nil, fmt.Errorf("optim: unknown optimizer %q", s.Name)
	}
}

// ClipGradNorm rescales the gradients of params in place so that their
// global L2 norm is at most maxNorm. It returns the norm before clipping.
func ClipGradNorm[B tensor.Backend](grads map[*tensor.RawTensor]*tensor.RawTensor, params []*nn.Parameter[B], maxNorm float64) float64 {
	var sumSq float64
	for _, param := range params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		for _, g := range grad.AsFloat32() {
			sumSq += float64(g) * float64(g)
		}
	}

	total := math.Sqrt(sumSq)
	if maxNorm <= 0 || total <= maxNorm {
		return total
	}

	scale := float32(maxNorm / (total + 1e-6))
	for _, param := range params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		data := grad.AsFloat32()
		for i := range data {
			data[i] *= scale
		}
	}
	return total
}

// getGradient safely retrieves gradient for a parameter.
//
// Returns nil if no gradient is found (parameter wasn't part of computation graph).
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil {
		return nil
	}
	return grads[param.Tensor().Raw()]
}

// zeroGrads clears the gradients stored on params.
func zeroGrads[B tensor.Backend](params []*nn.Parameter[B]) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
