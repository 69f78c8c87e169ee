package optim

import (
	"github.com/born-ml/seqreg/internal/nn"
	"github.com/born-ml/seqreg/internal/tensor"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * (gradient + weight_decay * param)
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// With Nesterov the step uses gradient + momentum * velocity instead.
type SGD[B tensor.Backend] struct {
	params      []*nn.Parameter[B]
	lr          float32
	momentum    float32
	weightDecay float32
	nesterov    bool
	velocities  map[*nn.Parameter[B]][]float32
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR          float32 // Learning rate (default: 0.01)
	Momentum    float32 // Momentum factor (default: 0.0, range: [0, 1))
	WeightDecay float32 // L2 penalty (default: 0)
	Nesterov    bool    // Nesterov momentum
}

// NewSGD creates a new SGD optimizer.
//
//	sgd := optim.NewSGD(model.Parameters(), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig) *SGD[B] {
	if config.LR == 0 {
		config.LR = 0.01
	}

	return &SGD[B]{
		params:      params,
		lr:          config.LR,
		momentum:    config.Momentum,
		weightDecay: config.WeightDecay,
		nesterov:    config.Nesterov,
		velocities:  make(map[*nn.Parameter[B]][]float32),
	}
}

// Step performs a single optimization step.
func (s *SGD[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, param := range s.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		data := param.Tensor().Raw().AsFloat32()
		g := grad.AsFloat32()

		var velocity []float32
		if s.momentum != 0 {
			velocity = s.velocities[param]
			if velocity == nil {
				velocity = make([]float32, len(data))
				s.velocities[param] = velocity
			}
		}

		for i := range data {
			d := g[i]
			if s.weightDecay != 0 {
				d += s.weightDecay * data[i]
			}
			if velocity != nil {
				velocity[i] = s.momentum*velocity[i] + d
				if s.nesterov {
					d += s.momentum * velocity[i]
				} else {
					d = velocity[i]
				}
			}
			data[i] -= s.lr * d
		}
	}
}

// ZeroGrad clears all parameter gradients.
func (s *SGD[B]) ZeroGrad() {
	zeroGrads(s.params)
}

// GetLR returns the current learning rate.
func (s *SGD[B]) GetLR() float32 {
	return s.lr
}

// SetLR sets the learning rate.
func (s *SGD[B]) SetLR(lr float32) {
	s.lr = lr
}
