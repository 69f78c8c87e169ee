package optim

import (
	"math"

	"github.com/born-ml/seqreg/internal/nn"
	"github.com/born-ml/seqreg/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)   // Parameter update
//
// Plain Adam folds weight decay into the gradient (L2 penalty). AdamW
// applies it directly to the weights, decoupled from the moments:
//
//	param = param - lr * weight_decay * param
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
// and "Decoupled Weight Decay Regularization" (Loshchilov & Hutter, 2019).
type Adam[B tensor.Backend] struct {
	params      []*nn.Parameter[B]
	lr          float32
	beta1       float32
	beta2       float32
	eps         float32
	weightDecay float32
	decoupled   bool
	t           int                            // Timestep for bias correction
	m           map[*nn.Parameter[B]][]float32 // First moment estimates
	v           map[*nn.Parameter[B]][]float32 // Second moment estimates
}

// AdamConfig holds configuration for Adam and AdamW.
type AdamConfig struct {
	LR          float32    // Learning rate (default: 0.001)
	Betas       [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps         float32    // Term for numerical stability (default: 1e-8)
	WeightDecay float32    // Weight decay (default: 0 for Adam, 0.01 for AdamW)
}

func (c *AdamConfig) defaults() {
	if c.LR == 0 {
		c.LR = 0.001
	}
	if c.Betas[0] == 0 {
		c.Betas[0] = 0.9
	}
	if c.Betas[1] == 0 {
		c.Betas[1] = 0.999
	}
	if c.Eps == 0 {
		c.Eps = 1e-8
	}
}

// NewAdam creates a new Adam optimizer with L2 weight decay.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig) *Adam[B] {
	config.defaults()
	return newAdam(params, config, false)
}

// NewAdamW creates an Adam optimizer with decoupled weight decay, the
// usual choice for fine-tuning transformer encoders.
func NewAdamW[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig) *Adam[B] {
	config.defaults()
	if config.WeightDecay == 0 {
		config.WeightDecay = 0.01
	}
	return newAdam(params, config, true)
}

func newAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, decoupled bool) *Adam[B] {
	return &Adam[B]{
		params:      params,
		lr:          config.LR,
		beta1:       config.Betas[0],
		beta2:       config.Betas[1],
		eps:         config.Eps,
		weightDecay: config.WeightDecay,
		decoupled:   decoupled,
		m:           make(map[*nn.Parameter[B]][]float32),
		v:           make(map[*nn.Parameter[B]][]float32),
	}
}

// Step performs a single optimization step.
// Parameters with no gradient are skipped.
func (a *Adam[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	a.t++

	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for _, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		data := param.Tensor().Raw().AsFloat32()
		m, ok := a.m[param]
		if !ok {
			m = make([]float32, len(data))
			a.m[param] = m
		}
		v, ok := a.v[param]
		if !ok {
			v = make([]float32, len(data))
			a.v[param] = v
		}

		a.updateParameter(data, grad.AsFloat32(), m, v, biasCorrection1, biasCorrection2)
	}
}

// updateParameter performs the Adam update for a single parameter.
func (a *Adam[B]) updateParameter(data, grad, m, v []float32, biasCorrection1, biasCorrection2 float32) {
	for i := range data {
		g := grad[i]
		if a.weightDecay != 0 {
			if a.decoupled {
				data[i] -= a.lr * a.weightDecay * data[i]
			} else {
				g += a.weightDecay * data[i]
			}
		}

		m[i] = a.beta1*m[i] + (1-a.beta1)*g
		v[i] = a.beta2*v[i] + (1-a.beta2)*g*g

		mHat := m[i] / biasCorrection1
		vHat := v[i] / biasCorrection2
		data[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
	}
}

// ZeroGrad clears all parameter gradients.
func (a *Adam[B]) ZeroGrad() {
	zeroGrads(a.params)
}

// GetLR returns the current learning rate.
func (a *Adam[B]) GetLR() float32 {
	return a.lr
}

// SetLR sets the learning rate.
func (a *Adam[B]) SetLR(lr float32) {
	a.lr = lr
}

// GetTimestep returns the number of steps taken.
func (a *Adam[B]) GetTimestep() int {
	return a.t
}
