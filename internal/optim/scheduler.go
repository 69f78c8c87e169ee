package optim

import (
	"fmt"
	"math"
	"strings"
)

// Scheduler adjusts an optimizer's learning rate over time.
type Scheduler interface {
	// Step advances the schedule by one unit (a batch or an epoch,
	// depending on the configured Interval) and updates the optimizer.
	Step()

	// LR returns the learning rate currently applied.
	LR() float32
}

// SchedulerFactory binds a scheduler to an optimizer once the optimizer
// exists.
type SchedulerFactory func(Optimizer) Scheduler

// Interval is the unit a scheduler steps on.
type Interval string

// Scheduler intervals.
const (
	IntervalStep  Interval = "step"
	IntervalEpoch Interval = "epoch"
)

// ParseInterval accepts "step" or "epoch"; empty means step.
func ParseInterval(s string) (Interval, error) {
	switch Interval(strings.ToLower(s)) {
	case IntervalStep, "":
		return IntervalStep, nil
	case IntervalEpoch:
		return IntervalEpoch, nil
	default:
		return "", fmt.Errorf("optim: unknown scheduler interval %q", s)
	}
}

// LambdaLR multiplies the optimizer's initial learning rate by a factor
// computed from the step count. Every schedule in this package is a
// LambdaLR with a different factor.
type LambdaLR struct {
	optimizer Optimizer
	base      float32
	step      int
	factor    func(step int) float64
}

// NewLambdaLR creates a schedule and applies factor(0) immediately.
func NewLambdaLR(optimizer Optimizer, factor func(step int) float64) *LambdaLR {
	s := &LambdaLR{
		optimizer: optimizer,
		base:      optimizer.GetLR(),
		factor:    factor,
	}
	s.apply()
	return s
}

// Step advances the schedule.
func (s *LambdaLR) Step() {
	s.step++
	s.apply()
}

// LR returns the current learning rate.
func (s *LambdaLR) LR() float32 {
	return s.optimizer.GetLR()
}

// StepCount returns the number of Step calls so far.
func (s *LambdaLR) StepCount() int {
	return s.step
}

func (s *LambdaLR) apply() {
	s.optimizer.SetLR(float32(float64(s.base) * s.factor(s.step)))
}

// NewConstant keeps the learning rate fixed.
func NewConstant(optimizer Optimizer) *LambdaLR {
	return NewLambdaLR(optimizer, func(int) float64 { return 1 })
}

// NewStepLR decays the learning rate by gamma every stepSize steps.
func NewStepLR(optimizer Optimizer, stepSize int, gamma float64) *LambdaLR {
	if stepSize <= 0 {
		panic(fmt.Sprintf("StepLR: step size must be positive, got %d", stepSize))
	}
	return NewLambdaLR(optimizer, func(step int) float64 {
		return math.Pow(gamma, float64(step/stepSize))
	})
}

// NewLinearWarmup increases the learning rate linearly from 0 over
// warmupSteps, then decays it linearly to 0 at totalSteps.
func NewLinearWarmup(optimizer Optimizer, warmupSteps, totalSteps int) *LambdaLR {
	return NewLambdaLR(optimizer, func(step int) float64 {
		if step < warmupSteps {
			return float64(step) / float64(max(1, warmupSteps))
		}
		return max(0, float64(totalSteps-step)/float64(max(1, totalSteps-warmupSteps)))
	})
}

// NewCosineAnnealing warms up linearly over warmupSteps, then follows a
// half cosine from the base rate down to minLR at totalSteps.
func NewCosineAnnealing(optimizer Optimizer, warmupSteps, totalSteps int, minLR float32) *LambdaLR {
	base := float64(optimizer.GetLR())
	floor := 0.0
	if base > 0 {
		floor = float64(minLR) / base
	}
	return NewLambdaLR(optimizer, func(step int) float64 {
		if step < warmupSteps {
			return float64(step) / float64(max(1, warmupSteps))
		}
		progress := min(1, float64(step-warmupSteps)/float64(max(1, totalSteps-warmupSteps)))
		return floor + (1-floor)*0.5*(1+math.Cos(math.Pi*progress))
	})
}

// SchedulerSettings selects and configures a schedule by name.
type SchedulerSettings struct {
	Name        string // constant, step, linear_warmup or cosine
	Interval    string // step or epoch
	StepSize    int
	Gamma       float64
	WarmupSteps int
	// WarmupRatio sets WarmupSteps as a fraction of TotalSteps when
	// WarmupSteps is zero.
	WarmupRatio float64
	TotalSteps  int
	MinLR       float32
}

// NewSchedulerFactory returns the factory and interval for s.
// An empty name returns a nil factory: the optimizer runs unscheduled.
func NewSchedulerFactory(s SchedulerSettings) (SchedulerFactory, Interval, error) {
	interval, err := ParseInterval(s.Interval)
	if err != nil {
		return nil, "", err
	}

	warmup := s.WarmupSteps
	if warmup == 0 && s.WarmupRatio > 0 {
		warmup = int(math.Ceil(s.WarmupRatio * float64(s.TotalSteps)))
	}

	switch strings.ToLower(s.Name) {
	case "", "none":
		return nil, interval, nil
	case "constant":
		return func(o Optimizer) Scheduler { return NewConstant(o) }, interval, nil
	case "step":
		if s.StepSize <= 0 {
			return nil, "", fmt.Errorf("optim: step scheduler needs step_size > 0")
		}
		gamma := s.Gamma
		if gamma == 0 {
			gamma = 0.1
		}
		return func(o Optimizer) Scheduler { return NewStepLR(o, s.StepSize, gamma) }, interval, nil
	case "linear_warmup", "linear":
		if s.TotalSteps <= 0 {
			return nil, "", fmt.Errorf("optim: linear_warmup scheduler needs total_steps > 0")
		}
		return func(o Optimizer) Scheduler { return NewLinearWarmup(o, warmup, s.TotalSteps) }, interval, nil
	case "cosine":
		if s.TotalSteps <= 0 {
			return nil, "", fmt.Errorf("optim: cosine scheduler needs total_steps > 0")
		}
		return func(o Optimizer) Scheduler { return NewCosineAnnealing(o, warmup, s.TotalSteps, s.MinLR) }, interval, nil
	default:
		return nil, "", fmt.Errorf("optim: unknown scheduler %q", s.Name)
	}
}
