// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim exposes the optimizers and learning rate schedules.
//
// Both are built through factories because parameters only exist once a
// model is loaded:
//
//	factory, err := optim.NewFactory[B](optim.Settings{Name: "adamw", LR: 1e-5})
//	opt := factory(model.Parameters())
package optim

import (
	"github.com/born-ml/seqreg/internal/optim"
	"github.com/born-ml/seqreg/nn"
	"github.com/born-ml/seqreg/tensor"
)

// Optimizer updates parameters from a gradient map.
type Optimizer = optim.Optimizer

// Factory binds an optimizer to a parameter set.
type Factory[B tensor.Backend] = optim.Factory[B]

// Settings selects and configures an optimizer by name.
type Settings = optim.Settings

// Scheduler adjusts the learning rate of an optimizer.
type Scheduler = optim.Scheduler

// SchedulerFactory binds a scheduler to an optimizer.
type SchedulerFactory = optim.SchedulerFactory

// SchedulerSettings selects and configures a schedule by name.
type SchedulerSettings = optim.SchedulerSettings

// Interval is the unit a scheduler steps on.
type Interval = optim.Interval

// Scheduler intervals.
const (
	IntervalStep  Interval = optim.IntervalStep
	IntervalEpoch Interval = optim.IntervalEpoch
)

// NewFactory returns a factory for sgd, adam or adamw.
func NewFactory[B tensor.Backend](s Settings) (Factory[B], error) {
	return optim.NewFactory[B](s)
}

// NewSchedulerFactory returns a factory for the schedule named in s, or a
// nil factory when s names none.
func NewSchedulerFactory(s SchedulerSettings) (SchedulerFactory, Interval, error) {
	return optim.NewSchedulerFactory(s)
}

// ClipGradNorm scales gradients so their global L2 norm is at most
// maxNorm and returns the norm before clipping.
func ClipGradNorm[B tensor.Backend](grads map[*tensor.RawTensor]*tensor.RawTensor, params []*nn.Parameter[B], maxNorm float64) float64 {
	return optim.ClipGradNorm(grads, params, maxNorm)
}
