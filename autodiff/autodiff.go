// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff wraps a backend with a gradient tape.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	loss := criterion.Forward(predictions, targets)
//	grads := autodiff.Backward(loss, backend)
package autodiff

import (
	"github.com/born-ml/seqreg/internal/autodiff"
	"github.com/born-ml/seqreg/tensor"
)

// Backend is a backend whose operations can be recorded.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New wraps backend with a tape that starts out stopped.
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for reverse-mode differentiation.
type GradientTape = autodiff.GradientTape

// BackwardCapable is implemented by backends that expose their tape.
type BackwardCapable = autodiff.BackwardCapable

// Backward returns the gradient of the scalar t with respect to every
// recorded input.
func Backward[B BackwardCapable](t *tensor.Tensor[float32, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(t, backend)
}

// NoGrad runs f with recording suspended.
func NoGrad[B BackwardCapable](backend B, f func()) {
	autodiff.NoGrad(backend, f)
}
