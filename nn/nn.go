// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/seqreg/internal/nn"
	"github.com/born-ml/seqreg/tensor"
)

// Parameter is a trainable tensor.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NamedParameter pairs a parameter with its checkpoint key.
type NamedParameter[B tensor.Backend] = nn.NamedParameter[B]

// Loss reduces predictions and targets to a scalar objective.
type Loss[B tensor.Backend] = nn.Loss[B]

// NewLoss returns the loss registered as name: mse, l1 or huber.
// huberDelta is ignored by the other losses.
func NewLoss[B tensor.Backend](name string, huberDelta float32) (Loss[B], error) {
	return nn.NewLoss[B](name, huberDelta)
}

// NewMSELoss returns the mean squared error.
func NewMSELoss[B tensor.Backend]() Loss[B] {
	return nn.NewMSELoss[B]()
}

// NewL1Loss returns the mean absolute error.
func NewL1Loss[B tensor.Backend]() Loss[B] {
	return nn.NewL1Loss[B]()
}

// NewHuberLoss returns the smooth L1 loss with the given threshold.
func NewHuberLoss[B tensor.Backend](delta float32) Loss[B] {
	return nn.NewHuberLoss[B](delta)
}

// CountParameters sums the elements of params.
func CountParameters[B tensor.Backend](params []*Parameter[B]) int {
	return nn.CountParameters(params)
}
