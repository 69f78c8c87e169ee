// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn exposes trainable parameters and the regression losses.
//
// Losses are built from differentiable tensor operations, so a Forward
// call on an autodiff backend lands on the tape:
//
//	criterion, err := nn.NewLoss[B]("huber", 1.0)
//	loss := criterion.Forward(predictions, targets) // 0-D mean loss
package nn
