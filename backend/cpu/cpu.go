// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go backend seqreg trains and serves on.
package cpu

import (
	internalcpu "github.com/born-ml/seqreg/internal/backend/cpu"
	"github.com/born-ml/seqreg/tensor"
)

// Backend is the CPU backend.
type Backend = internalcpu.CPUBackend

var _ tensor.Backend = (*Backend)(nil)

// Info describes the host processor.
type Info = internalcpu.Info

// New creates a CPU backend that parallelizes large kernels across
// GOMAXPROCS workers.
func New() *Backend {
	return internalcpu.New()
}

// HostInfo reports the processor brand, core counts and SIMD features.
func HostInfo() Info {
	return internalcpu.HostInfo()
}
