// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package model loads RoBERTa sequence classifiers with a single
// regression output.
//
// Example:
//
//	m, report, err := model.FromPretrained("models/roberta-base", cpu.New())
//	out := m.Forward(&model.Input[*cpu.Backend]{InputIDs: ids, AttentionMask: mask})
package model

import (
	"github.com/born-ml/seqreg/internal/model"
	"github.com/born-ml/seqreg/tensor"
)

// Config mirrors a Hugging Face config.json.
type Config = model.Config

// SequenceClassifier is a RoBERTa encoder with a classification head.
type SequenceClassifier[B tensor.Backend] = model.SequenceClassifier[B]

// Input is a padded batch of token ids.
type Input[B tensor.Backend] = model.Input[B]

// Output holds logits of shape [batch, num_labels].
type Output[B tensor.Backend] = model.Output[B]

// LoadReport describes how checkpoint weights were mapped.
type LoadReport = model.LoadReport

// Option adjusts a model before it is built.
type Option = model.Option

// WithSeed seeds weight initialization and dropout.
func WithSeed(seed uint64) Option { return model.WithSeed(seed) }

// WithDropout overrides every dropout probability.
func WithDropout(p float64) Option { return model.WithDropout(p) }

// WithNumLabels overrides the forced single regression output.
func WithNumLabels(n int) Option { return model.WithNumLabels(n) }

// FromPretrained loads a checkpoint directory or a preset.
func FromPretrained[B tensor.Backend](identifier string, backend B, opts ...Option) (*SequenceClassifier[B], *LoadReport, error) {
	return model.FromPretrained(identifier, backend, opts...)
}

// New builds a freshly initialized model from cfg.
func New[B tensor.Backend](cfg Config, backend B, opts ...Option) (*SequenceClassifier[B], error) {
	return model.New(cfg, backend, opts...)
}

// Preset returns a built-in configuration.
func Preset(name string) (Config, bool) { return model.Preset(name) }

// PresetNames lists the built-in configurations.
func PresetNames() []string { return model.PresetNames() }
