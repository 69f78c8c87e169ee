// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package adapter wraps a sequence classifier for regression training.
//
// An Adapter owns the loss, the metric list and the optimizer factories.
// A training loop drives its steps and receives observations through a
// Logger:
//
//	train step      -> "train_loss"
//	validation step -> "val_loss", then "val"+name per metric
//	test step       -> "test"+name per metric
package adapter

import (
	"github.com/born-ml/seqreg/internal/adapter"
	"github.com/born-ml/seqreg/internal/metrics"
	"github.com/born-ml/seqreg/nn"
	"github.com/born-ml/seqreg/optim"
	"github.com/born-ml/seqreg/tensor"
)

type (
	// Adapter binds a backbone to its loss, metrics and optimizers.
	Adapter[B tensor.Backend] = adapter.Adapter[B]
	// Backbone is what an Adapter trains.
	Backbone[B tensor.Backend] = adapter.Backbone[B]
	// Batch pairs inputs with optional targets.
	Batch[B tensor.Backend] = adapter.Batch[B]
	// OptimizerConfig is a bare optimizer or an optimizer with a scheduler.
	OptimizerConfig = adapter.OptimizerConfig
	// SchedulerConfig is a bound scheduler and its interval.
	SchedulerConfig = adapter.SchedulerConfig
	// Observation is one logged scalar.
	Observation = adapter.Observation
	// Logger receives observations.
	Logger = adapter.Logger
	// LoggerFunc adapts a function to Logger.
	LoggerFunc = adapter.LoggerFunc
	// Stage names the phase an observation came from.
	Stage = adapter.Stage
	// Option configures New.
	Option = adapter.Option
	// Metric is a named score over predictions and targets.
	Metric = metrics.Metric
)

// Stages.
const (
	StageTrain    = adapter.StageTrain
	StageValidate = adapter.StageValidate
	StageTest     = adapter.StageTest
	StagePredict  = adapter.StagePredict
)

// New creates an adapter. Metric names must be unique.
func New[B tensor.Backend](backbone Backbone[B], criterion nn.Loss[B], metricList []Metric, factory optim.Factory[B], opts ...Option) (*Adapter[B], error) {
	return adapter.New(backbone, criterion, metricList, factory, opts...)
}

// Metrics resolves registered metric names: pearson, spearman, mae, mse,
// rmse and r2.
func Metrics(names ...string) ([]Metric, error) {
	return metrics.Resolve(names)
}

// WithScheduler pairs the optimizer with a scheduler.
func WithScheduler(factory optim.SchedulerFactory, interval optim.Interval) Option {
	return adapter.WithScheduler(factory, interval)
}

// WithLogger sets the observation sink.
func WithLogger(logger Logger) Option {
	return adapter.WithLogger(logger)
}

// WithHyperparameters records the values the adapter was built with.
func WithHyperparameters(hparams map[string]any) Option {
	return adapter.WithHyperparameters(hparams)
}
