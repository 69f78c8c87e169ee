package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/seqreg/internal/config"
	"github.com/born-ml/seqreg/internal/logger"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	// runCfg is the loaded configuration with command line overrides
	// applied by each command.
	runCfg config.Config
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to a YAML run configuration",
			Sources:     cli.EnvVars("SEQREG_CONFIG"),
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (text, json, pretty)",
			Value:       "text",
			Destination: &logFormat,
		},
	}
}

// setup loads the configuration and installs the logger in the context.
// Log flags override the file's log section only when given.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return ctx, err
	}
	if cmd.IsSet("log-level") || cfg.Log.Level == "" {
		cfg.Log.Level = logLevel
	}
	if cmd.IsSet("log-format") || cfg.Log.Format == "" {
		cfg.Log.Format = logFormat
	}

	log, err := logger.NewWithFormat(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return ctx, err
	}
	runCfg = cfg
	if configPath != "" {
		log.Debug("config loaded", "path", configPath)
	}
	return logger.WithContext(ctx, log), nil
}

func modelFlags(checkpoint *string, seed *uint64) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "checkpoint directory or preset name",
			Destination: checkpoint,
		},
		&cli.Uint64Flag{
			Name:        "seed",
			Usage:       "weight initialization and shuffling seed",
			Destination: seed,
		},
	}
}

func dataFlags(batchSize, maxLength *int64) []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "batch-size",
			Aliases:     []string{"b"},
			Usage:       "examples per batch",
			Destination: batchSize,
		},
		&cli.Int64Flag{
			Name:        "max-length",
			Usage:       "maximum tokens per framed pair",
			Destination: maxLength,
		},
	}
}

// applyModelFlags copies explicitly set flags over cfg.
func applyModelFlags(cmd *cli.Command, cfg *config.Config, checkpoint string, seed uint64) {
	if cmd.IsSet("model") {
		cfg.Model.Checkpoint = checkpoint
	}
	if cmd.IsSet("seed") {
		cfg.Model.Seed = seed
	}
}

func applyDataFlags(cmd *cli.Command, cfg *config.Config, batchSize, maxLength int64) {
	if cmd.IsSet("batch-size") {
		cfg.Data.BatchSize = int(batchSize)
	}
	if cmd.IsSet("max-length") {
		cfg.Data.MaxLength = int(maxLength)
	}
}
