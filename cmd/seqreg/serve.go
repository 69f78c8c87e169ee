package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/seqreg/internal/backend/cpu"
	"github.com/born-ml/seqreg/internal/logger"
	"github.com/born-ml/seqreg/internal/nn"
	"github.com/born-ml/seqreg/internal/server"
	"github.com/born-ml/seqreg/internal/version"
)

func serveCmd() *cli.Command {
	var (
		checkpoint  string
		seed        uint64
		batchSize   int64
		maxLength   int64
		addr        string
		readTimeout time.Duration
	)

	flags := append(modelFlags(&checkpoint, &seed), dataFlags(&batchSize, &maxLength)...)
	flags = append(flags,
		&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Usage: "listen address (defaults to server.address)", Sources: cli.EnvVars("SEQREG_ADDR"), Destination: &addr},
		&cli.DurationFlag{Name: "read-timeout", Value: 30 * time.Second, Usage: "request header read timeout", Destination: &readTimeout},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve predictions over HTTP",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := runCfg
			applyModelFlags(cmd, &cfg, checkpoint, seed)
			applyDataFlags(cmd, &cfg, batchSize, maxLength)
			cfg.Scheduler.Name = ""
			if addr != "" {
				cfg.Server.Address = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			// Inference never records a tape.
			backend := cpu.New()
			backbone, err := buildModel(cfg, backend, log)
			if err != nil {
				return err
			}
			tok, err := loadTokenizer(cfg, backbone.Config(), log)
			if err != nil {
				return err
			}
			a, err := buildAdapter(cfg, backbone, 0)
			if err != nil {
				return err
			}
			maxLen := min(cfg.Data.MaxLength, backbone.Config().MaxSequenceLength())
			svc := server.NewService(a, tok, backend, cfg.Data.BatchSize, maxLen, server.WithLabelScale(cfg.Data.LabelScale))

			info := server.ModelInfo{
				Name:            cfg.Model.Checkpoint,
				Config:          backbone.Config(),
				Parameters:      nn.CountParameters(backbone.Parameters()),
				Hyperparameters: a.Hyperparameters(),
				CPU:             cpu.HostInfo(),
				Version:         version.Resolve().Version,
			}
			return server.New(svc, info, log).Start(ctx, cfg.Server.Address, readTimeout)
		},
	}
}
