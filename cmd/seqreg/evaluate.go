package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/born-ml/seqreg/internal/logger"
	"github.com/born-ml/seqreg/internal/trainer"
)

func evaluateCmd() *cli.Command {
	var (
		checkpoint string
		seed       uint64
		batchSize  int64
		maxLength  int64
		dataPath   string
		asJSON     bool
	)

	flags := append(modelFlags(&checkpoint, &seed), dataFlags(&batchSize, &maxLength)...)
	flags = append(flags,
		&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "labelled CSV (defaults to data.test, then data.val)", Destination: &dataPath},
		&cli.BoolFlag{Name: "json", Usage: "print scores as JSON", Destination: &asJSON},
	)

	return &cli.Command{
		Name:  "evaluate",
		Usage: "Report loss and metrics of a checkpoint on a labelled CSV",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := runCfg
			applyModelFlags(cmd, &cfg, checkpoint, seed)
			applyDataFlags(cmd, &cfg, batchSize, maxLength)
			cfg.Scheduler.Name = ""
			path := dataPath
			if path == "" {
				path = firstNonEmpty(cfg.Data.Test, cfg.Data.Val)
			}
			if path == "" {
				return errors.New("evaluate: no data (set --data, data.test or data.val)")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			backend := newTapeBackend(log)
			backbone, err := buildModel(cfg, backend, log)
			if err != nil {
				return err
			}
			tok, err := loadTokenizer(cfg, backbone.Config(), log)
			if err != nil {
				return err
			}
			loader, err := newSplitReader(cfg, tok, backend, backbone.Config(), log).load(path, false, true)
			if err != nil {
				return err
			}
			a, err := buildAdapter(cfg, backbone, 0)
			if err != nil {
				return err
			}
			tr, err := trainer.New(backend, trainer.DefaultConfig(), trainer.WithLogger(log))
			if err != nil {
				return err
			}

			scores, err := tr.Validate(ctx, a, loader)
			if err != nil {
				return err
			}
			test, err := tr.Test(ctx, a, loader)
			if err != nil {
				return err
			}
			maps.Copy(scores, test)

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(scores)
			}
			printScores(scores)
			return nil
		},
	}
}

func printScores(scores map[string]float64) {
	for _, name := range slices.Sorted(maps.Keys(scores)) {
		fmt.Printf("%-16s %.6f\n", name, scores[name])
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
