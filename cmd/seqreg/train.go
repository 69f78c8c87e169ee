package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/seqreg/internal/config"
	"github.com/born-ml/seqreg/internal/data"
	"github.com/born-ml/seqreg/internal/logger"
	"github.com/born-ml/seqreg/internal/optim"
	"github.com/born-ml/seqreg/internal/tensor"
	"github.com/born-ml/seqreg/internal/trainer"
)

func trainCmd() *cli.Command {
	var (
		checkpoint string
		seed       uint64
		batchSize  int64
		maxLength  int64
		trainPath  string
		valPath    string
		testPath   string
		epochs     int64
		maxSteps   int64
		lr         float64
		output     string
		patience   int64
		monitor    string
	)

	flags := append(modelFlags(&checkpoint, &seed), dataFlags(&batchSize, &maxLength)...)
	flags = append(flags,
		&cli.StringFlag{Name: "train", Usage: "training CSV", Destination: &trainPath},
		&cli.StringFlag{Name: "val", Usage: "validation CSV", Destination: &valPath},
		&cli.StringFlag{Name: "test", Usage: "test CSV, evaluated after training", Destination: &testPath},
		&cli.Int64Flag{Name: "epochs", Aliases: []string{"e"}, Usage: "maximum epochs", Destination: &epochs},
		&cli.Int64Flag{Name: "max-steps", Usage: "maximum optimizer steps", Destination: &maxSteps},
		&cli.Float64Flag{Name: "lr", Usage: "learning rate", Destination: &lr},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "checkpoint directory", Destination: &output},
		&cli.Int64Flag{Name: "patience", Usage: "early stopping patience in validations", Destination: &patience},
		&cli.StringFlag{Name: "monitor", Usage: "epoch metric that selects the best checkpoint", Destination: &monitor},
	)

	return &cli.Command{
		Name:  "train",
		Usage: "Fine-tune a model on a CSV of sentence pairs",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := runCfg
			applyModelFlags(cmd, &cfg, checkpoint, seed)
			applyDataFlags(cmd, &cfg, batchSize, maxLength)
			if cmd.IsSet("train") {
				cfg.Data.Train = trainPath
			}
			if cmd.IsSet("val") {
				cfg.Data.Val = valPath
			}
			if cmd.IsSet("test") {
				cfg.Data.Test = testPath
			}
			if cmd.IsSet("epochs") {
				cfg.Trainer.MaxEpochs = int(epochs)
			}
			if cmd.IsSet("max-steps") {
				cfg.Trainer.MaxSteps = int(maxSteps)
			}
			if cmd.IsSet("lr") {
				cfg.Optimizer.LR = float32(lr)
			}
			if cmd.IsSet("output") {
				cfg.Trainer.CheckpointDir = output
			}
			if cmd.IsSet("patience") {
				cfg.Trainer.Patience = int(patience)
			}
			if cmd.IsSet("monitor") {
				cfg.Trainer.Monitor = monitor
			}
			if cfg.Data.Train == "" {
				return errors.New("train: no training data (set data.train or --train)")
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
			reader := newSplitReader(cfg, tok, backend, backbone.Config(), log)

			train, err := reader.load(cfg.Data.Train, cfg.Data.Shuffle, true)
			if err != nil {
				return err
			}
			val, err := reader.load(cfg.Data.Val, false, true)
			if err != nil {
				return err
			}

			interval, err := optim.ParseInterval(cfg.Scheduler.Interval)
			if err != nil {
				return err
			}
			a, err := buildAdapter(cfg, backbone, totalSteps(train.Len(), cfg.Trainer.MaxEpochs, cfg.Trainer.MaxSteps, interval))
			if err != nil {
				return err
			}
			tr, err := trainer.New(backend, trainerConfig(cfg), trainer.WithLogger(log))
			if err != nil {
				return err
			}

			res, err := tr.Fit(ctx, a, train, source(val))
			if err != nil {
				return fmt.Errorf("train: %w", err)
			}
			if res.RunDir != "" {
				if err := cfg.Save(filepath.Join(res.RunDir, "config.yaml")); err != nil {
					return err
				}
				if err := copyTokenizerFiles(cfg, res.RunDir); err != nil {
					return err
				}
			}
			fmt.Printf("run:        %s\n", res.RunID)
			fmt.Printf("epochs:     %d (%s)\n", res.Epochs, res.StopReason)
			fmt.Printf("steps:      %d\n", res.Steps)
			if res.BestEpoch > 0 {
				fmt.Printf("best %s: %.6g (epoch %d)\n", cfg.Trainer.Monitor, res.BestScore, res.BestEpoch)
			}
			if res.RunDir != "" {
				fmt.Printf("checkpoint: %s\n", filepath.Join(res.RunDir, "best"))
			}

			if cfg.Data.Test == "" {
				return nil
			}
			test, err := reader.load(cfg.Data.Test, false, true)
			if err != nil {
				return err
			}
			scores, err := tr.Test(ctx, a, test)
			if err != nil {
				return fmt.Errorf("test: %w", err)
			}
			printScores(scores)
			return nil
		},
	}
}

// totalSteps estimates how many times the scheduler steps during a run,
// for schedules that decay to the end of training. Epoch-interval
// schedulers step once per epoch.
func totalSteps(batchesPerEpoch, maxEpochs, maxSteps int, interval optim.Interval) int {
	if interval == optim.IntervalEpoch {
		epochs := maxEpochs
		if maxSteps > 0 && batchesPerEpoch > 0 {
			epochs = min(epochs, (maxSteps+batchesPerEpoch-1)/batchesPerEpoch)
		}
		return epochs
	}
	total := batchesPerEpoch * maxEpochs
	if maxSteps > 0 && (total <= 0 || maxSteps < total) {
		total = maxSteps
	}
	return total
}

// copyTokenizerFiles places the tokenizer next to the saved weights so
// the checkpoint directories load without extra flags.
func copyTokenizerFiles(cfg config.Config, runDir string) error {
	src := cfg.Data.Tokenizer.Path
	if src == "" {
		src = cfg.Model.Checkpoint
	}
	st, err := os.Stat(src)
	if err != nil {
		return nil
	}
	files := []string{src}
	if st.IsDir() {
		files = files[:0]
		for _, name := range []string{"tokenizer.json", "vocab.json", "merges.txt"} {
			files = append(files, filepath.Join(src, name))
		}
	}
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		for _, sub := range []string{"best", "last"} {
			dir := filepath.Join(runDir, sub)
			if _, err := os.Stat(dir); err != nil {
				continue
			}
			if err := os.WriteFile(filepath.Join(dir, filepath.Base(file)), raw, 0o600); err != nil {
				return err
			}
		}
	}
	return nil
}

// source keeps a nil loader from becoming a non-nil interface.
func source[B tensor.Backend](l *data.Loader[B]) trainer.Source[B] {
	if l == nil {
		return nil
	}
	return l
}
