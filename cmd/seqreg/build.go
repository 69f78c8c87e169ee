package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/born-ml/seqreg/internal/adapter"
	"github.com/born-ml/seqreg/internal/autodiff"
	"github.com/born-ml/seqreg/internal/backend/cpu"
	"github.com/born-ml/seqreg/internal/config"
	"github.com/born-ml/seqreg/internal/data"
	"github.com/born-ml/seqreg/internal/logger"
	"github.com/born-ml/seqreg/internal/metrics"
	"github.com/born-ml/seqreg/internal/model"
	"github.com/born-ml/seqreg/internal/nn"
	"github.com/born-ml/seqreg/internal/optim"
	"github.com/born-ml/seqreg/internal/tensor"
	"github.com/born-ml/seqreg/internal/tokenizer"
	"github.com/born-ml/seqreg/internal/trainer"
)

// tapeBackend records operations for training; evaluation runs on it
// with the tape stopped.
type tapeBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newTapeBackend(log logger.Logger) tapeBackend {
	b := autodiff.New(cpu.New())
	info := cpu.HostInfo()
	log.Info("backend ready",
		"backend", b.Name(),
		"cpu", info.Brand,
		"cores", info.LogicalCores,
		"features", info.Features,
	)
	return b
}

// buildModel loads the backbone named by cfg.Model.
func buildModel[B tensor.Backend](cfg config.Config, backend B, log logger.Logger) (*model.SequenceClassifier[B], error) {
	opts := []model.Option{model.WithSeed(cfg.Model.Seed)}
	if cfg.Model.Dropout != nil {
		opts = append(opts, model.WithDropout(*cfg.Model.Dropout))
	}
	m, report, err := model.FromPretrained(cfg.Model.Checkpoint, backend, opts...)
	if err != nil {
		return nil, err
	}

	params := nn.CountParameters(m.Parameters())
	log.Info("model loaded",
		"source", report.Source,
		"parameters", params,
		"initialized", len(report.Initialized),
		"unexpected", len(report.Unexpected),
		"skipped", report.Skipped,
	)
	if len(report.Initialized) > 0 && len(report.Initialized) < len(m.NamedParameters()) {
		log.Warn("some weights were newly initialized; train before using the model for predictions",
			"weights", report.Initialized)
	}
	return m, nil
}

// buildAdapter wires the backbone to the configured loss, metrics,
// optimizer and scheduler. totalSteps sizes schedules that need it.
func buildAdapter[B tensor.Backend](cfg config.Config, backbone *model.SequenceClassifier[B], totalSteps int) (*adapter.Adapter[B], error) {
	criterion, err := nn.NewLoss[B](cfg.Loss.Name, float32(cfg.Loss.HuberDelta))
	if err != nil {
		return nil, err
	}
	ms, err := metrics.Resolve(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	factory, err := optim.NewFactory[B](cfg.OptimizerSettings())
	if err != nil {
		return nil, err
	}

	opts := []adapter.Option{adapter.WithHyperparameters(cfg.Hyperparameters())}
	schedFactory, interval, err := optim.NewSchedulerFactory(cfg.SchedulerSettings(totalSteps))
	if err != nil {
		return nil, err
	}
	if schedFactory != nil {
		opts = append(opts, adapter.WithScheduler(schedFactory, interval))
	}
	return adapter.New[B](backbone, criterion, ms, factory, opts...)
}

// loadTokenizer opens the configured tokenizer. With no explicit path,
// a checkpoint directory carrying tokenizer files is used.
func loadTokenizer(cfg config.Config, modelCfg model.Config, log logger.Logger) (tokenizer.Tokenizer, error) {
	kind, path := cfg.Data.Tokenizer.Kind, cfg.Data.Tokenizer.Path
	if path == "" && (kind == "" || kind == "auto") {
		for _, name := range []string{"tokenizer.json", "vocab.json"} {
			if _, err := os.Stat(filepath.Join(cfg.Model.Checkpoint, name)); err == nil {
				path = cfg.Model.Checkpoint
				break
			}
		}
	}

	tok, err := tokenizer.Load(kind, path)
	if err != nil {
		return nil, err
	}
	if tok.VocabSize() > modelCfg.VocabSize {
		return nil, fmt.Errorf("tokenizer vocabulary (%d) exceeds the model's vocab_size (%d)", tok.VocabSize(), modelCfg.VocabSize)
	}
	log.Info("tokenizer loaded", "kind", fmt.Sprintf("%T", tok), "path", path, "vocab", tok.VocabSize())
	return tok, nil
}

// splitReader turns CSV files into loaders for one model.
type splitReader[B tensor.Backend] struct {
	cfg       config.Config
	tok       tokenizer.Tokenizer
	backend   B
	maxLength int
	log       logger.Logger
}

func newSplitReader[B tensor.Backend](cfg config.Config, tok tokenizer.Tokenizer, backend B, modelCfg model.Config, log logger.Logger) splitReader[B] {
	return splitReader[B]{
		cfg:       cfg,
		tok:       tok,
		backend:   backend,
		maxLength: min(cfg.Data.MaxLength, modelCfg.MaxSequenceLength()),
		log:       log,
	}
}

// load reads a split. A nil loader is returned for an empty path.
func (r splitReader[B]) load(path string, shuffle, requireLabel bool) (*data.Loader[B], error) {
	if path == "" {
		return nil, nil
	}
	examples, err := r.read(path, requireLabel)
	if err != nil {
		return nil, err
	}
	return r.loader(path, examples, shuffle)
}

func (r splitReader[B]) read(path string, requireLabel bool) ([]data.Example, error) {
	return data.LoadCSV(path, data.CSVOptions{
		Sentence1Column: r.cfg.Data.Sentence1Column,
		Sentence2Column: r.cfg.Data.Sentence2Column,
		LabelColumn:     r.cfg.Data.LabelColumn,
		Delimiter:       []rune(r.cfg.Data.Delimiter)[0],
		LabelScale:      r.cfg.Data.LabelScale,
		RequireLabel:    requireLabel,
	})
}

func (r splitReader[B]) loader(path string, examples []data.Example, shuffle bool) (*data.Loader[B], error) {
	loader, err := data.NewLoader(examples, r.tok, r.backend, data.LoaderOptions{
		BatchSize: r.cfg.Data.BatchSize,
		MaxLength: r.maxLength,
		Shuffle:   shuffle,
		Seed:      r.cfg.Model.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.log.Info("split loaded",
		"path", path,
		"examples", loader.NumExamples(),
		"batches", loader.Len(),
		"truncated", loader.Truncated,
	)
	return loader, nil
}

func trainerConfig(cfg config.Config) trainer.Config {
	t := cfg.Trainer
	return trainer.Config{
		MaxEpochs:        t.MaxEpochs,
		MaxSteps:         t.MaxSteps,
		GradClipNorm:     t.GradClipNorm,
		ValCheckInterval: t.ValCheckInterval,
		Monitor:          t.Monitor,
		Mode:             trainer.Mode(t.Mode),
		Patience:         t.Patience,
		CheckpointDir:    t.CheckpointDir,
		LogEvery:         t.LogEvery,
	}
}
