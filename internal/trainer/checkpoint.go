package trainer

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/seqreg/internal/adapter"
	"github.com/born-ml/seqreg/internal/logger"
	"github.com/born-ml/seqreg/internal/observe"
)

// Checkpoint layout under Config.CheckpointDir/<run id>.
const (
	bestDir     = "best"
	lastDir     = "last"
	hparamsFile = "hparams.yaml"
	metricsFile = "metrics.jsonl"
	historyFile = "history.yaml"
)

type saver interface {
	SavePretrained(dir string) error
}

// runHeader is written to hparams.yaml when a run starts.
type runHeader struct {
	RunID           string         `yaml:"run_id"`
	Hyperparameters map[string]any `yaml:"hyperparameters,omitempty"`
	Trainer         Config         `yaml:"trainer"`
}

// checkpoints owns a run directory. The zero value is a no-op store for
// runs without a checkpoint directory.
type checkpoints struct {
	dir      string
	backbone saver
	file     *os.File
	lines    *observe.JSONLines
	history  []EpochSummary
	log      logger.Logger
}

func (t *Trainer[B]) openCheckpoints(a *adapter.Adapter[B]) (*checkpoints, error) {
	if t.cfg.CheckpointDir == "" {
		return &checkpoints{}, nil
	}

	dir := filepath.Join(t.cfg.CheckpointDir, t.runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("trainer: create run directory: %w", err)
	}

	header, err := yaml.Marshal(runHeader{RunID: t.runID, Hyperparameters: a.Hyperparameters(), Trainer: t.cfg})
	if err != nil {
		return nil, fmt.Errorf("trainer: marshal hyperparameters: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, hparamsFile), header, 0o644); err != nil {
		return nil, fmt.Errorf("trainer: write hyperparameters: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, metricsFile))
	if err != nil {
		return nil, fmt.Errorf("trainer: create metrics file: %w", err)
	}

	c := &checkpoints{
		dir:   dir,
		file:  f,
		lines: observe.NewJSONLines(f, t.runID),
		log:   t.log,
	}
	if s, ok := a.Backbone().(saver); ok {
		c.backbone = s
	} else {
		t.log.Warn("backbone cannot be saved; only metrics are written", "dir", dir)
	}
	t.log.Info("checkpointing", "dir", dir)
	return c, nil
}

func (c *checkpoints) jsonl() *observe.JSONLines {
	return c.lines
}

func (c *checkpoints) position(epoch, step int) {
	if c.lines != nil {
		c.lines.SetPosition(epoch, step)
	}
}

// summary appends the epoch means to metrics.jsonl and history.yaml.
func (c *checkpoints) summary(s EpochSummary) {
	if c.dir == "" {
		return
	}
	c.lines.SetPosition(s.Epoch, s.Step)
	for _, name := range slices.Sorted(maps.Keys(s.Metrics)) {
		c.lines.LogSummary(name, s.Metrics[name], stageOf(name))
	}

	c.history = append(c.history, s)
	data, err := yaml.Marshal(c.history)
	if err == nil {
		err = os.WriteFile(filepath.Join(c.dir, historyFile), data, 0o644)
	}
	if err != nil {
		c.log.Warn("history not written", "error", err)
	}
}

// save writes the backbone into the named subdirectory.
func (c *checkpoints) save(name string) error {
	if c.dir == "" || c.backbone == nil {
		return nil
	}
	path := filepath.Join(c.dir, name)
	if err := c.backbone.SavePretrained(path); err != nil {
		return fmt.Errorf("trainer: save %s checkpoint: %w", name, err)
	}
	c.log.Debug("checkpoint saved", "path", path)
	return nil
}

func (c *checkpoints) err() error {
	if c.lines == nil {
		return nil
	}
	return c.lines.Err()
}

func (c *checkpoints) close() {
	if c.file == nil {
		return
	}
	if err := errors.Join(c.file.Sync(), c.file.Close()); err != nil {
		c.log.Warn("metrics file not closed cleanly", "error", err)
	}
}

func stageOf(name string) adapter.Stage {
	for _, stage := range []adapter.Stage{adapter.StageTrain, adapter.StageValidate, adapter.StageTest} {
		if strings.HasPrefix(name, string(stage)) {
			return stage
		}
	}
	return adapter.StageTrain
}
