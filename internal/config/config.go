// Package config loads the YAML run configuration shared by the train,
// evaluate, predict and serve commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/seqreg/internal/metrics"
	"github.com/born-ml/seqreg/internal/optim"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config is the root of a run configuration file.
type Config struct {
	Model     Model     `yaml:"model"`
	Data      Data      `yaml:"data"`
	Optimizer Optimizer `yaml:"optimizer"`
	Scheduler Scheduler `yaml:"scheduler"`
	Trainer   Trainer   `yaml:"trainer"`
	Loss      Loss      `yaml:"loss"`
	Metrics   []string  `yaml:"metrics"`
	Server    Server    `yaml:"server"`
	Log       Log       `yaml:"log"`
}

// Model selects the backbone.
type Model struct {
	// Checkpoint is a directory with config.json or a preset name.
	Checkpoint string `yaml:"checkpoint"`
	Seed       uint64 `yaml:"seed"`
	// Dropout overrides every dropout probability of the backbone when set.
	Dropout *float64 `yaml:"dropout,omitempty"`
}

// Data describes the CSV splits and how they are batched.
type Data struct {
	Train   string `yaml:"train"`
	Val     string `yaml:"val"`
	Test    string `yaml:"test"`
	Predict string `yaml:"predict"`

	Sentence1Column string  `yaml:"sentence1_column"`
	Sentence2Column string  `yaml:"sentence2_column"`
	LabelColumn     string  `yaml:"label_column"`
	Delimiter       string  `yaml:"delimiter"`
	LabelScale      float64 `yaml:"label_scale"`

	BatchSize int  `yaml:"batch_size"`
	MaxLength int  `yaml:"max_length"`
	Shuffle   bool `yaml:"shuffle"`

	Tokenizer Tokenizer `yaml:"tokenizer"`
}

// Tokenizer selects how text is turned into ids.
type Tokenizer struct {
	// Kind is auto, bpe, hf, tiktoken or byte.
	Kind string `yaml:"kind"`
	// Path is a tokenizer.json file or its directory. For tiktoken it is
	// an encoding or model name.
	Path string `yaml:"path"`
}

// Optimizer configures the optimizer factory.
type Optimizer struct {
	Name        string     `yaml:"name"`
	LR          float32    `yaml:"lr"`
	Momentum    float32    `yaml:"momentum"`
	Nesterov    bool       `yaml:"nesterov"`
	WeightDecay float32    `yaml:"weight_decay"`
	Betas       [2]float32 `yaml:"betas"`
	Eps         float32    `yaml:"eps"`
}

// Scheduler configures the optional learning rate schedule.
type Scheduler struct {
	Name        string  `yaml:"name"`
	Interval    string  `yaml:"interval"`
	StepSize    int     `yaml:"step_size"`
	Gamma       float64 `yaml:"gamma"`
	WarmupSteps int     `yaml:"warmup_steps"`
	WarmupRatio float64 `yaml:"warmup_ratio"`
	// TotalSteps of zero is filled in from the training set size.
	TotalSteps int     `yaml:"total_steps"`
	MinLR      float32 `yaml:"min_lr"`
}

// Trainer configures the fit loop.
type Trainer struct {
	MaxEpochs        int     `yaml:"max_epochs"`
	MaxSteps         int     `yaml:"max_steps"`
	GradClipNorm     float64 `yaml:"grad_clip_norm"`
	ValCheckInterval int     `yaml:"val_check_interval"`
	Monitor          string  `yaml:"monitor"`
	Mode             string  `yaml:"mode"`
	Patience         int     `yaml:"patience"`
	CheckpointDir    string  `yaml:"checkpoint_dir"`
	LogEvery         int     `yaml:"log_every"`
}

// Loss selects the criterion.
type Loss struct {
	Name       string  `yaml:"name"`
	HuberDelta float64 `yaml:"huber_delta"`
}

// Server configures the HTTP API.
type Server struct {
	Address string `yaml:"address"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Model: Model{Checkpoint: "roberta-tiny", Seed: 42},
		Data: Data{
			Sentence1Column: "sentence1",
			Sentence2Column: "sentence2",
			LabelColumn:     "score",
			Delimiter:       ",",
			LabelScale:      1,
			BatchSize:       16,
			MaxLength:       128,
			Shuffle:         true,
			Tokenizer:       Tokenizer{Kind: "auto"},
		},
		Optimizer: Optimizer{
			Name:        "adamw",
			LR:          1e-5,
			WeightDecay: 0.01,
			Betas:       [2]float32{0.9, 0.999},
			Eps:         1e-8,
		},
		Scheduler: Scheduler{Interval: string(optim.IntervalStep)},
		Trainer: Trainer{
			MaxEpochs:        1,
			GradClipNorm:     1.0,
			ValCheckInterval: 1,
			Monitor:          "val_loss",
			Mode:             "min",
			CheckpointDir:    "checkpoints",
			LogEvery:         50,
		},
		Loss:    Loss{Name: "l1", HuberDelta: 1.0},
		Metrics: []string{"pearson"},
		Server:  Server{Address: ":8080"},
		Log:     Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. Keys absent from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns the defaults when path is empty.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Save writes cfg as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate returns the first problem found.
func (c Config) Validate() error {
	switch {
	case c.Model.Checkpoint == "":
		return invalid("model.checkpoint is required")
	case c.Model.Dropout != nil && (*c.Model.Dropout < 0 || *c.Model.Dropout >= 1):
		return invalid("model.dropout must be in [0, 1)")
	case c.Data.BatchSize <= 0:
		return invalid("data.batch_size must be positive")
	case c.Data.MaxLength < 4:
		return invalid("data.max_length must be at least 4")
	case len([]rune(c.Data.Delimiter)) != 1:
		return invalid("data.delimiter must be a single character")
	case c.Data.LabelScale == 0:
		return invalid("data.label_scale must be non-zero")
	case c.Optimizer.LR <= 0:
		return invalid("optimizer.lr must be positive")
	case c.Optimizer.Nesterov && c.Optimizer.Momentum <= 0:
		return invalid("optimizer.nesterov requires momentum")
	case c.Trainer.MaxEpochs <= 0 && c.Trainer.MaxSteps <= 0:
		return invalid("trainer needs max_epochs or max_steps")
	case c.Trainer.GradClipNorm < 0:
		return invalid("trainer.grad_clip_norm must not be negative")
	case c.Trainer.Mode != "min" && c.Trainer.Mode != "max":
		return invalid("trainer.mode must be min or max")
	case c.Trainer.Patience < 0:
		return invalid("trainer.patience must not be negative")
	}

	switch strings.ToLower(c.Data.Tokenizer.Kind) {
	case "", "auto", "bpe", "hf", "tiktoken", "byte":
	default:
		return invalid("data.tokenizer.kind %q is not one of auto, bpe, hf, tiktoken, byte", c.Data.Tokenizer.Kind)
	}
	switch strings.ToLower(c.Optimizer.Name) {
	case "", "sgd", "adam", "adamw":
	default:
		return invalid("optimizer.name %q is not one of sgd, adam, adamw", c.Optimizer.Name)
	}
	if _, err := optim.ParseInterval(c.Scheduler.Interval); err != nil {
		return invalid("scheduler.interval: %v", err)
	}
	switch strings.ToLower(c.Loss.Name) {
	case "", "mse", "l1", "mae", "huber", "smooth_l1":
	default:
		return invalid("loss.name %q is not one of mse, l1, huber", c.Loss.Name)
	}
	if _, err := metrics.Resolve(c.Metrics); err != nil {
		return invalid("metrics: %v", err)
	}
	return nil
}

// OptimizerSettings maps the optimizer section onto optim.Settings.
func (c Config) OptimizerSettings() optim.Settings {
	o := c.Optimizer
	return optim.Settings{
		Name:        o.Name,
		LR:          o.LR,
		Momentum:    o.Momentum,
		Nesterov:    o.Nesterov,
		WeightDecay: o.WeightDecay,
		Betas:       o.Betas,
		Eps:         o.Eps,
	}
}

// SchedulerSettings maps the scheduler section onto optim settings.
// totalSteps is used when the file leaves total_steps unset.
func (c Config) SchedulerSettings(totalSteps int) optim.SchedulerSettings {
	s := c.Scheduler
	if s.TotalSteps == 0 {
		s.TotalSteps = totalSteps
	}
	return optim.SchedulerSettings{
		Name:        s.Name,
		Interval:    s.Interval,
		StepSize:    s.StepSize,
		Gamma:       s.Gamma,
		WarmupSteps: s.WarmupSteps,
		WarmupRatio: s.WarmupRatio,
		TotalSteps:  s.TotalSteps,
		MinLR:       s.MinLR,
	}
}

// Hyperparameters flattens the parts of the configuration that define a
// run into the map stored next to checkpoints.
func (c Config) Hyperparameters() map[string]any {
	hp := map[string]any{
		"checkpoint":     c.Model.Checkpoint,
		"seed":           c.Model.Seed,
		"batch_size":     c.Data.BatchSize,
		"max_length":     c.Data.MaxLength,
		"optimizer":      c.Optimizer.Name,
		"lr":             c.Optimizer.LR,
		"weight_decay":   c.Optimizer.WeightDecay,
		"loss":           c.Loss.Name,
		"metrics":        append([]string(nil), c.Metrics...),
		"max_epochs":     c.Trainer.MaxEpochs,
		"grad_clip_norm": c.Trainer.GradClipNorm,
	}
	if c.Model.Dropout != nil {
		hp["dropout"] = *c.Model.Dropout
	}
	if c.Scheduler.Name != "" {
		hp["scheduler"] = c.Scheduler.Name
		hp["scheduler_interval"] = c.Scheduler.Interval
	}
	return hp
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
