package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/born-ml/seqreg/internal/nn"
	"github.com/born-ml/seqreg/internal/safetensors"
	"github.com/born-ml/seqreg/internal/tensor"
)

// Checkpoint file names inside a model directory.
const (
	ConfigFile  = "config.json"
	WeightsFile = "model.safetensors"
)

// Errors returned by FromPretrained.
var (
	ErrUnknownModel   = errors.New("unknown model")
	ErrMissingWeights = errors.New("missing encoder weights")
)

// LoadReport describes how checkpoint weights mapped onto the model.
type LoadReport struct {
	// Source is the directory or preset the model came from.
	Source string
	// Initialized lists weights left at their fresh initialization
	// (every weight when there is no checkpoint).
	Initialized []string
	// Unexpected lists checkpoint tensors the model does not use.
	Unexpected []string
	// Skipped counts tensors dropped by name (LM head, pooler).
	Skipped int
}

// FromPretrained builds a regression classifier from identifier, which is
// a directory holding config.json (and optionally model.safetensors) or
// a preset name from PresetNames.
//
// num_labels is forced to 1 unless WithNumLabels says otherwise. Missing
// classifier weights are freshly initialized; missing encoder weights and
// shape mismatches are errors.
func FromPretrained[B tensor.Backend](identifier string, backend B, opts ...Option) (*SequenceClassifier[B], *LoadReport, error) {
	cfg, dir, err := resolve(identifier)
	if err != nil {
		return nil, nil, err
	}
	cfg.NumLabels = 1
	cfg.Architectures = []string{"RobertaForSequenceClassification"}

	m, err := New(cfg, backend, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", identifier, err)
	}

	report := &LoadReport{Source: identifier}
	weights := filepath.Join(dir, WeightsFile)
	if dir == "" || !exists(weights) {
		for _, np := range m.NamedParameters() {
			report.Initialized = append(report.Initialized, np.Name)
		}
		return m, report, nil
	}

	if err := m.loadWeights(weights, report); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", identifier, err)
	}
	return m, report, nil
}

func resolve(identifier string) (Config, string, error) {
	if info, err := os.Stat(identifier); err == nil && info.IsDir() {
		cfg, err := LoadConfig(filepath.Join(identifier, ConfigFile))
		if err != nil {
			return Config{}, "", err
		}
		return cfg, identifier, nil
	}
	if cfg, ok := Preset(identifier); ok {
		return cfg, "", nil
	}
	return Config{}, "", fmt.Errorf("%w: %q is neither a model directory nor a preset (%s)",
		ErrUnknownModel, identifier, strings.Join(PresetNames(), ", "))
}

func (m *SequenceClassifier[B]) loadWeights(path string, report *LoadReport) error {
	tensors, _, err := safetensors.ReadFile(path)
	if err != nil {
		return err
	}

	state := make(map[string]*tensor.RawTensor, len(tensors))
	for name, raw := range tensors {
		mapped, ok := checkpointName(name)
		if !ok {
			report.Skipped++
			continue
		}
		state[mapped] = raw
	}

	named := m.NamedParameters()
	missing, err := nn.LoadStateDict(named, state)
	if err != nil {
		return err
	}

	var encoderMissing []string
	for _, name := range missing {
		if !strings.HasPrefix(name, "classifier.") {
			encoderMissing = append(encoderMissing, name)
		}
	}
	if len(encoderMissing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingWeights, strings.Join(encoderMissing, ", "))
	}
	report.Initialized = missing

	known := make(map[string]bool, len(named))
	for _, np := range named {
		known[np.Name] = true
	}
	for name := range state {
		if !known[name] {
			report.Unexpected = append(report.Unexpected, name)
		}
	}
	sort.Strings(report.Unexpected)
	return nil
}

// SavePretrained writes config.json and model.safetensors into dir,
// creating it if needed. The result loads back with FromPretrained.
func (m *SequenceClassifier[B]) SavePretrained(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	cfg := m.config
	cfg.Architectures = []string{"RobertaForSequenceClassification"}
	if err := cfg.Save(filepath.Join(dir, ConfigFile)); err != nil {
		return err
	}
	return safetensors.WriteFile(filepath.Join(dir, WeightsFile), m.StateDict(), map[string]string{"format": "pt"})
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
