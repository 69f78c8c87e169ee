package model

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-json"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid model config")

// Config is a RoBERTa configuration. Field names follow the Hugging Face
// config.json so checkpoint directories load unchanged.
type Config struct {
	ModelType                 string   `json:"model_type"`
	Architectures             []string `json:"architectures,omitempty"`
	VocabSize                 int      `json:"vocab_size"`
	HiddenSize                int      `json:"hidden_size"`
	NumHiddenLayers           int      `json:"num_hidden_layers"`
	NumAttentionHeads         int      `json:"num_attention_heads"`
	IntermediateSize          int      `json:"intermediate_size"`
	HiddenAct                 string   `json:"hidden_act"`
	MaxPositionEmbeddings     int      `json:"max_position_embeddings"`
	TypeVocabSize             int      `json:"type_vocab_size"`
	LayerNormEps              float64  `json:"layer_norm_eps"`
	HiddenDropoutProb         float64  `json:"hidden_dropout_prob"`
	AttentionProbsDropoutProb float64  `json:"attention_probs_dropout_prob"`
	ClassifierDropout         *float64 `json:"classifier_dropout,omitempty"`
	InitializerRange          float64  `json:"initializer_range"`
	PadTokenID                int      `json:"pad_token_id"`
	BOSTokenID                int      `json:"bos_token_id"`
	EOSTokenID                int      `json:"eos_token_id"`
	NumLabels                 int      `json:"num_labels"`
	ProblemType               string   `json:"problem_type,omitempty"`
}

// LoadConfig reads a config.json file.
func LoadConfig(path string) (Config, error) {
	//nolint:gosec // G304: model directories come from the user
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Config{
		HiddenAct:        "gelu",
		TypeVocabSize:    1,
		LayerNormEps:     1e-5,
		InitializerRange: 0.02,
		NumLabels:        1,
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as indented JSON.
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports the first inconsistency in the config.
func (c Config) Validate() error {
	switch {
	case c.VocabSize <= 0:
		return fmt.Errorf("%w: vocab_size must be positive", ErrInvalidConfig)
	case c.HiddenSize <= 0:
		return fmt.Errorf("%w: hidden_size must be positive", ErrInvalidConfig)
	case c.NumAttentionHeads <= 0 || c.HiddenSize%c.NumAttentionHeads != 0:
		return fmt.Errorf("%w: hidden_size %d not divisible by num_attention_heads %d",
			ErrInvalidConfig, c.HiddenSize, c.NumAttentionHeads)
	case c.NumHiddenLayers < 0:
		return fmt.Errorf("%w: num_hidden_layers must not be negative", ErrInvalidConfig)
	case c.IntermediateSize <= 0:
		return fmt.Errorf("%w: intermediate_size must be positive", ErrInvalidConfig)
	case c.MaxPositionEmbeddings <= c.PadTokenID+1:
		return fmt.Errorf("%w: max_position_embeddings %d leaves no room after pad offset %d",
			ErrInvalidConfig, c.MaxPositionEmbeddings, c.PadTokenID+1)
	case c.TypeVocabSize <= 0:
		return fmt.Errorf("%w: type_vocab_size must be positive", ErrInvalidConfig)
	case c.PadTokenID < 0 || c.PadTokenID >= c.VocabSize:
		return fmt.Errorf("%w: pad_token_id %d outside vocabulary", ErrInvalidConfig, c.PadTokenID)
	case c.NumLabels <= 0:
		return fmt.Errorf("%w: num_labels must be positive", ErrInvalidConfig)
	case c.HiddenAct != "" && c.HiddenAct != "gelu":
		return fmt.Errorf("%w: unsupported hidden_act %q", ErrInvalidConfig, c.HiddenAct)
	}
	return nil
}

// MaxSequenceLength is the longest input the position table can address.
func (c Config) MaxSequenceLength() int {
	return c.MaxPositionEmbeddings - c.PadTokenID - 1
}

func (c Config) classifierDropout() float64 {
	if c.ClassifierDropout != nil {
		return *c.ClassifierDropout
	}
	return c.HiddenDropoutProb
}

var presets = map[string]Config{
	"roberta-base": {
		ModelType:                 "roberta",
		VocabSize:                 50265,
		HiddenSize:                768,
		NumHiddenLayers:           12,
		NumAttentionHeads:         12,
		IntermediateSize:          3072,
		HiddenAct:                 "gelu",
		MaxPositionEmbeddings:     514,
		TypeVocabSize:             1,
		LayerNormEps:              1e-5,
		HiddenDropoutProb:         0.1,
		AttentionProbsDropoutProb: 0.1,
		InitializerRange:          0.02,
		PadTokenID:                1,
		BOSTokenID:                0,
		EOSTokenID:                2,
		NumLabels:                 1,
	},
	"distilroberta-base": {
		ModelType:                 "roberta",
		VocabSize:                 50265,
		HiddenSize:                768,
		NumHiddenLayers:           6,
		NumAttentionHeads:         12,
		IntermediateSize:          3072,
		HiddenAct:                 "gelu",
		MaxPositionEmbeddings:     514,
		TypeVocabSize:             1,
		LayerNormEps:              1e-5,
		HiddenDropoutProb:         0.1,
		AttentionProbsDropoutProb: 0.1,
		InitializerRange:          0.02,
		PadTokenID:                1,
		BOSTokenID:                0,
		EOSTokenID:                2,
		NumLabels:                 1,
	},
	"roberta-tiny": {
		ModelType:             "roberta",
		VocabSize:             1000,
		HiddenSize:            32,
		NumHiddenLayers:       2,
		NumAttentionHeads:     4,
		IntermediateSize:      64,
		HiddenAct:             "gelu",
		MaxPositionEmbeddings: 130,
		TypeVocabSize:         1,
		LayerNormEps:          1e-5,
		HiddenDropoutProb:     0.1,
		InitializerRange:      0.02,
		PadTokenID:            1,
		BOSTokenID:            0,
		EOSTokenID:            2,
		NumLabels:             1,
	},
}

// Preset returns a registered configuration by name.
func Preset(name string) (Config, bool) {
	cfg, ok := presets[name]
	return cfg, ok
}

// PresetNames lists registered presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
