package model

import (
	"maps"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/seqreg/internal/autodiff"
	"github.com/born-ml/seqreg/internal/backend/cpu"
	"github.com/born-ml/seqreg/internal/nn"
	"github.com/born-ml/seqreg/internal/safetensors"
	"github.com/born-ml/seqreg/internal/tensor"
)

func testConfig() Config {
	return Config{
		ModelType:             "roberta",
		VocabSize:             50,
		HiddenSize:            16,
		NumHiddenLayers:       2,
		NumAttentionHeads:     2,
		IntermediateSize:      32,
		HiddenAct:             "gelu",
		MaxPositionEmbeddings: 20,
		TypeVocabSize:         1,
		LayerNormEps:          1e-5,
		HiddenDropoutProb:     0.1,
		InitializerRange:      0.02,
		PadTokenID:            1,
		EOSTokenID:            2,
		NumLabels:             1,
	}
}

func newTestModel(t *testing.T, opts ...Option) *SequenceClassifier[*cpu.CPUBackend] {
	t.Helper()
	m, err := New(testConfig(), cpu.New(), opts...)
	require.NoError(t, err)
	return m
}

func ids(t *testing.T, shape tensor.Shape, values ...int32) *tensor.Tensor[int32, *cpu.CPUBackend] {
	t.Helper()
	out, err := tensor.FromSlice(values, shape, cpu.New())
	require.NoError(t, err)
	return out
}

func TestForwardShape(t *testing.T) {
	m := newTestModel(t)
	out := m.Forward(&Input[*cpu.CPUBackend]{
		InputIDs: ids(t, tensor.Shape{3, 4}, 0, 5, 6, 2, 0, 7, 2, 1, 0, 8, 9, 2),
	})
	assert.Equal(t, tensor.Shape{3, 1}, out.Logits.Shape())
}

func TestForwardRejectsBadInput(t *testing.T) {
	m := newTestModel(t)
	assert.Panics(t, func() {
		m.Forward(&Input[*cpu.CPUBackend]{InputIDs: ids(t, tensor.Shape{4}, 0, 5, 6, 2)})
	})

	long := make([]int32, 19)
	assert.Panics(t, func() {
		m.Forward(&Input[*cpu.CPUBackend]{InputIDs: ids(t, tensor.Shape{1, 19}, long...)})
	}, "18 positions fit after the padding offset")

	assert.Panics(t, func() {
		m.Forward(&Input[*cpu.CPUBackend]{
			InputIDs:      ids(t, tensor.Shape{1, 2}, 0, 2),
			AttentionMask: ids(t, tensor.Shape{1, 3}, 1, 1, 0),
		})
	})
}

// Appending padding under a zero mask must not change the logits.
func TestPaddingInvariance(t *testing.T) {
	m := newTestModel(t)

	short := m.Forward(&Input[*cpu.CPUBackend]{
		InputIDs: ids(t, tensor.Shape{1, 4}, 0, 5, 6, 2),
	}).Logits.Item()

	padded := m.Forward(&Input[*cpu.CPUBackend]{
		InputIDs:      ids(t, tensor.Shape{1, 6}, 0, 5, 6, 2, 1, 1),
		AttentionMask: ids(t, tensor.Shape{1, 6}, 1, 1, 1, 1, 0, 0),
	}).Logits.Item()

	assert.InDelta(t, short, padded, 1e-5)
}

func TestPositionIDs(t *testing.T) {
	got := positionIDs(ids(t, tensor.Shape{2, 4}, 0, 5, 2, 1, 0, 2, 1, 1), 1)
	assert.Equal(t, []int32{2, 3, 4, 1, 2, 3, 1, 1}, got.Data())
}

func TestTrainingTogglesDropout(t *testing.T) {
	m := newTestModel(t, WithDropout(0.5))
	input := &Input[*cpu.CPUBackend]{InputIDs: ids(t, tensor.Shape{1, 4}, 0, 5, 6, 2)}

	assert.False(t, m.Training())
	a := m.Forward(input).Logits.Item()
	b := m.Forward(input).Logits.Item()
	assert.Equal(t, a, b, "evaluation mode is deterministic")

	m.SetTraining(true)
	assert.True(t, m.Training())
	c := m.Forward(input).Logits.Item()
	d := m.Forward(input).Logits.Item()
	assert.NotEqual(t, c, d)
}

func TestNamedParameters(t *testing.T) {
	m := newTestModel(t)
	named := m.NamedParameters()

	names := make([]string, len(named))
	for i, np := range named {
		names[i] = np.Name
	}
	assert.Len(t, names, 5+16*2+4)
	assert.Contains(t, names, "roberta.embeddings.word_embeddings.weight")
	assert.Contains(t, names, "roberta.embeddings.LayerNorm.bias")
	assert.Contains(t, names, "roberta.encoder.layer.1.attention.self.value.weight")
	assert.Contains(t, names, "roberta.encoder.layer.0.output.LayerNorm.weight")
	assert.Contains(t, names, "classifier.dense.weight")
	assert.Contains(t, names, "classifier.out_proj.bias")

	outProj := m.StateDict()["classifier.out_proj.weight"]
	assert.Equal(t, tensor.Shape{1, 16}, outProj.Shape())
	assert.Len(t, m.Parameters(), len(named))
}

func TestGradientsReachEveryParameter(t *testing.T) {
	backend := autodiff.New(cpu.New())
	m, err := New(testConfig(), backend)
	require.NoError(t, err)

	input, err := tensor.FromSlice([]int32{0, 5, 6, 2, 0, 7, 2, 1}, tensor.Shape{2, 4}, backend)
	require.NoError(t, err)
	mask, err := tensor.FromSlice([]int32{1, 1, 1, 1, 1, 1, 1, 0}, tensor.Shape{2, 4}, backend)
	require.NoError(t, err)
	target, err := tensor.FromSlice([]float32{1, -1}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	logits := m.Forward(&Input[*autodiff.AutodiffBackend[*cpu.CPUBackend]]{InputIDs: input, AttentionMask: mask}).Logits
	loss := nn.NewMSELoss[*autodiff.AutodiffBackend[*cpu.CPUBackend]]().Forward(logits, target)
	grads := autodiff.Backward(loss, backend)

	for _, np := range m.NamedParameters() {
		assert.Contains(t, grads, np.Param.Tensor().Raw(), np.Name)
	}
}

func TestSaveAndLoadPretrained(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoint")
	m := newTestModel(t, WithSeed(3))
	require.NoError(t, m.SavePretrained(dir))

	loaded, report, err := FromPretrained(dir, cpu.New(), WithSeed(99))
	require.NoError(t, err)
	assert.Empty(t, report.Initialized)
	assert.Empty(t, report.Unexpected)
	assert.Equal(t, []string{"RobertaForSequenceClassification"}, loaded.Config().Architectures)

	input := &Input[*cpu.CPUBackend]{InputIDs: ids(t, tensor.Shape{1, 4}, 0, 5, 6, 2)}
	assert.InDelta(t, m.Forward(input).Logits.Item(), loaded.Forward(input).Logits.Item(), 1e-6)
}

// writeCheckpoint saves m, then rewrites its weights through edit.
func writeCheckpoint(t *testing.T, m *SequenceClassifier[*cpu.CPUBackend], edit func(map[string]*tensor.RawTensor)) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, m.SavePretrained(dir))

	state := make(map[string]*tensor.RawTensor)
	for name, raw := range m.StateDict() {
		state[name] = raw
	}
	edit(state)
	require.NoError(t, safetensors.WriteFile(filepath.Join(dir, WeightsFile), state, nil))
	return dir
}

func TestLoadBaseCheckpointInitializesClassifier(t *testing.T) {
	m := newTestModel(t)
	dir := writeCheckpoint(t, m, func(state map[string]*tensor.RawTensor) {
		base := make(map[string]*tensor.RawTensor)
		for name, raw := range state {
			if strings.HasPrefix(name, "classifier.") {
				continue
			}
			// Base exports drop the "roberta." prefix.
			base[strings.TrimPrefix(name, "roberta.")] = raw
		}
		clear(state)
		maps.Copy(state, base)
		state["lm_head.dense.weight"] = tensor.MustNewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU)
		state["roberta.pooler.dense.bias"] = tensor.MustNewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU)
		state["extra.weight"] = tensor.MustNewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU)
	})

	loaded, report, err := FromPretrained(dir, cpu.New())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"classifier.dense.weight", "classifier.dense.bias",
		"classifier.out_proj.weight", "classifier.out_proj.bias",
	}, report.Initialized)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, []string{"extra.weight"}, report.Unexpected)

	want := m.StateDict()["roberta.encoder.layer.1.output.dense.weight"].AsFloat32()
	got := loaded.StateDict()["roberta.encoder.layer.1.output.dense.weight"].AsFloat32()
	assert.Equal(t, want, got)
}

func TestLoadErrors(t *testing.T) {
	m := newTestModel(t)

	missing := writeCheckpoint(t, m, func(state map[string]*tensor.RawTensor) {
		delete(state, "roberta.encoder.layer.0.attention.self.query.weight")
	})
	_, _, err := FromPretrained(missing, cpu.New())
	require.ErrorIs(t, err, ErrMissingWeights)
	assert.ErrorContains(t, err, "layer.0.attention.self.query.weight")

	mismatch := writeCheckpoint(t, m, func(state map[string]*tensor.RawTensor) {
		state["classifier.out_proj.weight"] = tensor.MustNewRaw(tensor.Shape{3, 16}, tensor.Float32, tensor.CPU)
	})
	_, _, err = FromPretrained(mismatch, cpu.New())
	require.ErrorIs(t, err, nn.ErrShapeMismatch)

	_, _, err = FromPretrained("no-such-model", cpu.New())
	require.ErrorIs(t, err, ErrUnknownModel)
}

func TestFromPreset(t *testing.T) {
	m, report, err := FromPretrained("roberta-tiny", cpu.New())
	require.NoError(t, err)
	assert.Equal(t, 1, m.Config().NumLabels)
	assert.Len(t, report.Initialized, len(m.NamedParameters()))
	assert.True(t, m.Ready())

	var unbuilt *SequenceClassifier[*cpu.CPUBackend]
	assert.False(t, unbuilt.Ready())
	assert.False(t, (&SequenceClassifier[*cpu.CPUBackend]{}).Ready())

	three, _, err := FromPretrained("roberta-tiny", cpu.New(), WithNumLabels(3))
	require.NoError(t, err)
	assert.Equal(t, 3, three.Config().NumLabels)

	assert.Equal(t, []string{"distilroberta-base", "roberta-base", "roberta-tiny"}, PresetNames())
}

func TestCheckpointName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"roberta.encoder.layer.0.output.dense.weight", "roberta.encoder.layer.0.output.dense.weight", true},
		{"embeddings.word_embeddings.weight", "roberta.embeddings.word_embeddings.weight", true},
		{"roberta.embeddings.LayerNorm.gamma", "roberta.embeddings.LayerNorm.weight", true},
		{"encoder.layer.3.attention.output.LayerNorm.beta", "roberta.encoder.layer.3.attention.output.LayerNorm.bias", true},
		{"classifier.out_proj.bias", "classifier.out_proj.bias", true},
		{"lm_head.decoder.weight", "", false},
		{"roberta.pooler.dense.weight", "", false},
		{"roberta.embeddings.position_ids", "", false},
	}
	for _, tt := range tests {
		got, ok := checkpointName(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"vocab", func(c *Config) { c.VocabSize = 0 }},
		{"heads", func(c *Config) { c.NumAttentionHeads = 3 }},
		{"positions", func(c *Config) { c.MaxPositionEmbeddings = 2 }},
		{"pad", func(c *Config) { c.PadTokenID = 50 }},
		{"labels", func(c *Config) { c.NumLabels = 0 }},
		{"activation", func(c *Config) { c.HiddenAct = "swish" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
	require.NoError(t, testConfig().Validate())
	assert.Equal(t, 18, testConfig().MaxSequenceLength())
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)
	want := testConfig()
	require.NoError(t, want.Save(path))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
