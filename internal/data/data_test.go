package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/seqreg/internal/adapter"
	"github.com/born-ml/seqreg/internal/backend/cpu"
	"github.com/born-ml/seqreg/internal/tokenizer"
)

const stsCSV = `id,sentence1,sentence2,score
1,a cat,a dog,4.0
2,"comma, inside",text,2.5
3,x,y,0
`

func TestReadCSV(t *testing.T) {
	opts := DefaultCSVOptions()
	opts.LabelScale = 5

	examples, err := ReadCSV(strings.NewReader(stsCSV), opts)
	require.NoError(t, err)
	require.Len(t, examples, 3)

	assert.Equal(t, Example{First: "a cat", Second: "a dog", Label: 0.8, HasLabel: true}, examples[0])
	assert.Equal(t, "comma, inside", examples[1].First)
	assert.InDelta(t, 0.5, examples[1].Label, 1e-12)
}

func TestReadCSVOptions(t *testing.T) {
	content := "text\tlabel\nhello\t1.5\nworld\t2\n"
	opts := CSVOptions{Sentence1Column: "text", LabelColumn: "label", Delimiter: '\t', MaxRows: 1}

	examples, err := ReadCSV(strings.NewReader(content), opts)
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, Example{First: "hello", Label: 1.5, HasLabel: true}, examples[0])
}

func TestReadCSVWithoutLabels(t *testing.T) {
	content := "sentence1,sentence2\na,b\n"
	examples, err := ReadCSV(strings.NewReader(content), DefaultCSVOptions())
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.False(t, examples[0].HasLabel)

	opts := DefaultCSVOptions()
	opts.RequireLabel = true
	_, err = ReadCSV(strings.NewReader(content), opts)
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestReadCSVErrors(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"missing column": "sentence1,score\na,1\n",
		"bad label":      "sentence1,sentence2,score\na,b,high\n",
		"short row":      "sentence1,sentence2,score\na,b\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(content), DefaultCSVOptions())
			assert.Error(t, err)
		})
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.csv")
	require.NoError(t, os.WriteFile(path, []byte(stsCSV), 0o600))

	examples, err := LoadCSV(path, DefaultCSVOptions())
	require.NoError(t, err)
	assert.Len(t, examples, 3)

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), DefaultCSVOptions())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoaderBatches(t *testing.T) {
	examples := []Example{
		{First: "ab", Second: "c", Label: 1, HasLabel: true},
		{First: "a", Second: "b", Label: 2, HasLabel: true},
		{First: "abcd", Second: "e", Label: 3, HasLabel: true},
	}
	loader, err := NewLoader(examples, tokenizer.NewByte(), cpu.New(), LoaderOptions{BatchSize: 2, MaxLength: 16})
	require.NoError(t, err)
	assert.Equal(t, 2, loader.Len())
	assert.Equal(t, 3, loader.NumExamples())
	assert.True(t, loader.Labelled())

	var sizes []int
	for idx, batch := range loader.Batches() {
		assert.Equal(t, len(sizes), idx)
		sizes = append(sizes, batch.Size())

		ids := batch.Inputs.InputIDs
		mask := batch.Inputs.AttentionMask
		assert.Equal(t, ids.Shape(), mask.Shape())
		require.NotNil(t, batch.Targets)
		assert.Equal(t, batch.Size(), batch.Targets.Shape()[0])
	}
	assert.Equal(t, []int{2, 1}, sizes)

	batch := first(t, loader)
	// "ab"+"c" frames to 7 tokens, "a"+"b" to 6, so the second row ends
	// with one pad whose mask is 0.
	assert.Equal(t, 7, batch.Inputs.InputIDs.Shape()[1])
	mask := batch.Inputs.AttentionMask.Data()
	assert.Equal(t, []int32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0}, mask)
	ids := batch.Inputs.InputIDs.Data()
	assert.Equal(t, tokenizer.NewByte().PadToken(), ids[13])
	assert.Equal(t, []float64{1, 2}, batch.Targets.Data())
}

func first(t *testing.T, l *Loader[*cpu.CPUBackend]) *adapter.Batch[*cpu.CPUBackend] {
	t.Helper()
	for _, b := range l.Batches() {
		return b
	}
	t.Fatal("no batches")
	return nil
}

func TestLoaderShuffleIsSeeded(t *testing.T) {
	examples := make([]Example, 20)
	for i := range examples {
		examples[i] = Example{First: strings.Repeat("a", i+1), Label: float64(i), HasLabel: true}
	}
	order := func(seed uint64) [][]float64 {
		loader, err := NewLoader(examples, tokenizer.NewByte(), cpu.New(), LoaderOptions{BatchSize: 5, Shuffle: true, Seed: seed})
		require.NoError(t, err)
		var epochs [][]float64
		for range 2 {
			var labels []float64
			for _, b := range loader.Batches() {
				labels = append(labels, b.Targets.Data()...)
			}
			epochs = append(epochs, labels)
		}
		return epochs
	}

	a, b := order(1), order(1)
	assert.Equal(t, a, b, "same seed, same order")
	assert.NotEqual(t, a[0], a[1], "each epoch reshuffles")
	assert.ElementsMatch(t, a[0], a[1])
}

func TestLoaderDropLastAndTruncation(t *testing.T) {
	examples := []Example{
		{First: "abcdefgh", Second: "ijkl", HasLabel: true},
		{First: "a", HasLabel: true},
		{First: "b", HasLabel: true},
	}
	loader, err := NewLoader(examples, tokenizer.NewByte(), cpu.New(), LoaderOptions{BatchSize: 2, MaxLength: 8, DropLast: true})
	require.NoError(t, err)
	assert.Equal(t, 1, loader.Len())
	assert.Equal(t, 1, loader.Truncated)

	batch := first(t, loader)
	assert.Equal(t, 8, batch.Inputs.InputIDs.Shape()[1])
}

func TestLoaderUnlabelled(t *testing.T) {
	examples := []Example{{First: "a", HasLabel: true}, {First: "b"}}
	loader, err := NewLoader(examples, tokenizer.NewByte(), cpu.New(), LoaderOptions{BatchSize: 4})
	require.NoError(t, err)
	assert.False(t, loader.Labelled())
	assert.Nil(t, first(t, loader).Targets)
}

func TestLoaderErrors(t *testing.T) {
	_, err := NewLoader(nil, tokenizer.NewByte(), cpu.New(), LoaderOptions{BatchSize: 1})
	assert.Error(t, err)

	_, err = NewLoader([]Example{{First: "a"}}, tokenizer.NewByte(), cpu.New(), LoaderOptions{})
	assert.Error(t, err)

	_, err = NewLoader([]Example{{First: "a"}}, tokenizer.NewByte(), cpu.New(), LoaderOptions{BatchSize: 1, MaxLength: 2})
	assert.ErrorContains(t, err, "no room")
}
