package data

import (
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"

	"github.com/born-ml/seqreg/internal/adapter"
	"github.com/born-ml/seqreg/internal/model"
	"github.com/born-ml/seqreg/internal/tensor"
	"github.com/born-ml/seqreg/internal/tokenizer"
)

// LoaderOptions configures batching.
type LoaderOptions struct {
	BatchSize int
	// MaxLength caps every framed sequence, special tokens included.
	MaxLength int
	Shuffle   bool
	Seed      uint64
	// DropLast skips a final batch smaller than BatchSize.
	DropLast bool
}

// Loader turns examples into padded batches. Sequences are encoded once
// up front and padded to the longest member of each batch.
type Loader[B tensor.Backend] struct {
	backend  B
	opts     LoaderOptions
	ids      [][]int32
	labels   []float64
	labelled bool
	pad      int32
	rng      *rand.Rand

	// Truncated counts examples that lost tokens to MaxLength.
	Truncated int
}

// NewLoader encodes examples with tok. Targets are attached only when
// every example has a label.
func NewLoader[B tensor.Backend](examples []Example, tok tokenizer.Tokenizer, backend B, opts LoaderOptions) (*Loader[B], error) {
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("data: batch size must be positive, got %d", opts.BatchSize)
	}
	if len(examples) == 0 {
		return nil, errors.New("data: no examples")
	}

	pad := tok.PadToken()
	if pad < 0 {
		pad = tok.EosToken()
	}
	if pad < 0 {
		return nil, tokenizer.ErrNoSpecialTokens
	}

	l := &Loader[B]{
		backend:  backend,
		opts:     opts,
		ids:      make([][]int32, len(examples)),
		labels:   make([]float64, len(examples)),
		labelled: true,
		pad:      pad,
		rng:      rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5851f42d4c957f2d)), //nolint:gosec // G404: shuffling
	}
	for i, ex := range examples {
		enc, err := tokenizer.EncodePair(tok, ex.First, ex.Second, opts.MaxLength)
		if err != nil {
			return nil, fmt.Errorf("data: example %d: %w", i, err)
		}
		if enc.Truncated {
			l.Truncated++
		}
		l.ids[i] = enc.IDs
		l.labels[i] = ex.Label
		l.labelled = l.labelled && ex.HasLabel
	}
	return l, nil
}

// NumExamples returns the dataset size.
func (l *Loader[B]) NumExamples() int {
	return len(l.ids)
}

// Len returns the number of batches per epoch.
func (l *Loader[B]) Len() int {
	n := len(l.ids) / l.opts.BatchSize
	if !l.opts.DropLast && len(l.ids)%l.opts.BatchSize != 0 {
		n++
	}
	return n
}

// Labelled reports whether batches carry targets.
func (l *Loader[B]) Labelled() bool {
	return l.labelled
}

// Batches yields one epoch of batches with their index. With Shuffle set,
// each call draws a new order from the seeded stream.
func (l *Loader[B]) Batches() iter.Seq2[int, *adapter.Batch[B]] {
	order := make([]int, len(l.ids))
	for i := range order {
		order[i] = i
	}
	if l.opts.Shuffle {
		l.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	return func(yield func(int, *adapter.Batch[B]) bool) {
		for idx := range l.Len() {
			start := idx * l.opts.BatchSize
			end := min(start+l.opts.BatchSize, len(order))
			if !yield(idx, l.collate(order[start:end])) {
				return
			}
		}
	}
}

func (l *Loader[B]) collate(rows []int) *adapter.Batch[B] {
	n := len(rows)
	width := 0
	for _, r := range rows {
		width = max(width, len(l.ids[r]))
	}

	ids := make([]int32, n*width)
	mask := make([]int32, n*width)
	for i, r := range rows {
		seq := l.ids[r]
		for j := range width {
			if j < len(seq) {
				ids[i*width+j] = seq[j]
				mask[i*width+j] = 1
			} else {
				ids[i*width+j] = l.pad
			}
		}
	}

	batch := &adapter.Batch[B]{
		Inputs: &model.Input[B]{
			InputIDs:      tensor.MustFromSlice(ids, tensor.Shape{n, width}, l.backend),
			AttentionMask: tensor.MustFromSlice(mask, tensor.Shape{n, width}, l.backend),
		},
	}
	if l.labelled {
		targets := make([]float64, n)
		for i, r := range rows {
			targets[i] = l.labels[r]
		}
		batch.Targets = tensor.MustFromSlice(targets, tensor.Shape{n}, l.backend)
	}
	return batch
}
