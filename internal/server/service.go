package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/born-ml/seqreg/internal/adapter"
	"github.com/born-ml/seqreg/internal/data"
	"github.com/born-ml/seqreg/internal/tensor"
	"github.com/born-ml/seqreg/internal/tokenizer"
)

// Pair is one sentence pair to score.
type Pair struct {
	Sentence1 string `json:"sentence1"`
	Sentence2 string `json:"sentence2,omitempty"`
}

// Predictor scores sentence pairs.
type Predictor interface {
	Predict(ctx context.Context, pairs []Pair) ([]float32, error)
}

// Service runs an adapter in evaluation mode behind a mutex, so one
// forward pass runs at a time.
type Service[B tensor.Backend] struct {
	mu        sync.Mutex
	adapter   *adapter.Adapter[B]
	tok       tokenizer.Tokenizer
	backend   B
	batchSize int
	maxLength int
	scale     float32
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	scale float64
}

// WithLabelScale multiplies every score by scale, undoing the division
// applied to labels when the model was trained.
func WithLabelScale(scale float64) ServiceOption {
	return func(o *serviceOptions) { o.scale = scale }
}

// NewService prepares a for inference. The backend should not record
// gradients.
func NewService[B tensor.Backend](a *adapter.Adapter[B], tok tokenizer.Tokenizer, backend B, batchSize, maxLength int, opts ...ServiceOption) *Service[B] {
	o := serviceOptions{scale: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.scale == 0 {
		o.scale = 1
	}
	a.SetTraining(false)
	return &Service[B]{
		adapter:   a,
		tok:       tok,
		backend:   backend,
		batchSize: max(batchSize, 1),
		maxLength: maxLength,
		scale:     float32(o.scale),
	}
}

// Predict returns one score per pair, in order.
func (s *Service[B]) Predict(ctx context.Context, pairs []Pair) (scores []float32, err error) {
	examples := make([]data.Example, len(pairs))
	for i, p := range pairs {
		examples[i] = data.Example{First: p.Sentence1, Second: p.Sentence2}
	}
	loader, err := data.NewLoader(examples, s.tok, s.backend, data.LoaderOptions{
		BatchSize: s.batchSize,
		MaxLength: s.maxLength,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("predict: %v", r)
		}
	}()

	scores = make([]float32, 0, len(pairs))
	for idx, batch := range loader.Batches() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, v := range s.adapter.PredictStep(batch, idx).Data() {
			scores = append(scores, v*s.scale)
		}
	}
	return scores, nil
}
