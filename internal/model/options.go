package model

type options struct {
	seed      uint64
	dropout   *float64
	numLabels int
}

// Option configures model construction.
type Option func(*options)

// WithSeed fixes the weight initialization and dropout streams.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = seed }
}

// WithDropout overrides hidden, attention and classifier dropout.
func WithDropout(p float64) Option {
	return func(o *options) { o.dropout = &p }
}

// WithNumLabels overrides num_labels. FromPretrained otherwise forces 1.
func WithNumLabels(n int) Option {
	return func(o *options) { o.numLabels = n }
}

func applyOptions(opts []Option) options {
	o := options{seed: 42}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) apply(cfg Config) Config {
	if o.numLabels > 0 {
		cfg.NumLabels = o.numLabels
	}
	if o.dropout != nil {
		p := *o.dropout
		cfg.HiddenDropoutProb = p
		cfg.AttentionProbsDropoutProb = p
		cfg.ClassifierDropout = &p
	}
	return cfg
}
