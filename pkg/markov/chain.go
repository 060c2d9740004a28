package markov

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
)

// Chain is the main entry point for the library. It owns the active model and
// publishes replacements atomically: Train, Load and Prune build a complete
// new Index and swap it in only when they succeed, while generation always
// reads a consistent snapshot without locking.
type Chain struct {
	order     int
	tokenizer Tokenizer
	src       rand.Source
	active    atomic.Pointer[activeModel]
	logger    *slog.Logger
}

// activeModel pairs an index with the generator reading it, so both are
// published in one store.
type activeModel struct {
	index *Index
	gen   *Generator
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithOrder sets the number of tokens per gram used when training.
// Default: DefaultOrder
func WithOrder(n int) ChainOption {
	return func(c *Chain) { c.order = n }
}

// WithTokenizer sets the tokenizer used for training and seed matching.
// Default: NewDefaultTokenizer()
func WithTokenizer(t Tokenizer) ChainOption {
	return func(c *Chain) {
		if t != nil {
			c.tokenizer = t
		}
	}
}

// WithRandSource sets the random source used for sampling, which makes
// generation reproducible. Default: a randomly seeded PCG.
func WithRandSource(src rand.Source) ChainOption {
	return func(c *Chain) { c.src = src }
}

// NewChain creates a Chain with no model installed.
func NewChain(opts ...ChainOption) (*Chain, error) {
	c := &Chain{
		order:     DefaultOrder,
		tokenizer: NewDefaultTokenizer(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.order < 1 {
		return nil, ErrInvalidOrder
	}
	if c.src == nil {
		c.src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	// Every generator shares one guarded source so reproducibility survives
	// model swaps.
	c.src = &lockedSource{src: c.src}
	return c, nil
}

// SetLogger sets the logger for the Chain and the models it installs
// afterwards. By default, all logs are discarded.
func (c *Chain) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Order returns the order used for training new models.
func (c *Chain) Order() int {
	return c.order
}

// Index returns the active model, or nil if none has been installed. The
// returned index must be treated as read-only.
func (c *Chain) Index() *Index {
	if m := c.active.Load(); m != nil {
		return m.index
	}
	return nil
}

// Install publishes index as the active model.
func (c *Chain) Install(index *Index) {
	gen := NewGenerator(index, c.tokenizer, c.src)
	gen.SetLogger(c.logger)
	c.active.Store(&activeModel{index: index, gen: gen})
}

// Train builds a new model from sources and installs it. The previous model
// is replaced wholesale; it stays active if training fails.
func (c *Chain) Train(ctx context.Context, sources ...io.Reader) error {
	trainer, err := NewTrainer(c.order, c.tokenizer)
	if err != nil {
		return err
	}
	trainer.SetLogger(c.logger)
	index, err := trainer.Train(ctx, sources...)
	if err != nil {
		return err
	}
	c.Install(index)
	return nil
}

// Load reads a saved model from r and installs it. The model keeps the order
// it was trained with.
func (c *Chain) Load(ctx context.Context, r io.Reader) error {
	index, err := Load(r)
	if err != nil {
		return err
	}
	c.Install(index)
	c.logger.InfoContext(ctx, "Model loaded",
		slog.Int("order", index.Order()),
		slog.Int("keys", index.Len()),
		slog.Int("transitions", index.Transitions()),
	)
	return nil
}

// LoadFile is Load for a file path.
func (c *Chain) LoadFile(ctx context.Context, path string) error {
	index, err := LoadFile(path)
	if err != nil {
		return err
	}
	c.Install(index)
	c.logger.InfoContext(ctx, "Model loaded",
		slog.String("path", path),
		slog.Int("keys", index.Len()),
		slog.Int("transitions", index.Transitions()),
	)
	return nil
}

// Save writes the active model to w.
func (c *Chain) Save(w io.Writer) error {
	index := c.Index()
	if index == nil {
		return &PersistenceError{Op: "save", Kind: KindFormat, Err: ErrEmptyModel}
	}
	return Save(w, index)
}

// SaveFile atomically writes the active model to path.
func (c *Chain) SaveFile(path string) error {
	index := c.Index()
	if index == nil {
		return &PersistenceError{Op: "save", Kind: KindFormat, Err: ErrEmptyModel}
	}
	return SaveFile(path, index)
}

// Prune replaces the active model with a copy that only keeps transitions
// observed more than minFreq times.
func (c *Chain) Prune(ctx context.Context, minFreq int) error {
	index := c.Index()
	if index == nil {
		return ErrEmptyModel
	}
	pruned := Prune(index, minFreq)
	c.Install(pruned)
	c.logger.InfoContext(ctx, "Model pruned",
		slog.Int("min_frequency", minFreq),
		slog.Int("keys_removed", index.Len()-pruned.Len()),
		slog.Int("transitions_removed", index.Transitions()-pruned.Transitions()),
	)
	return nil
}

// Stats returns statistics for the active model.
func (c *Chain) Stats() (Stats, error) {
	index := c.Index()
	if index == nil {
		return Stats{}, ErrEmptyModel
	}
	return IndexStats(index), nil
}

// Generator returns a generator bound to the active model, or nil if no
// model is installed.
func (c *Chain) Generator() *Generator {
	if m := c.active.Load(); m != nil {
		return m.gen
	}
	return nil
}

// GenerateSeeded generates text from the active model anchored to seed. See
// Generator.GenerateSeeded.
func (c *Chain) GenerateSeeded(ctx context.Context, seed string, opts ...GenerateOption) (string, error) {
	gen := c.Generator()
	if gen == nil {
		return "", ErrEmptyModel
	}
	return gen.GenerateSeeded(ctx, seed, opts...)
}

// GenerateRandom generates text from a random starting point of the active
// model. See Generator.GenerateRandom.
func (c *Chain) GenerateRandom(ctx context.Context, opts ...GenerateOption) (string, error) {
	gen := c.Generator()
	if gen == nil {
		return "", ErrEmptyModel
	}
	return gen.GenerateRandom(ctx, opts...)
}
