package markov

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
)

// DefaultWordLimit is the word budget used when WithWordLimit is not given.
const DefaultWordLimit = 15

// generateOptions Is used by the generate functions to configure default options.
type generateOptions struct {
	wordLimit   int
	includeSeed bool
}

// GenerateOption is a function that configures generation parameters. It's used
// as a variadic argument in generation functions like GenerateSeeded and GenerateStream.
type GenerateOption func(*generateOptions)

// WithWordLimit sets the approximate maximum number of words to generate.
// Generation stops before sampling another gram once the emitted grams hold
// at least n words, so the output never exceeds n rounded up to a multiple of
// the model order. The first gram is always emitted, even when n is smaller
// than the order.
func WithWordLimit(n int) GenerateOption {
	return func(o *generateOptions) { o.wordLimit = n }
}

// WithIncludeSeed controls whether seeded output begins with the matched seed
// gram itself (true) or with a successor sampled from it (false).
func WithIncludeSeed(include bool) GenerateOption {
	return func(o *generateOptions) { o.includeSeed = include }
}

func newGenerateOptions(opts []GenerateOption) *generateOptions {
	options := &generateOptions{
		wordLimit:   DefaultWordLimit,
		includeSeed: true,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// lockedSource makes a rand.Source safe for concurrent use. A *rand.Rand from
// math/rand/v2 keeps all of its state in the source, so wrapping the source is
// enough to share one Rand between goroutines.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

// NewSource returns a deterministic PCG source, convenient for reproducible
// generation in tests and tools.
func NewSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// Generator walks an Index to produce text. It never mutates the index, so
// one Generator may serve concurrent requests.
type Generator struct {
	index     *Index
	tokenizer Tokenizer
	rng       *rand.Rand
	logger    *slog.Logger
}

// NewGenerator creates a Generator reading from index. A nil tokenizer selects
// the DefaultTokenizer, and a nil src selects a randomly seeded source.
func NewGenerator(index *Index, tokenizer Tokenizer, src rand.Source) *Generator {
	if tokenizer == nil {
		tokenizer = NewDefaultTokenizer()
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{
		index:     index,
		tokenizer: tokenizer,
		rng:       rand.New(&lockedSource{src: src}),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger for the Generator. By default, all logs are discarded.
func (g *Generator) SetLogger(logger *slog.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// MatchingGrams slides an order-wide window across the tokens of seed and
// returns every window that exists as a key, in the order found. Repeated
// windows are returned each time they occur.
func (g *Generator) MatchingGrams(seed string) []string {
	if g.index == nil {
		return nil
	}
	tokens := g.tokenizer.Split(seed)
	order := g.index.order
	var matches []string
	for i := 0; i+order <= len(tokens); i++ {
		key := strings.Join(tokens[i:i+order], gramSeparator)
		if g.index.Contains(key) {
			matches = append(matches, key)
		}
	}
	return matches
}

// GenerateSeeded generates text anchored to a gram found in seed. One of the
// seed's matching grams is picked uniformly at random; the output then starts
// with that gram (or with one of its successors, see WithIncludeSeed) and
// follows the chain until a dead end or the word limit is reached.
//
// If no gram of seed exists in the model, a *ModelMatchError carrying seed is
// returned. This includes a trained model that holds no keys at all.
func (g *Generator) GenerateSeeded(ctx context.Context, seed string, opts ...GenerateOption) (string, error) {
	options := newGenerateOptions(opts)
	first, err := g.start(seed, options)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	count := g.walk(ctx, first, options, func(gram string) bool {
		if builder.Len() > 0 {
			builder.WriteString(gramSeparator)
		}
		builder.WriteString(gram)
		return true
	})

	g.logger.DebugContext(ctx, "Generation finished",
		slog.String("seed", seed),
		slog.Int("word_limit", options.wordLimit),
		slog.Int("grams_generated", count),
	)
	return builder.String(), nil
}

// GenerateRandom generates text starting from a key chosen uniformly at random
// from the model. It behaves like GenerateSeeded with that key as the seed and
// the seed included in the output, and so never returns a *ModelMatchError.
// An empty model yields ErrEmptyModel.
func (g *Generator) GenerateRandom(ctx context.Context, opts ...GenerateOption) (string, error) {
	seed, err := g.randomKey()
	if err != nil {
		return "", err
	}
	return g.GenerateSeeded(ctx, seed, withSeedIncluded(opts)...)
}

// start selects the anchor gram for seed and returns the first gram to emit.
func (g *Generator) start(seed string, options *generateOptions) (string, error) {
	if g.index == nil {
		return "", ErrEmptyModel
	}
	matches := g.MatchingGrams(seed)
	if len(matches) == 0 {
		return "", &ModelMatchError{Seed: seed}
	}
	anchor := matches[g.rng.IntN(len(matches))]
	if options.includeSeed {
		return anchor, nil
	}
	successors := g.index.grams[anchor]
	return successors[g.rng.IntN(len(successors))], nil
}

// walk emits first, then keeps sampling successors while the current gram is
// a key and the emitted words are still under the limit. It returns the number
// of grams emitted. emit returning false stops the walk.
func (g *Generator) walk(ctx context.Context, first string, options *generateOptions, emit func(string) bool) int {
	order := g.index.order
	current := first
	emitted := 1
	if !emit(current) {
		return emitted
	}
	for {
		successors, ok := g.index.grams[current]
		if !ok {
			g.logger.DebugContext(ctx, "Generation terminated due to dead-end",
				slog.String("last_gram", current),
				slog.Int("grams_generated", emitted),
			)
			return emitted
		}
		if emitted*order >= options.wordLimit {
			return emitted
		}
		current = successors[g.rng.IntN(len(successors))]
		emitted++
		if !emit(current) {
			return emitted
		}
	}
}

func (g *Generator) randomKey() (string, error) {
	if g.index == nil || g.index.Len() == 0 {
		return "", ErrEmptyModel
	}
	return g.index.keys[g.rng.IntN(len(g.index.keys))], nil
}

// withSeedIncluded returns opts with the seed forced into the output, without
// modifying the caller's slice.
func withSeedIncluded(opts []GenerateOption) []GenerateOption {
	out := make([]GenerateOption, 0, len(opts)+1)
	out = append(out, opts...)
	return append(out, WithIncludeSeed(true))
}
