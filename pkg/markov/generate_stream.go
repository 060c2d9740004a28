package markov

import (
	"context"
	"log/slog"
)

// GenerateStream runs the same walk as GenerateSeeded but delivers the output
// one gram at a time on a read-only channel. An empty seed starts from a
// random key, as GenerateRandom does. Seed matching happens before the channel
// is returned, so a *ModelMatchError is reported synchronously.
//
// The channel is closed once generation is complete or ctx is cancelled.
func (g *Generator) GenerateStream(ctx context.Context, seed string, opts ...GenerateOption) (<-chan Gram, error) {
	if seed == "" {
		key, err := g.randomKey()
		if err != nil {
			return nil, err
		}
		seed = key
		opts = withSeedIncluded(opts)
	}

	options := newGenerateOptions(opts)
	first, err := g.start(seed, options)
	if err != nil {
		return nil, err
	}

	gramChan := make(chan Gram)
	go func() {
		defer close(gramChan)
		count := g.walk(ctx, first, options, func(gram string) bool {
			select {
			case gramChan <- ParseGram(gram):
				return true
			case <-ctx.Done():
				return false
			}
		})
		if ctx.Err() != nil {
			g.logger.DebugContext(ctx, "Generation stream cancelled",
				slog.String("seed", seed),
				slog.Int("grams_generated", count),
			)
		}
	}()
	return gramChan, nil
}
