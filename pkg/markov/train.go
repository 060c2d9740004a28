package markov

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
)

// Trainer builds an Index from line-oriented text by sliding a window of
// 2*order tokens across every line.
type Trainer struct {
	order     int
	tokenizer Tokenizer
	logger    *slog.Logger
}

// NewTrainer creates a Trainer for grams of the given order. A nil tokenizer
// selects the DefaultTokenizer.
func NewTrainer(order int, tokenizer Tokenizer) (*Trainer, error) {
	if order < 1 {
		return nil, ErrInvalidOrder
	}
	if tokenizer == nil {
		tokenizer = NewDefaultTokenizer()
	}
	return &Trainer{
		order:     order,
		tokenizer: tokenizer,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// SetLogger sets the logger for the Trainer. By default, all logs are discarded.
func (t *Trainer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// Train reads every source to the end and returns a freshly built index. Each
// line is tokenized on its own; training never spans line boundaries. For
// every window of 2*order consecutive tokens the first half is recorded as a
// key and the second half as one of its successors.
//
// Lines with fewer than 2*order tokens contribute nothing to the model.
//
// If a source cannot be read, Train returns a *TrainingError and no index. If
// ctx is cancelled, Train stops between lines and returns ctx.Err().
func (t *Trainer) Train(ctx context.Context, sources ...io.Reader) (*Index, error) {
	index, err := NewIndex(t.order)
	if err != nil {
		return nil, err
	}

	var lines, skipped int64
	for _, src := range sources {
		stream := t.tokenizer.NewStream(src)
		for {
			if err = ctx.Err(); err != nil {
				return nil, err
			}
			tokens, readErr := stream.Next()
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					break
				}
				return nil, &TrainingError{Err: readErr}
			}
			lines++
			if !t.addLine(index, tokens) {
				skipped++
			}
		}
	}

	t.logger.InfoContext(ctx, "Training completed",
		slog.Int("order", t.order),
		slog.Int64("lines_processed", lines),
		slog.Int64("lines_too_short", skipped),
		slog.Int("keys", index.Len()),
		slog.Int("transitions", index.Transitions()),
	)
	return index, nil
}

// addLine records every window of one line and reports whether the line was
// long enough to contribute.
func (t *Trainer) addLine(index *Index, tokens []string) bool {
	width := 2 * t.order
	if len(tokens) < width {
		return false
	}
	for i := 0; i+width <= len(tokens); i++ {
		key := strings.Join(tokens[i:i+t.order], gramSeparator)
		successor := strings.Join(tokens[i+t.order:i+width], gramSeparator)
		index.insertKey(key, successor)
	}
	return true
}
