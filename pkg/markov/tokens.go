package markov

import (
	"bufio"
	"io"
	"strings"
)

// defaultMaxLineBytes bounds the length of a single training line.
const defaultMaxLineBytes = 1 << 20

// Tokenizer is an interface that defines the contract for splitting input text
// into tokens. Tokens returned by a Tokenizer must never contain whitespace,
// since grams are keyed by their tokens joined with a single space.
type Tokenizer interface {
	// Split returns the tokens of a single piece of text, such as a seed.
	Split(text string) []string
	// NewStream returns a stateful StreamTokenizer for processing an io.Reader.
	NewStream(io.Reader) StreamTokenizer
}

// StreamTokenizer is an interface for a stateful tokenizer that processes a
// stream of data, returning the tokens of one line at a time.
type StreamTokenizer interface {
	// Next returns the tokens of the next line in the stream. A blank line
	// yields an empty slice. It returns io.EOF as the error when the stream
	// is fully consumed.
	Next() ([]string, error)
}

// DefaultTokenizer splits text on runs of whitespace. Tokens are compared
// exactly: no case folding, no punctuation handling.
type DefaultTokenizer struct {
	maxLineBytes int
}

// Option Is a function that configures a DefaultTokenizer.
type Option func(*DefaultTokenizer)

// WithMaxLineBytes sets the longest line, in bytes, the stream tokenizer will
// accept before failing with bufio.ErrTooLong.
// Default: 1 MiB
func WithMaxLineBytes(n int) Option {
	return func(t *DefaultTokenizer) {
		if n > 0 {
			t.maxLineBytes = n
		}
	}
}

// NewDefaultTokenizer creates a new tokenizer with default settings, which can be
// overridden by providing one or more Option functions.
func NewDefaultTokenizer(opts ...Option) *DefaultTokenizer {
	t := &DefaultTokenizer{maxLineBytes: defaultMaxLineBytes}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Split returns the whitespace-separated tokens of text.
func (t *DefaultTokenizer) Split(text string) []string {
	return strings.Fields(text)
}

// NewStream Returns the line-by-line stream processor.
func (t *DefaultTokenizer) NewStream(r io.Reader) StreamTokenizer {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, t.maxLineBytes)), t.maxLineBytes)
	return &DefaultStreamTokenizer{scanner: scanner}
}

// DefaultStreamTokenizer is the default implementation of the StreamTokenizer
// interface. It reads newline-delimited lines with a bufio.Scanner.
type DefaultStreamTokenizer struct {
	scanner *bufio.Scanner
}

// Next returns the tokens of the next line. When the stream is exhausted, it
// returns a nil slice and io.EOF. Any other error indicates a problem reading
// from the underlying stream.
func (s *DefaultStreamTokenizer) Next() ([]string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return strings.Fields(s.scanner.Text()), nil
}
