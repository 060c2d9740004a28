package markov

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyModel is returned when no model is installed, or when random
	// generation is asked of a model with no grams.
	ErrEmptyModel = errors.New("markov: model is empty")
	// ErrInvalidOrder is returned when a gram order below 1 is requested.
	ErrInvalidOrder = errors.New("markov: order must be at least 1")
)

// ModelMatchError is returned by seeded generation when no gram of the seed
// exists as a key in the model. Callers can recover by retrying with another
// seed or falling back to random generation.
type ModelMatchError struct {
	Seed string
}

func (e *ModelMatchError) Error() string {
	return fmt.Sprintf("could not find a model match for the string: %q", e.Seed)
}

// TrainingError reports that a training source could not be read. No index is
// produced when it is returned.
type TrainingError struct {
	Err error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training source unreadable: %v", e.Err)
}

func (e *TrainingError) Unwrap() error { return e.Err }

// PersistenceKind classifies a PersistenceError.
type PersistenceKind int

const (
	// KindIO covers reading from or writing to the underlying file or stream.
	KindIO PersistenceKind = iota
	// KindCompression means the bytes were not a valid compressed stream.
	KindCompression
	// KindFormat means the decompressed bytes were not a valid model mapping.
	KindFormat
)

func (k PersistenceKind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindCompression:
		return "compression"
	case KindFormat:
		return "format"
	default:
		return fmt.Sprintf("PersistenceKind(%d)", int(k))
	}
}

// PersistenceError is returned by the model codec. Op is "save" or "load".
type PersistenceError struct {
	Op   string
	Kind PersistenceKind
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("model %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsModelMatch reports whether err is, or wraps, a *ModelMatchError.
func IsModelMatch(err error) bool {
	var mm *ModelMatchError
	return errors.As(err, &mm)
}
