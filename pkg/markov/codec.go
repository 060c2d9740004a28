package markov

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/natefinch/atomic"
)

const (
	// modelFormat tags the payload so that foreign CBOR documents are rejected.
	modelFormat = "babbler/gram-index"
	// modelVersion is bumped whenever modelFile changes incompatibly.
	modelVersion = 1

	// DefaultMaxModelBytes bounds the decompressed size of a model read by
	// Load. Compressed input can expand far beyond its own size.
	DefaultMaxModelBytes int64 = 1 << 30
)

// ErrModelTooLarge is wrapped by the *PersistenceError returned when a model
// decompresses to more than the allowed number of bytes.
var ErrModelTooLarge = errors.New("markov: model exceeds the size limit")

// modelFile is the serialized form of an Index. Entries keep the index's key
// order so a saved model reloads with identical iteration order.
type modelFile struct {
	Format  string       `cbor:"format"`
	Version int          `cbor:"version"`
	Order   int          `cbor:"order"`
	Entries []modelEntry `cbor:"entries"`
}

type modelEntry struct {
	_          struct{} `cbor:",toarray"`
	Key        string
	Successors []string
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core deterministic encoding keeps Save a pure function of the index.
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements:  math.MaxInt32,
		MaxMapPairs:       math.MaxInt32,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Save serializes index as a CBOR document, gzip-compresses it and writes it
// to w. The output depends only on the contents and key order of the index.
func Save(w io.Writer, index *Index) error {
	if index == nil {
		return &PersistenceError{Op: "save", Kind: KindFormat, Err: ErrEmptyModel}
	}
	file := modelFile{
		Format:  modelFormat,
		Version: modelVersion,
		Order:   index.order,
		Entries: make([]modelEntry, 0, index.Len()),
	}
	index.Range(func(key string, successors []string) bool {
		file.Entries = append(file.Entries, modelEntry{Key: key, Successors: successors})
		return true
	})

	payload, err := encMode.Marshal(&file)
	if err != nil {
		return &PersistenceError{Op: "save", Kind: KindFormat, Err: err}
	}

	// The zero gzip.Header carries no name or modification time.
	zw := gzip.NewWriter(w)
	if _, err = zw.Write(payload); err != nil {
		return &PersistenceError{Op: "save", Kind: KindIO, Err: err}
	}
	if err = zw.Close(); err != nil {
		return &PersistenceError{Op: "save", Kind: KindIO, Err: err}
	}
	return nil
}

// SaveFile writes index to path atomically: readers of path observe either
// the previous model or the new one, never a partial file.
func SaveFile(path string, index *Index) error {
	var buf bytes.Buffer
	if err := Save(&buf, index); err != nil {
		return err
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return &PersistenceError{Op: "save", Kind: KindIO, Err: err}
	}
	return nil
}

// Load reads a model written by Save. Failures are reported as a
// *PersistenceError whose Kind tells apart unreadable input (KindIO), input
// that is not a valid compressed stream (KindCompression) and a stream that
// does not hold a valid model (KindFormat). The decompressed model may not
// exceed DefaultMaxModelBytes.
func Load(r io.Reader) (*Index, error) {
	return LoadLimit(r, DefaultMaxModelBytes)
}

// LoadLimit is Load with a custom ceiling on the decompressed size. Larger
// models fail with a KindFormat error wrapping ErrModelTooLarge.
func LoadLimit(r io.Reader, maxBytes int64) (*Index, error) {
	src := &readRecorder{r: r}

	zr, err := gzip.NewReader(src)
	if err != nil {
		return nil, src.classify(err)
	}
	payload, err := io.ReadAll(io.LimitReader(zr, maxBytes+1))
	if err != nil {
		return nil, src.classify(err)
	}
	if int64(len(payload)) > maxBytes {
		return nil, &PersistenceError{Op: "load", Kind: KindFormat, Err: ErrModelTooLarge}
	}
	if err = zr.Close(); err != nil {
		return nil, src.classify(err)
	}

	var file modelFile
	if err = decMode.Unmarshal(payload, &file); err != nil {
		return nil, &PersistenceError{Op: "load", Kind: KindFormat, Err: err}
	}
	index, err := file.index()
	if err != nil {
		return nil, &PersistenceError{Op: "load", Kind: KindFormat, Err: err}
	}
	return index, nil
}

// LoadFile opens path and loads the model it contains.
func LoadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Kind: KindIO, Err: err}
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	return Load(f)
}

// index validates the decoded document and rebuilds the Index from it.
func (m *modelFile) index() (*Index, error) {
	if m.Format != modelFormat {
		return nil, fmt.Errorf("unrecognized model format %q", m.Format)
	}
	if m.Version != modelVersion {
		return nil, fmt.Errorf("unsupported model version %d", m.Version)
	}
	index, err := NewIndex(m.Order)
	if err != nil {
		return nil, err
	}
	for i, entry := range m.Entries {
		if !validGram(entry.Key, m.Order) {
			return nil, fmt.Errorf("entry %d: key %q is not a gram of order %d", i, entry.Key, m.Order)
		}
		if index.Contains(entry.Key) {
			return nil, fmt.Errorf("entry %d: duplicate key %q", i, entry.Key)
		}
		if len(entry.Successors) == 0 {
			return nil, fmt.Errorf("entry %d: key %q has no successors", i, entry.Key)
		}
		for _, successor := range entry.Successors {
			if !validGram(successor, m.Order) {
				return nil, fmt.Errorf("entry %d: successor %q is not a gram of order %d", i, successor, m.Order)
			}
			index.insertKey(entry.Key, successor)
		}
	}
	return index, nil
}

// validGram reports whether key is exactly order non-empty tokens joined by
// single spaces.
func validGram(key string, order int) bool {
	if gramLen(key) != order {
		return false
	}
	fields := strings.Fields(key)
	return len(fields) == order && strings.Join(fields, gramSeparator) == key
}

// readRecorder remembers the first error returned by the wrapped reader, so
// that failures of the source can be told apart from corrupt compressed data.
type readRecorder struct {
	r   io.Reader
	err error
}

func (rr *readRecorder) Read(p []byte) (int, error) {
	n, err := rr.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && rr.err == nil {
		rr.err = err
	}
	return n, err
}

func (rr *readRecorder) classify(err error) *PersistenceError {
	if rr.err != nil {
		return &PersistenceError{Op: "load", Kind: KindIO, Err: rr.err}
	}
	return &PersistenceError{Op: "load", Kind: KindCompression, Err: err}
}
