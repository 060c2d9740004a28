package markov

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/klauspost/compress/gzip"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, order := range []int{1, 2, 3} {
		index := trainIndex(t, order, testCorpus)

		var buf bytes.Buffer
		if err := Save(&buf, index); err != nil {
			t.Fatalf("order %d: Save failed: %v", order, err)
		}
		loaded, err := Load(&buf)
		if err != nil {
			t.Fatalf("order %d: Load failed: %v", order, err)
		}

		if !loaded.Equal(index) {
			t.Errorf("order %d: loaded index differs from the saved one", order)
		}
		if !reflect.DeepEqual(loaded.Keys(), index.Keys()) {
			t.Errorf("order %d: key order not preserved", order)
		}
		if loaded.Transitions() != index.Transitions() {
			t.Errorf("order %d: transitions = %d, want %d", order, loaded.Transitions(), index.Transitions())
		}
	}
}

func TestSaveEmptyIndex(t *testing.T) {
	empty, _ := NewIndex(2)
	var buf bytes.Buffer
	if err := Save(&buf, empty); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Len() != 0 || loaded.Order() != 2 {
		t.Errorf("got %d keys of order %d, want an empty order 2 index", loaded.Len(), loaded.Order())
	}
}

func TestSaveDeterministic(t *testing.T) {
	index := trainIndex(t, 2, testCorpus)

	var first, second bytes.Buffer
	if err := Save(&first, index); err != nil {
		t.Fatal(err)
	}
	if err := Save(&second, trainIndex(t, 2, testCorpus)); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("saving equal indices produced different bytes")
	}
}

// compressed gzips payload the way Save does.
func compressed(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// encoded builds a compressed model document without going through Index.
func encoded(t *testing.T, file modelFile) []byte {
	t.Helper()
	payload, err := encMode.Marshal(&file)
	if err != nil {
		t.Fatal(err)
	}
	return compressed(t, payload)
}

func TestLoadErrors(t *testing.T) {
	var valid bytes.Buffer
	if err := Save(&valid, trainIndex(t, 2, testCorpus)); err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name  string
		input io.Reader
		kind  PersistenceKind
	}{
		{name: "Empty input", input: bytes.NewReader(nil), kind: KindCompression},
		{name: "Not compressed", input: strings.NewReader("definitely not gzip"), kind: KindCompression},
		{name: "Truncated", input: bytes.NewReader(valid.Bytes()[:valid.Len()/2]), kind: KindCompression},
		{name: "Unreadable source", input: iotest.ErrReader(errors.New("device gone")), kind: KindIO},
		{name: "Compressed garbage", input: bytes.NewReader(compressed(t, []byte("plain text, not cbor"))), kind: KindFormat},
		{name: "Foreign format", input: bytes.NewReader(encoded(t, modelFile{Format: "other", Version: modelVersion, Order: 2})), kind: KindFormat},
		{name: "Unknown version", input: bytes.NewReader(encoded(t, modelFile{Format: modelFormat, Version: 99, Order: 2})), kind: KindFormat},
		{name: "Invalid order", input: bytes.NewReader(encoded(t, modelFile{Format: modelFormat, Version: modelVersion, Order: 0})), kind: KindFormat},
		{
			name: "Key of wrong order",
			input: bytes.NewReader(encoded(t, modelFile{Format: modelFormat, Version: modelVersion, Order: 2,
				Entries: []modelEntry{{Key: "a", Successors: []string{"b c"}}}})),
			kind: KindFormat,
		},
		{
			name: "Successor of wrong order",
			input: bytes.NewReader(encoded(t, modelFile{Format: modelFormat, Version: modelVersion, Order: 2,
				Entries: []modelEntry{{Key: "a b", Successors: []string{"c d e"}}}})),
			kind: KindFormat,
		},
		{
			name: "Duplicate key",
			input: bytes.NewReader(encoded(t, modelFile{Format: modelFormat, Version: modelVersion, Order: 1,
				Entries: []modelEntry{{Key: "a", Successors: []string{"b"}}, {Key: "a", Successors: []string{"c"}}}})),
			kind: KindFormat,
		},
		{
			name: "Key without successors",
			input: bytes.NewReader(encoded(t, modelFile{Format: modelFormat, Version: modelVersion, Order: 1,
				Entries: []modelEntry{{Key: "a"}}})),
			kind: KindFormat,
		},
		{
			name: "Double space in key",
			input: bytes.NewReader(encoded(t, modelFile{Format: modelFormat, Version: modelVersion, Order: 2,
				Entries: []modelEntry{{Key: "a  b", Successors: []string{"c d"}}}})),
			kind: KindFormat,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			index, err := Load(tc.input)
			if index != nil {
				t.Error("expected no index on failure")
			}
			var perr *PersistenceError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *PersistenceError, got %T (%v)", err, err)
			}
			if perr.Op != "load" {
				t.Errorf("Op = %q, want %q", perr.Op, "load")
			}
			if perr.Kind != tc.kind {
				t.Errorf("Kind = %s, want %s (%v)", perr.Kind, tc.kind, err)
			}
		})
	}
}

func TestLoadLimit(t *testing.T) {
	index := trainIndex(t, 2, testCorpus)
	var valid bytes.Buffer
	if err := Save(&valid, index); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadLimit(bytes.NewReader(valid.Bytes()), 1<<20)
	if err != nil {
		t.Fatalf("LoadLimit() error = %v", err)
	}
	if !loaded.Equal(index) {
		t.Error("model loaded under the limit differs from the saved one")
	}

	// A megabyte of zeros compresses to about a kilobyte.
	bomb := compressed(t, make([]byte, 1<<20))
	_, err = LoadLimit(bytes.NewReader(bomb), 64<<10)
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Kind != KindFormat {
		t.Fatalf("expected KindFormat *PersistenceError, got %v", err)
	}
	if !errors.Is(err, ErrModelTooLarge) {
		t.Errorf("expected error to wrap ErrModelTooLarge, got %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSaveWriteError(t *testing.T) {
	err := Save(failingWriter{}, trainIndex(t, 2, testCorpus))
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Kind != KindIO || perr.Op != "save" {
		t.Errorf("expected save KindIO *PersistenceError, got %v", err)
	}
}

func TestSaveFileLoadFile(t *testing.T) {
	index := trainIndex(t, 2, testCorpus)
	path := filepath.Join(t.TempDir(), "model.bin")

	if err := SaveFile(path, index); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if !loaded.Equal(index) {
		t.Error("index loaded from file differs from the saved one")
	}

	// Overwriting an existing file goes through the same atomic path.
	smaller := trainIndex(t, 2, "a b c d")
	if err := SaveFile(path, smaller); err != nil {
		t.Fatalf("second SaveFile failed: %v", err)
	}
	if loaded, _ = LoadFile(path); !loaded.Equal(smaller) {
		t.Error("overwritten file does not hold the new index")
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.bin"))
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Kind != KindIO {
		t.Fatalf("expected KindIO *PersistenceError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected error to wrap os.ErrNotExist, got %v", err)
	}
}
