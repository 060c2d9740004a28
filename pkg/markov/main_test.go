package markov

import (
	"context"
	"database/sql"
	"go/build"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates a new SQLite database and a Store for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestDB(t *testing.T) (*sql.DB, *Store) {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-4000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)

	return db, s
}

// trainIndex is a convenience helper that trains an index of the given order
// from text.
func trainIndex(t testing.TB, order int, text string) *Index {
	t.Helper()
	trainer, err := NewTrainer(order, nil)
	if err != nil {
		t.Fatalf("NewTrainer() error = %v", err)
	}
	index, err := trainer.Train(context.Background(), strings.NewReader(text))
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	return index
}

// buildIndex creates an index from explicit key -> successors pairs, inserted
// in the order given.
func buildIndex(t testing.TB, order int, pairs ...[2]string) *Index {
	t.Helper()
	index, err := NewIndex(order)
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	for _, p := range pairs {
		index.Insert(ParseGram(p[0]), ParseGram(p[1]))
	}
	return index
}

const testCorpus = `one fish two fish red fish blue fish
black fish blue fish old fish new fish
this one has a little star
this one has a little car
say what a lot of fish there are
the quick brown fox jumps over the lazy dog`

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = strings.Repeat(testCorpus+"\n", 200)
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}
