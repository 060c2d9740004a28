package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/CTAG07/babbler/pkg/markov"
)

func trainedIndex(t *testing.T, text string) *markov.Index {
	t.Helper()
	trainer, err := markov.NewTrainer(1, nil)
	if err != nil {
		t.Fatal(err)
	}
	index, err := trainer.Train(context.Background(), strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	return index
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestModelWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "babbler.model")
	if err := markov.SaveFile(path, trainedIndex(t, "red fish")); err != nil {
		t.Fatal(err)
	}

	chain, err := markov.NewChain(markov.WithOrder(1))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err = chain.LoadFile(ctx, path); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw, err := newModelWatcher(path, chain, 20*time.Millisecond, logger)
	if err != nil {
		t.Fatalf("newModelWatcher() error = %v", err)
	}
	defer func() { _ = mw.Close() }()
	go mw.Run(ctx)

	replacement := trainedIndex(t, "blue fish")
	if err = markov.SaveFile(path, replacement); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return chain.Index().Equal(replacement) }) {
		t.Fatal("model was not reloaded after the file changed")
	}

	// A corrupt file is ignored and the current model stays active.
	if err = os.WriteFile(path, []byte("corrupt"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if !chain.Index().Equal(replacement) {
		t.Error("corrupt model file replaced the active model")
	}

	// Other files in the directory are not watched.
	other := filepath.Join(filepath.Dir(path), "other.model")
	if err = markov.SaveFile(other, trainedIndex(t, "old fish")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if !chain.Index().Equal(replacement) {
		t.Error("an unrelated file replaced the active model")
	}
}
