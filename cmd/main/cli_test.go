package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/babbler/pkg/markov"
)

// runCLI executes the command tree with args and returns everything it printed.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "babbler.toml")
	config := fmt.Sprintf("[server]\nmodel_path = %q\ndatabase_path = %q\n",
		filepath.Join(dir, "models", "fox.model"), filepath.Join(dir, "babbler.db"))
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}
	corpus := filepath.Join(dir, "corpus.txt")
	if err := os.WriteFile(corpus, []byte("the quick brown fox jumps\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "--config", configPath, "train", "--order", "2", "--save-as", "fox", corpus)
	if err != nil {
		t.Fatalf("train failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Trained order-2 model: 2 keys, 2 transitions") {
		t.Errorf("unexpected train output:\n%s", out)
	}

	out, err = runCLI(t, "--config", configPath, "generate", "--seed", "the quick", "--words", "4", "--count", "2")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if out != "the quick brown fox\nthe quick brown fox\n" {
		t.Errorf("unexpected generate output %q", out)
	}

	_, err = runCLI(t, "--config", configPath, "generate", "--seed", "purple cow", "--count", "1")
	if !markov.IsModelMatch(err) {
		t.Errorf("expected a ModelMatchError, got %v", err)
	}

	out, err = runCLI(t, "--config", configPath, "stats")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if !strings.Contains(out, "Keys:               2") {
		t.Errorf("unexpected stats output:\n%s", out)
	}

	out, err = runCLI(t, "--config", configPath, "models", "list")
	if err != nil {
		t.Fatalf("models list failed: %v", err)
	}
	if !strings.Contains(out, "fox") {
		t.Errorf("expected the stored model to be listed:\n%s", out)
	}

	if _, err = runCLI(t, "--config", configPath, "models", "rm", "missing"); err == nil {
		t.Error("expected an error removing a missing model")
	}

	out, err = runCLI(t, "--config", configPath, "keys", "add", "--description", "admin")
	if err != nil {
		t.Fatalf("keys add failed: %v", err)
	}
	if !strings.Contains(out, "babbler_") {
		t.Errorf("expected the raw key to be printed:\n%s", out)
	}

	out, err = runCLI(t, "--config", configPath, "keys", "list")
	if err != nil {
		t.Fatalf("keys list failed: %v", err)
	}
	if !strings.Contains(out, "admin") {
		t.Errorf("expected the key to be listed:\n%s", out)
	}

	out, err = runCLI(t, "version")
	if err != nil || !strings.Contains(out, Version) {
		t.Errorf("unexpected version output %q (%v)", out, err)
	}

	// Leaves --help set on generate, so it runs last.
	out, err = runCLI(t, "generate", "--help")
	if err != nil {
		t.Fatalf("generate --help failed: %v", err)
	}
	if !strings.Contains(out, "every window of the seed") || strings.Contains(out, "first words") {
		t.Errorf("generate help misdescribes seed matching:\n%s", out)
	}
}
