package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/CTAG07/babbler/pkg/markov"
)

func newTrainCmd() *cobra.Command {
	var (
		order  int
		saveAs string
	)

	cmd := &cobra.Command{
		Use:   "train [files...]",
		Short: "Train a model from text files",
		Long: `Train a new model from one or more text files, or from standard input when
no file is given, and write it atomically to the model file.

Each line is trained on separately. Lines shorter than twice the order
contribute nothing.

  babbler train corpus.txt               # order from the config file
  babbler train --order 3 a.txt b.txt    # trigram model from two files
  cat corpus.txt | babbler train         # read standard input
  babbler train --save-as poems poems.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("order") {
				order = cfg.Model.Order
			}

			chain, err := markov.NewChain(markov.WithOrder(order))
			if err != nil {
				return err
			}

			sources, closeAll, err := openSources(args)
			if err != nil {
				return err
			}
			defer closeAll()

			if err = chain.Train(cmd.Context(), sources...); err != nil {
				return fmt.Errorf("train: %w", err)
			}
			if err = saveModelFile(chain, cfg.Server.ModelPath); err != nil {
				return err
			}

			stats, _ := chain.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Trained order-%d model: %d keys, %d transitions -> %s\n",
				stats.Order, stats.Keys, stats.Transitions, cfg.Server.ModelPath)

			if saveAs != "" {
				if err = saveToStore(cmd.Context(), cfg, saveAs, chain.Index()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored as %q\n", saveAs)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&order, "order", "n", markov.DefaultOrder, "Tokens per gram")
	cmd.Flags().StringVar(&saveAs, "save-as", "", "Also store the model in the model database under this name")

	return cmd
}

// openSources opens every path for training, falling back to stdin. When
// stderr is a terminal, reads are reported on a progress bar.
func openSources(paths []string) ([]io.Reader, func(), error) {
	if len(paths) == 0 {
		return []io.Reader{os.Stdin}, func() {}, nil
	}

	files := make([]*os.File, 0, len(paths))
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	var total int64
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open corpus: %w", err)
		}
		files = append(files, f)
		if info, err := f.Stat(); err == nil {
			total += info.Size()
		}
	}

	sources := make([]io.Reader, len(files))
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		for i, f := range files {
			sources[i] = f
		}
		return sources, closeAll, nil
	}

	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetDescription("  Training"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	)
	for i, f := range files {
		sources[i] = io.TeeReader(f, bar)
	}
	return sources, func() {
		_ = bar.Finish()
		closeAll()
	}, nil
}

func newGenerateCmd() *cobra.Command {
	var (
		seed   string
		words  int
		noSeed bool
		count  int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate text from the model",
		Long: `Generate text from the model file.

Without --seed, generation starts from a random gram of the model. With
--seed, every window of the seed that is a gram of the model is a candidate
start, and one of them is picked at random.

  babbler generate
  babbler generate --seed "one fish" --words 30
  babbler generate --seed "one fish" --no-seed   # start after the seed
  babbler generate -n 5                          # five independent lines`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("words") {
				words = cfg.Model.WordLimit
			}
			includeSeed := cfg.Model.IncludeSeed
			if cmd.Flags().Changed("no-seed") {
				includeSeed = !noSeed
			}

			chain, err := loadChain(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			for range count {
				var text string
				if seed == "" {
					text, err = chain.GenerateRandom(cmd.Context(), markov.WithWordLimit(words))
				} else {
					text, err = chain.GenerateSeeded(cmd.Context(), seed,
						markov.WithWordLimit(words), markov.WithIncludeSeed(includeSeed))
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&seed, "seed", "s", "", "Text the output should start from")
	cmd.Flags().IntVarP(&words, "words", "w", markov.DefaultWordLimit, "Approximate word budget")
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "Start with a successor of the seed instead of the seed itself")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of texts to generate")

	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show statistics for the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			chain, err := loadChain(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			stats, err := chain.Stats()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Model:              %s\n", cfg.Server.ModelPath)
			fmt.Fprintf(out, "Order:              %d\n", stats.Order)
			fmt.Fprintf(out, "Keys:               %d\n", stats.Keys)
			fmt.Fprintf(out, "Transitions:        %d\n", stats.Transitions)
			fmt.Fprintf(out, "Unique transitions: %d\n", stats.UniqueTransitions)
			fmt.Fprintf(out, "Max fan-out:        %d\n", stats.MaxFanout)
			fmt.Fprintf(out, "Dead ends:          %d\n", stats.DeadEnds)
			return nil
		},
	}
}

func newPruneCmd() *cobra.Command {
	var (
		minFreq int
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop rare transitions from the model",
		Long: `Remove every transition observed at most --min-freq times after its key,
then rewrite the model file. Keys left without successors are removed.

  babbler prune                   # drop transitions seen only once
  babbler prune --min-freq 2
  babbler prune --dry-run         # preview without writing`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if minFreq < 0 {
				return errors.New("--min-freq must not be negative")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			chain, err := loadChain(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			before, _ := chain.Stats()
			after := markov.IndexStats(markov.Prune(chain.Index(), minFreq))
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "Would prune to %d keys (from %d), %d transitions (from %d)\n",
					after.Keys, before.Keys, after.Transitions, before.Transitions)
				return nil
			}

			if err = chain.Prune(cmd.Context(), minFreq); err != nil {
				return err
			}
			if err = saveModelFile(chain, cfg.Server.ModelPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned to %d keys (from %d), %d transitions (from %d)\n",
				after.Keys, before.Keys, after.Transitions, before.Transitions)
			return nil
		},
	}

	cmd.Flags().IntVar(&minFreq, "min-freq", 1, "Remove transitions seen this many times or fewer")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview the result without rewriting the model")

	return cmd
}

// loadChain returns a chain with the configured model file installed.
func loadChain(ctx context.Context, cfg *Config) (*markov.Chain, error) {
	chain, err := markov.NewChain(markov.WithOrder(cfg.Model.Order))
	if err != nil {
		return nil, err
	}
	if err = chain.LoadFile(ctx, cfg.Server.ModelPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no model at %s: run 'babbler train' first", cfg.Server.ModelPath)
		}
		return nil, fmt.Errorf("load model: %w", err)
	}
	return chain, nil
}

// saveModelFile writes the chain's model to path, creating its directory.
func saveModelFile(chain *markov.Chain, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}
	if err := chain.SaveFile(path); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}
