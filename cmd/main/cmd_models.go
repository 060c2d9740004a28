package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/CTAG07/babbler/pkg/markov"
)

func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage named models in the model database",
		Long: `Keep several trained models side by side in the model database.

  babbler models list
  babbler models save poems     # store the model file as "poems"
  babbler models load poems     # make "poems" the model file
  babbler models rm poems`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored models",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(cfg *Config, store *markov.Store) error {
					models, err := store.ListModels(cmd.Context())
					if err != nil {
						return err
					}
					if len(models) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No stored models.")
						return nil
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "NAME\tORDER\tKEYS\tTRANSITIONS\tSIZE")
					for _, m := range models {
						fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", m.Name, m.Order, m.Keys, m.Transitions, m.Size)
					}
					return tw.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "save <name>",
			Short: "Store the model file under a name",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				chain, err := loadChain(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				if err = saveToStore(cmd.Context(), cfg, args[0], chain.Index()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %s as %q\n", cfg.Server.ModelPath, args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "load <name>",
			Short: "Replace the model file with a stored model",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(cfg *Config, store *markov.Store) error {
					index, err := store.LoadModel(cmd.Context(), args[0])
					if err != nil {
						return notFound(args[0], err)
					}
					chain, err := markov.NewChain(markov.WithOrder(index.Order()))
					if err != nil {
						return err
					}
					chain.Install(index)
					if err = saveModelFile(chain, cfg.Server.ModelPath); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Loaded %q into %s\n", args[0], cfg.Server.ModelPath)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:     "rm <name>",
			Aliases: []string{"remove"},
			Short:   "Delete a stored model",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(cfg *Config, store *markov.Store) error {
					if err := store.RemoveModel(cmd.Context(), args[0]); err != nil {
						return notFound(args[0], err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %q\n", args[0])
					return nil
				})
			},
		},
	)
	return cmd
}

// withStore opens the model database for the duration of fn.
func withStore(fn func(cfg *Config, store *markov.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(cfg, store)
}

func openStore(cfg *Config) (*markov.Store, func(), error) {
	db, err := openDatabase(cfg.Server.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	store, err := markov.NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, func() {
		store.Close()
		_ = db.Close()
	}, nil
}

func saveToStore(ctx context.Context, cfg *Config, name string, index *markov.Index) error {
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	return store.SaveModel(ctx, name, index)
}

func notFound(name string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("no stored model named %q", name)
	}
	return err
}
