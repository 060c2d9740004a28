package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newKeysCmd() *cobra.Command {
	var (
		scopes      []string
		description string
	)

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
		Long: `Manage the keys that protect the HTTP API. While no key exists the API is
open. The first key created always receives the master scope "*".

Scopes: ` + strings.Join(knownScopes, ", ") + `

  babbler keys add --description admin
  babbler keys add --scope model:read --description "read only"
  babbler keys list
  babbler keys rm 2`,
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Create a new API key and print it once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(func(auth *AuthAPI) error {
				resp, err := auth.CreateKey(cmd.Context(), scopes, description)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Key %d created with scopes: %s\n", resp.ID, strings.Join(resp.Scopes, " "))
				fmt.Fprintf(out, "%s\n", resp.RawKey)
				fmt.Fprintln(out, "Store it now, it cannot be shown again.")
				return nil
			})
		},
	}
	add.Flags().StringSliceVar(&scopes, "scope", []string{scopeAll}, "Scope granted to the key (repeatable)")
	add.Flags().StringVar(&description, "description", "", "Free-form note about the key")

	cmd.AddCommand(
		add,
		&cobra.Command{
			Use:   "list",
			Short: "List API keys",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withAuth(func(auth *AuthAPI) error {
					keys, err := auth.ListKeys(cmd.Context())
					if err != nil {
						return err
					}
					if len(keys) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No API keys, the API is open.")
						return nil
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tSCOPES\tDESCRIPTION")
					for _, k := range keys {
						fmt.Fprintf(tw, "%d\t%s\t%s\n", k.ID, strings.Join(k.Scopes, " "), k.Description)
					}
					return tw.Flush()
				})
			},
		},
		&cobra.Command{
			Use:     "rm <id>",
			Aliases: []string{"remove"},
			Short:   "Delete an API key",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid key id %q", args[0])
				}
				return withAuth(func(auth *AuthAPI) error {
					if err := auth.DeleteKey(cmd.Context(), id); err != nil {
						if errors.Is(err, errKeyNotFound) {
							return fmt.Errorf("no key with id %d", id)
						}
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed key %d\n", id)
					return nil
				})
			},
		},
	)
	return cmd
}

// withAuth opens the key database for the duration of fn.
func withAuth(fn func(auth *AuthAPI) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg.Server.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	return fn(NewAuthAPI(db, slog.New(slog.NewTextHandler(io.Discard, nil))))
}
