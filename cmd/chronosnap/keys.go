package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manash/chronosnap/internal/keys"
)

var (
	flagKeyProvider string
	flagKeyReveal   bool
)

func newKeysCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the stored API key",
		Long: `Store the Gemini API key in the user config directory so it does not
have to be exported in every shell. Lookup order is --api-key, then the
stored key, then GEMINI_API_KEY or API_KEY.`,
	}
	cmd.PersistentFlags().StringVar(&flagKeyProvider, "provider", keys.DefaultProvider, "provider the key belongs to")

	set := &cobra.Command{
		Use:   "set [key]",
		Short: "Store a key (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			key := ""
			if len(args) == 1 {
				key = args[0]
			} else {
				fmt.Fprint(app.Err, "API key: ")
				line, err := bufio.NewReader(app.In).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read key: %w", err)
				}
				key = line
			}
			if err := store.Set(flagKeyProvider, strings.TrimSpace(key)); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Stored %s key in %s\n", flagKeyProvider, store.Path())
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show the stored key (masked unless --reveal)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			key, err := store.Get(flagKeyProvider)
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("%w for %s", keys.ErrKeyNotFound, flagKeyProvider)
			}
			if !flagKeyReveal {
				key = keys.MaskKey(key)
			}
			fmt.Fprintln(app.Out, key)
			return nil
		},
	}
	get.Flags().BoolVar(&flagKeyReveal, "reveal", false, "print the full key")

	del := &cobra.Command{
		Use:     "delete",
		Aliases: []string{"rm"},
		Short:   "Remove the stored key",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			if err := store.Delete(flagKeyProvider); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Deleted %s key\n", flagKeyProvider)
			return nil
		},
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List providers with a stored key",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			names, err := store.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(app.Out, "No keys stored.")
				return nil
			}
			for _, name := range names {
				key, _ := store.Get(name)
				fmt.Fprintf(app.Out, "%-10s %s\n", name, keys.MaskKey(key))
			}
			return nil
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the key file location",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.Out, store.Path())
			return nil
		},
	}

	cmd.AddCommand(set, get, del, list, path)
	return cmd
}
