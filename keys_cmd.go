package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/orate/internal/keys"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the OpenAI API key",
	Long: paragraph(fmt.Sprintf(
		"\nStore, inspect, or remove the API key. Keys are kept in the %s when one is "+
			"available, with an obfuscated file fallback. The %s environment variable "+
			"always takes precedence over both.", keyword("OS keyring"), keyword(keys.EnvVar))),
}

var keysSetCmd = &cobra.Command{
	Use:   "set [KEY]",
	Short: "Store the API key",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := newKeyStore()
		if err != nil {
			return err
		}

		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			key, err = promptForKey()
			if err != nil {
				return err
			}
		}

		source, err := store.Set(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "API key stored in %s.\n", source)
		if source == keys.SourceFile {
			fmt.Fprintln(cmd.OutOrStdout(), "Note: no keyring backend was available; the file fallback is obfuscated, not encrypted.")
		}
		return nil
	},
}

var keysShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show where the API key comes from",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := newKeyStore()
		if err != nil {
			return err
		}
		key, source, err := store.Resolve()
		if errors.Is(err, keys.ErrNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "No API key configured.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (from %s)\n", keys.Redact(key), source)
		return nil
	},
}

var keysClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := newKeyStore()
		if err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Stored API key removed.")
		return nil
	},
}

// promptForKey reads the key without echoing when stdin is a
// terminal.
func promptForKey() (string, error) {
	fmt.Fprint(os.Stderr, "API key: ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read key: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func init() {
	keysCmd.AddCommand(keysSetCmd, keysShowCmd, keysClearCmd)
}
