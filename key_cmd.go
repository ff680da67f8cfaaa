package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vista-tts/vista/internal/vault"
)

var (
	keyReveal bool

	keyCmd = &cobra.Command{
		Use:   "key",
		Short: "Manage the stored ElevenLabs API key",
		Long: paragraph(fmt.Sprintf("\nThe API key is kept in an %s vault in your data directory. ELEVENLABS_API_KEY takes precedence over the stored key.",
			keyword("encrypted"))),
	}

	keySetCmd = &cobra.Command{
		Use:   "set [KEY]",
		Short: "Store the API key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := readKey(args)
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if err := a.vault.Credential(vault.APIKeyRecord).Set(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stored API key in", a.vault.Path())
			return nil
		},
	}

	keyShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Show the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			key, err := a.vault.Credential(vault.APIKeyRecord).Get(cmd.Context())
			if err != nil {
				return err
			}
			if key == "" {
				fmt.Fprintln(cmd.OutOrStdout(), faint("No API key stored."))
				return nil
			}
			if !keyReveal {
				key = maskKey(key)
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	keyClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if err := a.vault.Credential(vault.APIKeyRecord).Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Removed API key.")
			return nil
		},
	}
)

func init() {
	keyShowCmd.Flags().BoolVar(&keyReveal, "reveal", false, "print the whole key")
	keyCmd.AddCommand(keySetCmd, keyShowCmd, keyClearCmd)
}

// readKey takes the key from args, a hidden terminal prompt, or stdin.
func readKey(args []string) (string, error) {
	var key string
	switch fd := int(os.Stdin.Fd()); {
	case len(args) == 1:
		key = args[0]
	case term.IsTerminal(fd):
		fmt.Fprint(os.Stderr, "API key: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("unable to read key: %w", err)
		}
		key = string(b)
	default:
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("unable to read key: %w", err)
		}
		key = line
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("empty API key")
	}
	return key, nil
}

// maskKey keeps the first and last four characters.
func maskKey(key string) string {
	r := []rune(key)
	if len(r) <= 8 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:4]) + strings.Repeat("*", len(r)-8) + string(r[len(r)-4:])
}
