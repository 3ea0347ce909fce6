package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/HaDeSMonsta/get-flight-data/pkg/state"
)

// credentials set flags
type credentialsFlags struct {
	account   string
	apiKey    string
	promptKey bool
}

var credFlags credentialsFlags

// newCredentialsCmd groups the credential helpers.
func newCredentialsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "credentials",
		Short: "Show or change the SimBrief account name and the weather API key",
	}
	c.AddCommand(newCredentialsShowCmd())
	c.AddCommand(newCredentialsSetCmd())
	return c
}

func newCredentialsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored credentials (the API key is redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			if rt.fileCreds != nil {
				fmt.Fprintf(out, "File:         %s\n", rt.fileCreds.Path())
			}
			for _, field := range []state.Field{state.FieldAccountName, state.FieldAPIKey} {
				v, err := state.ResolveCredential(field, rt.creds)
				if err != nil {
					return err
				}
				if field == state.FieldAPIKey {
					v = state.RedactToken(v)
				}
				source := ""
				if strings.TrimSpace(os.Getenv(field.EnvVar())) != "" {
					source = " (from " + field.EnvVar() + ")"
				}
				if v == "" {
					v = "<not set>"
				}
				fmt.Fprintf(out, "%-13s %s%s\n", field.String()+":", v, source)
			}
			return nil
		},
	}
}

func newCredentialsSetCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "set",
		Short: "Store the account name and/or API key",
		Long: strings.TrimSpace(`
Store credentials in the credentials file. Fields that are not given keep
their current value.

Examples:
  gfd credentials set --account mysimbriefname
  gfd credentials set --prompt-key
`),
		Args: cobra.NoArgs,
		RunE: runCredentialsSet,
	}
	c.Flags().StringVar(&credFlags.account, "account", "", "SimBrief account name")
	c.Flags().StringVar(&credFlags.apiKey, "api-key", "", "Weather API key")
	c.Flags().BoolVar(&credFlags.promptKey, "prompt-key", false, "Read the API key from the terminal without echo")
	return c
}

func runCredentialsSet(cmd *cobra.Command, args []string) error {
	accountSet := cmd.Flags().Changed("account")
	keySet := cmd.Flags().Changed("api-key")
	if !accountSet && !keySet && !credFlags.promptKey {
		return errors.New("nothing to set: use --account, --api-key or --prompt-key")
	}
	if keySet && credFlags.promptKey {
		return errors.New("--api-key and --prompt-key are mutually exclusive")
	}
	if flagEphemeral {
		return errors.New("credentials set has no effect with --ephemeral")
	}

	rt, err := openRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	current, err := rt.creds.Load()
	if err != nil {
		return err
	}
	if accountSet {
		current.AccountName = credFlags.account
	}
	if keySet {
		current.APIKey = credFlags.apiKey
	}
	if credFlags.promptKey {
		key, err := promptSecret(cmd, "API key: ")
		if err != nil {
			return err
		}
		current.APIKey = key
	}

	if err := rt.creds.Save(current); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved credentials for %q (API key %s)\n",
		current.AccountName, state.RedactToken(current.APIKey))
	return nil
}

// promptSecret reads a line without echo when stdin is a terminal, and a
// plain line otherwise.
func promptSecret(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
