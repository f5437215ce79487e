package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/mcgillij/gitlog-summary/config"
)

func newAuthCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the GitHub token stored in the OS keychain",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "login",
			Short: "Store a GitHub token in the OS keychain",
			Long: `Prompt for a GitHub personal access token and store it in the OS keychain.

A token with the repo scope is needed for private repositories. The
user:email scope lets --email-lookup see your own private addresses.`,
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := loadConfig(v); err != nil {
					return err
				}
				token, err := readToken(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				if err := config.NewCredentialStore("").SaveGitHubToken(token); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "GitHub token saved to the OS keychain")
				return nil
			},
		},
		&cobra.Command{
			Use:   "logout",
			Short: "Remove the GitHub token from the OS keychain",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := loadConfig(v); err != nil {
					return err
				}
				if err := config.NewCredentialStore("").DeleteGitHubToken(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "GitHub token removed from the OS keychain")
				return nil
			},
		},
	)
	return cmd
}

// readToken prompts for a token without echo when stdin is a terminal and
// reads one line otherwise.
func readToken(in io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "GitHub token: ")

	var token string
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		token = string(b)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		token = line
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("no token entered")
	}
	return token, nil
}
