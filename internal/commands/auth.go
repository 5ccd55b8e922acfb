package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/personal-pl/plctl/internal/model"
)

// readPassword takes the first line of r.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLoginCommand(a *app) *cobra.Command {
	var password string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:         "login <username>",
		Short:       "Sign in and store the session",
		Args:        cobra.ExactArgs(1),
		Annotations: route("/login"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if passwordStdin || password == "" {
				p, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = p
			}
			u, err := a.client.Login(cmd.Context(), model.Credentials{Username: args[0], Password: password})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", u.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when empty)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")

	return cmd
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "logout",
		Short:       "Sign out and forget the stored session",
		Args:        cobra.NoArgs,
		Annotations: route("/"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newRegisterCommand(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:         "register <username>",
		Short:       "Create an account",
		Args:        cobra.ExactArgs(1),
		Annotations: route("/register"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = p
			}
			u, err := a.client.Register(cmd.Context(), model.Registration{
				Username: args[0],
				Email:    email,
				Password: password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s. Run \"plctl login %s\" to sign in.\n", u.Username, u.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address (required)")
	_ = cmd.MarkFlagRequired("email")
	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when empty)")

	return cmd
}

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "whoami",
		Short:       "Show the signed-in user",
		Args:        cobra.NoArgs,
		Annotations: route("/account"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := a.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s <%s>\n", u.Username, u.Email)
			if !u.CreatedAt.IsZero() {
				fmt.Fprintf(out, "member since %s\n", u.CreatedAt.Format("2006-01-02"))
			}
			return nil
		},
	}
}

func newHealthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "health",
		Short:       "Check that the backend is reachable",
		Args:        cobra.NoArgs,
		Annotations: route("/api/health"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := a.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", a.client.BaseURL(), h.Status, h.App)
			return nil
		},
	}
}
