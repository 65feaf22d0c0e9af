package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the backend and remember the credential",
		Long: `Sign in with a username and password.

The password is read from --password, then $ANNOTATECTL_PASSWORD, then
standard input.

Examples:
  annotatectl login --api http://localhost:8000 --username aida
  echo "$PW" | annotatectl login --username aida`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")

			in := bufio.NewReader(cmd.InOrStdin())
			if username == "" {
				if username, err = readLine(in, cmd.ErrOrStderr(), "Username: "); err != nil {
					return err
				}
			}
			if password == "" {
				password = os.Getenv("ANNOTATECTL_PASSWORD")
			}
			if password == "" {
				if password, err = readLine(in, cmd.ErrOrStderr(), "Password: "); err != nil {
					return err
				}
			}
			if username == "" || password == "" {
				return errors.New("username and password are required")
			}

			ctx := context.Background()
			cred, err := a.client.Login(ctx, username, password)
			if err != nil {
				return a.fail("sign in", err)
			}
			user, err := a.client.Me(ctx, cred)
			if err != nil {
				return a.fail("sign in", err)
			}

			if err := a.creds.Save(&savedCredential{
				APIBaseURL: a.client.BaseURL(),
				Username:   user.Username,
				Credential: cred,
				SavedAt:    time.Now().UTC(),
			}); err != nil {
				return err
			}

			if a.jsonOut {
				return a.printJSON(user)
			}
			a.printf("✓ Signed in to %s as %s (%s)\n", a.client.BaseURL(), user.Username, user.Role)
			return nil
		},
	}
	cmd.Flags().StringP("username", "u", "", "Username")
	cmd.Flags().String("password", "", "Password (prefer $ANNOTATECTL_PASSWORD)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the backend session and forget the credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if cred, err := a.credential(); err == nil {
				if err := a.client.Logout(context.Background(), cred); err != nil {
					a.logger.Warn("Backend logout failed", zap.Error(err))
				}
			}
			if err := a.creds.Remove(); err != nil {
				return err
			}
			if !a.jsonOut {
				a.printf("Signed out\n")
			}
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			b, err := a.bound()
			if err != nil {
				return err
			}
			user, err := b.Me(context.Background())
			if err != nil {
				return a.fail("look up the current user", err)
			}
			if a.jsonOut {
				return a.printJSON(user)
			}
			admin := ""
			if user.IsAdmin() {
				admin = ", administrator"
			}
			a.printf("%s (%s%s) on %s\n", user.Username, user.Role, admin, a.client.BaseURL())
			return nil
		},
	}
}

func readLine(in *bufio.Reader, prompt io.Writer, label string) (string, error) {
	fmt.Fprint(prompt, label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
