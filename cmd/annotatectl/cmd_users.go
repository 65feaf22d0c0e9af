package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kgcorpus/tagging-console/pkg/models"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Administer backend accounts",
	}
	cmd.AddCommand(newUsersListCmd(), newUsersCreateCmd(), newUsersDeleteCmd(), newUsersBootstrapCmd())
	return cmd
}

func newUsersListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts (administrators only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, _ := cmd.Flags().GetInt("page")
			if page < 1 {
				return fmt.Errorf("page must be at least 1, got %d", page)
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			cred, err := a.credential()
			if err != nil {
				return err
			}
			res, err := a.client.ListUsers(context.Background(), cred, page, a.env.PageSize)
			if err != nil {
				return a.fail("load users", err)
			}
			if a.jsonOut {
				return a.printJSON(res)
			}
			printUsers(a, res)
			return nil
		},
	}
	cmd.Flags().Int("page", 1, "Page to show")
	return cmd
}

func printUsers(a *app, res *models.UserPage) {
	if len(res.Items) == 0 {
		a.printf("No users.\n")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tROLE\tACTIVE\tLAST LOGIN")
	for _, u := range res.Items {
		last := "never"
		if u.LastLogin != nil {
			last = u.LastLogin.Local().Format("2006-01-02 15:04")
		}
		active := "no"
		if u.IsActive {
			active = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Role, active, last)
	}
	_ = tw.Flush()
	if res.Meta != nil && res.Meta.TotalPages > 1 {
		a.printf("Page %d of %d (%d users)\n", res.Meta.CurrentPage, res.Meta.TotalPages, res.Meta.TotalItems)
	}
}

// userRequest reads and checks the account flags shared by create and bootstrap.
func userRequest(cmd *cobra.Command, role string) (models.CreateUserRequest, error) {
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv("ANNOTATECTL_NEW_PASSWORD")
	}
	req := models.CreateUserRequest{Username: username, Password: password, Role: role}
	switch {
	case req.Username == "":
		return req, errors.New("--username is required")
	case req.Password == "":
		return req, errors.New("--password or $ANNOTATECTL_NEW_PASSWORD is required")
	case !models.IsValidRole(req.Role):
		return req, fmt.Errorf("unknown role %q, expected one of %v", req.Role, models.ValidRoles)
	}
	return req, nil
}

func newUsersCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account (administrators only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			req, err := userRequest(cmd, role)
			if err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			cred, err := a.credential()
			if err != nil {
				return err
			}
			u, err := a.client.CreateUser(context.Background(), cred, req)
			if err != nil {
				return a.fail("create the user", err)
			}
			return a.reportUser("Created", u)
		},
	}
	cmd.Flags().StringP("username", "u", "", "Username")
	cmd.Flags().String("password", "", "Password")
	cmd.Flags().String("role", models.RoleEditor, "Role: admin, editor or viewer")
	return cmd
}

func newUsersBootstrapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the first administrator of an empty backend",
		Long: `Create an administrator without signing in. The backend accepts
this only while it has no administrator yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := userRequest(cmd, models.RoleAdmin)
			if err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			u, err := a.client.CreateAdmin(context.Background(), req)
			if err != nil {
				return a.fail("create the administrator", err)
			}
			return a.reportUser("Created administrator", u)
		},
	}
	cmd.Flags().StringP("username", "u", "", "Username")
	cmd.Flags().String("password", "", "Password")
	return cmd
}

func newUsersDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete USER_ID",
		Short: "Delete an account (administrators only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id < 1 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			cred, err := a.credential()
			if err != nil {
				return err
			}
			if err := a.client.DeleteUser(context.Background(), cred, id); err != nil {
				return a.fail("delete the user", err)
			}
			if a.jsonOut {
				return a.printJSON(map[string]any{"deleted": id})
			}
			a.printf("Deleted user %d\n", id)
			return nil
		},
	}
}

func (a *app) reportUser(verb string, u *models.User) error {
	if a.jsonOut {
		return a.printJSON(u)
	}
	a.printf("%s %s (id %d, %s)\n", verb, u.Username, u.ID, u.Role)
	return nil
}
