/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/venuely/apiserver/internal/client/api"
	"github.com/venuely/apiserver/internal/client/session"
	"github.com/venuely/apiserver/types"
)

var (
	adminEmailFlag string
	listPage       int
	listLimit      int
)

var errAdminSignedOut = errors.New("admin session missing or expired, run `venuely admin login`")

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrator console",
}

var adminLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in as an administrator",
	RunE: withClient(func(cmd *cobra.Command, args []string, env *clientEnv) error {
		out := cmd.OutOrStdout()
		email, err := flagOrPrompt(out, adminEmailFlag, "Email")
		if err != nil {
			return err
		}
		password, err := promptPassword(out)
		if err != nil {
			return err
		}

		resp, err := env.api.Login(cmd.Context(), email, password)
		if err != nil {
			return describeError("admin login", err)
		}
		if resp.User.Role != types.RoleAdmin {
			return errors.New("admin login: account does not have the admin role")
		}

		guard := session.New(env.store)
		if err := guard.Save(cmd.Context(), session.Data{Token: resp.Token}); err != nil {
			return err
		}
		fmt.Fprintf(out, "Admin session for %s valid until %s.\n", resp.User.Email, guard.ExpiresAt().Format(time.RFC1123))
		return nil
	}),
}

var adminLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the admin session",
	RunE: withClient(func(cmd *cobra.Command, args []string, env *clientEnv) error {
		if err := session.New(env.store).Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Admin session cleared.")
		return nil
	}),
}

var adminStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether an admin session is active",
	RunE: withClient(func(cmd *cobra.Command, args []string, env *clientEnv) error {
		guard := session.New(env.store)
		state := guard.Start(cmd.Context())
		out := cmd.OutOrStdout()
		if state != session.Authenticated {
			fmt.Fprintln(out, state)
			return nil
		}
		fmt.Fprintf(out, "%s until %s\n", state, guard.ExpiresAt().Format(time.RFC1123))
		return nil
	}),
}

var adminUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
}

var adminUsersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: withAdmin(func(cmd *cobra.Command, args []string, env *clientEnv, guard *session.Guard) error {
		list, err := env.api.ListUsers(cmd.Context(), guard.Token(), listPage, listLimit)
		if err != nil {
			return adminError(cmd, guard, "list users", err)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE\tVERIFIED")
		for _, u := range list.Items {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\n", u.ID, u.Email, u.Name, u.Role, u.EmailVerified)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "page %d, %d of %d users\n", list.Page, len(list.Items), list.Total)
		return nil
	}),
}

var adminUsersSetRoleCmd = &cobra.Command{
	Use:   "set-role <user-id> <role>",
	Short: "Change a user's role",
	Args:  cobra.ExactArgs(2),
	RunE: withAdmin(func(cmd *cobra.Command, args []string, env *clientEnv, guard *session.Guard) error {
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		user, err := env.api.UpdateUserRole(cmd.Context(), guard.Token(), id, args[1])
		if err != nil {
			return adminError(cmd, guard, "set role", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "User %d is now %s.\n", user.ID, user.Role)
		return nil
	}),
}

var adminUsersDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE: withAdmin(func(cmd *cobra.Command, args []string, env *clientEnv, guard *session.Guard) error {
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		if err := env.api.DeleteUser(cmd.Context(), guard.Token(), id); err != nil {
			return adminError(cmd, guard, "delete user", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "User %d deleted.\n", id)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminLoginCmd, adminLogoutCmd, adminStatusCmd, adminUsersCmd)
	adminUsersCmd.AddCommand(adminUsersListCmd, adminUsersSetRoleCmd, adminUsersDeleteCmd)

	adminLoginCmd.Flags().StringVar(&adminEmailFlag, "email", "", "admin email address")
	adminUsersListCmd.Flags().IntVar(&listPage, "page", 1, "page number")
	adminUsersListCmd.Flags().IntVar(&listLimit, "limit", 20, "users per page")
}

// withAdmin gates fn on an authenticated admin session.
func withAdmin(fn func(cmd *cobra.Command, args []string, env *clientEnv, guard *session.Guard) error) func(*cobra.Command, []string) error {
	return withClient(func(cmd *cobra.Command, args []string, env *clientEnv) error {
		guard := session.New(env.store)
		if guard.Start(cmd.Context()) != session.Authenticated {
			return errAdminSignedOut
		}
		return fn(cmd, args, env, guard)
	})
}

// adminError drops the local session when the server rejects its token.
func adminError(cmd *cobra.Command, guard *session.Guard, action string, err error) error {
	if api.IsUnauthorized(err) {
		_ = guard.Clear(cmd.Context())
		return fmt.Errorf("%s: %w", action, errAdminSignedOut)
	}
	return describeError(action, err)
}

func parseUserID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}
