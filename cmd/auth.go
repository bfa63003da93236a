/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/venuely/apiserver/internal/client/api"
	"github.com/venuely/apiserver/internal/client/auth"
	"github.com/venuely/apiserver/types"
)

var (
	emailFlag string
	nameFlag  string
	codeFlag  string
)

var errNotSignedIn = errors.New("not signed in, run `venuely login` first")

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and send a verification code",
	RunE: withClient(func(cmd *cobra.Command, args []string, env *clientEnv) error {
		out := cmd.OutOrStdout()
		email, err := flagOrPrompt(out, emailFlag, "Email")
		if err != nil {
			return err
		}
		name, err := flagOrPrompt(out, nameFlag, "Name")
		if err != nil {
			return err
		}
		password, err := promptPassword(out)
		if err != nil {
			return err
		}

		svc := auth.New(cmd.Context(), env.api, env.store)
		resp, err := svc.Register(cmd.Context(), types.RegisterRequest{Email: email, Name: name, Password: password})
		if err != nil {
			return describeError("register", err)
		}
		fmt.Fprintln(out, resp.Message)
		fmt.Fprintf(out, "Run `venuely verify --email %s` with the code to finish.\n", resp.Email)
		return nil
	}),
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Confirm your email address with the emailed code",
	RunE: withClient(func(cmd *cobra.Command, args []string, env *clientEnv) error {
		out := cmd.OutOrStdout()
		email, err := flagOrPrompt(out, emailFlag, "Email")
		if err != nil {
			return err
		}
		code, err := flagOrPrompt(out, codeFlag, "Code")
		if err != nil {
			return err
		}

		svc := auth.New(cmd.Context(), env.api, env.store)
		user, err := svc.Verify(cmd.Context(), email, code)
		if err != nil {
			return describeError("verify", err)
		}
		fmt.Fprintf(out, "Email verified. Signed in as %s.\n", user.Email)
		return nil
	}),
}

var resendCmd = &cobra.Command{
	Use:   "resend-code",
	Short: "Send a new verification code",
	RunE: withClient(func(cmd *cobra.Command, args []string, env *clientEnv) error {
		out := cmd.OutOrStdout()
		email, err := flagOrPrompt(out, emailFlag, "Email")
		if err != nil {
			return err
		}
		resp, err := env.api.ResendCode(cmd.Context(), email)
		if err != nil {
			return describeError("resend code", err)
		}
		fmt.Fprintln(out, resp.Message)
		return nil
	}),
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in",
	RunE: withClient(func(cmd *cobra.Command, args []string, env *clientEnv) error {
		out := cmd.OutOrStdout()
		email, err := flagOrPrompt(out, emailFlag, "Email")
		if err != nil {
			return err
		}
		password, err := promptPassword(out)
		if err != nil {
			return err
		}

		svc := auth.New(cmd.Context(), env.api, env.store)
		user, err := svc.Login(cmd.Context(), email, password)
		if err != nil {
			return describeError("login", err)
		}
		fmt.Fprintf(out, "Signed in as %s (%s).\n", user.Email, user.Role)
		if !user.EmailVerified {
			fmt.Fprintln(out, "Your email address is not verified yet.")
		}
		return nil
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the local session",
	RunE: withClient(func(cmd *cobra.Command, args []string, env *clientEnv) error {
		svc := auth.New(cmd.Context(), env.api, env.store)
		if err := svc.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: withClient(func(cmd *cobra.Command, args []string, env *clientEnv) error {
		svc := auth.New(cmd.Context(), env.api, env.store)
		if !svc.IsAuthenticated() {
			return errNotSignedIn
		}

		profile, err := env.api.Me(cmd.Context(), svc.Token())
		if err != nil {
			return sessionError(cmd, svc, "whoami", err)
		}
		if err := svc.UpdateUser(cmd.Context(), profile); err != nil {
			return err
		}
		printProfile(cmd, profile)
		return nil
	}),
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage your profile",
}

var profileSetNameCmd = &cobra.Command{
	Use:   "set-name <name>",
	Short: "Change your display name",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, args []string, env *clientEnv) error {
		svc := auth.New(cmd.Context(), env.api, env.store)
		if !svc.IsAuthenticated() {
			return errNotSignedIn
		}

		profile, err := env.api.UpdateProfile(cmd.Context(), svc.Token(), args[0])
		if err != nil {
			return sessionError(cmd, svc, "update profile", err)
		}
		if err := svc.UpdateUser(cmd.Context(), profile); err != nil {
			return err
		}
		printProfile(cmd, profile)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(registerCmd, verifyCmd, resendCmd, loginCmd, logoutCmd, whoamiCmd, profileCmd)
	profileCmd.AddCommand(profileSetNameCmd)

	for _, c := range []*cobra.Command{registerCmd, verifyCmd, resendCmd, loginCmd} {
		c.Flags().StringVar(&emailFlag, "email", "", "account email address")
	}
	registerCmd.Flags().StringVar(&nameFlag, "name", "", "display name")
	verifyCmd.Flags().StringVar(&codeFlag, "code", "", "six-digit verification code")
}

// sessionError signs the user out locally when the server no longer
// accepts the token.
func sessionError(cmd *cobra.Command, svc *auth.Service, action string, err error) error {
	if api.IsUnauthorized(err) {
		_ = svc.Logout(cmd.Context())
	}
	return describeError(action, err)
}

func printProfile(cmd *cobra.Command, p types.UserProfile) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:       %d\n", p.ID)
	fmt.Fprintf(out, "email:    %s\n", p.Email)
	fmt.Fprintf(out, "name:     %s\n", p.Name)
	fmt.Fprintf(out, "role:     %s\n", p.Role)
	fmt.Fprintf(out, "verified: %t\n", p.EmailVerified)
}
