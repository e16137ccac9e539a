package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/panyam/onesession"
	"github.com/panyam/onesession/client"
)

// ErrNotSignedIn is returned by commands that need a session
var ErrNotSignedIn = errors.New("not signed in, run 'onesession signin' first")

var (
	email    string
	password string
)

func init() { //nolint: gochecknoinits
	for _, cmd := range []*cobra.Command{signupCmd, signinCmd} {
		cmd.Flags().StringVar(&email, "email", "", "Account email")
		cmd.Flags().StringVar(&password, "password", "", "Account password")
	}
	rootCmd.AddCommand(signupCmd, signinCmd, meCmd, signoutCmd)
}

func credentials() onesession.Credentials {
	return onesession.Credentials{Email: email, Password: password}
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flows, done, err := openSession()
		if err != nil {
			return err
		}
		defer done()

		out := flows.Signup(cmd.Context(), credentials())
		if !out.OK() {
			return errors.New(out.Message(client.MsgSignupFailed))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Account created. Sign in with 'onesession signin'.")
		return nil
	},
}

var signinCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in and share the session with every process on this store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flows, done, err := openSession()
		if err != nil {
			return err
		}
		defer done()

		out := flows.Signin(cmd.Context(), credentials())
		if !out.OK() {
			return errors.New(out.Message(client.MsgSigninFailed))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", flows.Profile().Email)
		return nil
	},
}

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the signed-in account, as confirmed by the remote service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flows, done, err := openSession()
		if err != nil {
			return err
		}
		defer done()

		guard := &onesession.Guard{Session: flows.Session}
		if !guard.Evaluate().Allow {
			return ErrNotSignedIn
		}

		id, err := flows.Verify(cmd.Context())
		if err != nil {
			return errors.New(client.ErrorMessage(err, client.MsgFetchIdentityFailed))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Email: %s\n", id.Email)
		return nil
	},
}

var signoutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out everywhere this store is shared",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flows, done, err := openSession()
		if err != nil {
			return err
		}
		defer done()

		flows.Signout(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}
