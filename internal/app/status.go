package app

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/panyam/onesession"
)

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(statusCmd, watchCmd)
}

func printSession(w io.Writer, s onesession.Session) {
	switch {
	case !s.Authenticated() && s.Paired():
		fmt.Fprintln(w, "signed out")
	case s.Paired():
		fmt.Fprintf(w, "signed in as %s\n", s.Email)
	default:
		// One key has changed and the other has not arrived yet
		fmt.Fprintf(w, "updating (token present: %t, email: %q)\n", s.Authenticated(), s.Email)
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the local session without contacting the remote service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flows, done, err := openSession()
		if err != nil {
			return err
		}
		defer done()

		printSession(cmd.OutOrStdout(), flows.Profile())
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print every session change until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flows, done, err := openSession()
		if err != nil {
			return err
		}
		defer done()

		out := cmd.OutOrStdout()
		printSession(out, flows.Profile())
		cancel := flows.Session.OnChange(func(s onesession.Session) {
			printSession(out, s)
		})
		defer cancel()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}
