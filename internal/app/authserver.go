package app

import (
	"github.com/spf13/cobra"

	"github.com/panyam/onesession/authserver"
)

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(authserverCmd)
}

var authserverCmd = &cobra.Command{
	Use:   "authserver",
	Short: "Run the development auth service",
	Long: `Run a development implementation of the remote auth service. Users are
kept in memory unless authserver.sqlite_path is set.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var users authserver.UserStore = authserver.NewMemoryUserStore()
		if path := cfg.AuthServer.SQLitePath; path != "" {
			db, err := openSQLite(path)
			if err != nil {
				return err
			}
			if users, err = authserver.NewGORMUserStore(db); err != nil {
				return err
			}
		}

		srv := authserver.New(users, authserver.NewTokenIssuer(cfg.AuthServer.JWTSecret, cfg.AuthServer.TokenTTL))
		srv.APIPrefix = cfg.APIPrefix
		return listenAndServe(cmd.Context(), cfg.AuthServer.Listen, srv.Handler())
	},
}
