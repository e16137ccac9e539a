// Package app implements the onesession commands.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/panyam/onesession/internal/config"
	"github.com/panyam/onesession/internal/logger"
)

var (
	configPath string // Path to the configuration file

	v   *viper.Viper
	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "onesession",
		Short: "onesession keeps one signed-in session across processes",
		Long: `onesession signs you in against a remote auth service and keeps the
resulting session in a shared credential store, so every process using the
same store sees sign-ins and sign-outs as they happen.`,
		Args:          cobra.OnlyValidArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if v, err = config.New(configPath); err != nil {
				return err
			}
			if err = bindFlags(cmd); err != nil {
				return err
			}
			if cfg, err = config.Load(v); err != nil {
				return err
			}
			return logger.Init(cfg.Log)
		},
	}
)

func init() { //nolint: gochecknoinits
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to a config file (yaml, toml or json)")
	flags.String("server-url", "", "Base URL of the remote auth service")
	flags.String("store", "", "Credential store backend: memory, fs, redis or gorm")
	flags.String("store-path", "", "Session file for the fs backend")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error")
}

// flagKeys maps persistent flags to config keys
var flagKeys = map[string]string{
	"server-url": "server_url",
	"store":      "store.backend",
	"store-path": "store.path",
	"log-level":  "log.level",
}

// bindFlags lets explicitly set flags override env and file values
func bindFlags(cmd *cobra.Command) error {
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
