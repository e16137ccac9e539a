// Package config loads onesession settings from defaults, an optional config
// file, ONESESSION_* environment variables and command line flags.
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/panyam/onesession/internal/logger"
)

// EnvPrefix is prepended to every environment variable, e.g. ONESESSION_SERVER_URL
const EnvPrefix = "ONESESSION"

// Store backends
const (
	BackendMemory = "memory"
	BackendFS     = "fs"
	BackendRedis  = "redis"
	BackendGORM   = "gorm"
)

type (
	// Config overall data structure.
	Config struct {
		ServerURL  string        `mapstructure:"server_url" validate:"required,url"`
		APIPrefix  string        `mapstructure:"api_prefix"`
		Store      Store         `mapstructure:"store"`
		Web        Web           `mapstructure:"web"`
		AuthServer AuthServer    `mapstructure:"authserver"`
		Log        logger.Log    `mapstructure:"log"`
		Metrics    Metrics       `mapstructure:"metrics"`
		Timeout    time.Duration `mapstructure:"timeout" validate:"gte=0"`
	}

	// Store selects and configures the credential store backend.
	Store struct {
		Backend      string        `mapstructure:"backend" validate:"oneof=memory fs redis gorm"`
		Path         string        `mapstructure:"path"`
		RedisAddr    string        `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
		RedisPrefix  string        `mapstructure:"redis_prefix"`
		SQLitePath   string        `mapstructure:"sqlite_path" validate:"required_if=Backend gorm"`
		PollInterval time.Duration `mapstructure:"poll_interval" validate:"gte=0"`
	}

	// Web configures the session web host.
	Web struct {
		Listen string `mapstructure:"listen" validate:"required"`
	}

	// AuthServer configures the development auth server.
	AuthServer struct {
		Listen     string        `mapstructure:"listen" validate:"required"`
		JWTSecret  string        `mapstructure:"jwt_secret" validate:"required,min=16"`
		SQLitePath string        `mapstructure:"sqlite_path"`
		TokenTTL   time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
	}

	// Metrics toggles the prometheus endpoint.
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	}
)

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("api_prefix", "/api")
	v.SetDefault("timeout", 0)

	v.SetDefault("store.backend", BackendFS)
	v.SetDefault("store.path", "")
	v.SetDefault("store.redis_addr", "")
	v.SetDefault("store.redis_prefix", "onesession")
	v.SetDefault("store.sqlite_path", "")
	v.SetDefault("store.poll_interval", time.Second)

	v.SetDefault("web.listen", "localhost:8081")

	v.SetDefault("authserver.listen", "localhost:8080")
	v.SetDefault("authserver.jwt_secret", "onesession-dev-secret-key")
	v.SetDefault("authserver.sqlite_path", "")
	v.SetDefault("authserver.token_ttl", time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.report_caller", false)
	v.SetDefault("log.console.enabled", true)
	v.SetDefault("log.console.pretty", true)
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.name", "onesession.log")
	v.SetDefault("log.file.max_size", 10)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.max_age", 28)

	v.SetDefault("metrics.enabled", false)
}

// New returns a viper instance with defaults and environment binding set up.
// configFile is optional.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}
	return c, validate(c)
}

// validate checks struct tags; cross-field rules are expressed there too.
func validate(c Config) error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}
