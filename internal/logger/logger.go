// Package logger configures the global zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/panyam/onesession/internal/metrics"
)

// ErrNoOutput is returned when neither console nor file output is enabled
// while logging is not disabled.
var ErrNoOutput = errors.New("log config enables no output")

// Console configures logging to stdout/stderr.
type Console struct {
	Enabled          bool `mapstructure:"enabled"`
	UseConsoleWriter bool `mapstructure:"pretty"`
}

// File configures a rolling log file.
type File struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	Name       string `mapstructure:"name"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// Log implements the logger config.
type Log struct {
	Level        string `mapstructure:"level"` // trace, debug, info, warn, error, disabled
	ReportCaller bool   `mapstructure:"report_caller"`

	Console Console `mapstructure:"console"`
	File    File    `mapstructure:"file"`
}

// LevelWriter sends warnings and above to ErrorWriter and everything else to
// InfoWriter.
type LevelWriter struct {
	io.Writer
	ErrorWriter io.Writer
	InfoWriter  io.Writer
}

// WriteLevel implements zerolog.LevelWriter.
func (lw *LevelWriter) WriteLevel(l zerolog.Level, p []byte) (n int, err error) {
	if l == zerolog.Disabled {
		return 0, nil
	}
	if l >= zerolog.WarnLevel {
		return lw.ErrorWriter.Write(p) //nolint:wrapcheck
	}
	return lw.InfoWriter.Write(p) //nolint:wrapcheck
}

func (lw *LevelWriter) Write(p []byte) (int, error) {
	return lw.InfoWriter.Write(p) //nolint:wrapcheck
}

// PrometheusHook counts log statements per level.
type PrometheusHook struct{}

// Run implements zerolog.Hook.
func (h PrometheusHook) Run(_ *zerolog.Event, level zerolog.Level, _ string) {
	if level != zerolog.NoLevel {
		metrics.LogStatements.WithLabelValues(level.String()).Inc()
	}
}

// Init configures log.Logger from cfg.
func Init(cfg Log) error {
	logLevel, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("loglevel %s is not supported", cfg.Level))
	}

	if logLevel == zerolog.TraceLevel {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack //nolint:reassign
	}
	zerolog.SetGlobalLevel(logLevel)

	var writers []io.Writer
	if cfg.Console.Enabled {
		writers = append(writers, NewConsoleWriter(cfg))
	}
	if cfg.File.Enabled {
		w, err := newRollingFile(cfg)
		if err != nil {
			return err
		}
		writers = append(writers, w)
	}
	if len(writers) == 0 && logLevel != zerolog.Disabled {
		return ErrNoOutput
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).Hook(PrometheusHook{}).With().Timestamp()
	if cfg.ReportCaller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	return nil
}

func newRollingFile(cfg Log) (io.Writer, error) {
	if err := os.MkdirAll(cfg.File.Path, 0o750); err != nil { //nolint: mnd
		return nil, errors.Wrap(err, "can't create log directory")
	}

	name := cfg.File.Name
	if name == "" {
		name = "onesession.log"
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.File.Path, name),
		MaxSize:    cfg.File.MaxSize,
		MaxAge:     cfg.File.MaxAge,
		MaxBackups: cfg.File.MaxBackups,
	}, nil
}

// NewConsoleWriter writes info and below to stdout and the rest to stderr.
func NewConsoleWriter(cfg Log) io.Writer {
	lw := &LevelWriter{ErrorWriter: os.Stderr, InfoWriter: os.Stdout}

	if cfg.Console.UseConsoleWriter {
		lw.ErrorWriter = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: zerolog.TimeFieldFormat}
		lw.InfoWriter = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: zerolog.TimeFieldFormat}
	}
	return lw
}
