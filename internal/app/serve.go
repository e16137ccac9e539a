package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/panyam/onesession/internal/metrics"
	"github.com/panyam/onesession/web"
)

const shutdownTimeout = 5 * time.Second

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the signup, signin and profile pages",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flows, closeSession, err := openSession()
		if err != nil {
			return err
		}
		defer closeSession()

		srv, err := web.New(flows)
		if err != nil {
			return err
		}
		if cfg.Metrics.Enabled {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			if err := metrics.Register(reg); err != nil {
				return err
			}
			srv.Registry = reg
		}

		return listenAndServe(cmd.Context(), cfg.Web.Listen, srv.Handler())
	},
}

// listenAndServe runs handler until SIGINT/SIGTERM, then shuts down gracefully
func listenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
