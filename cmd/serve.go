// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/glasswing-dev/webnav/internal/navigator"
	"github.com/glasswing-dev/webnav/internal/observability"
	"github.com/glasswing-dev/webnav/internal/server"
)

const shutdownGracePeriod = 10 * time.Second

// serveCmd exposes the navigator as an HTTP/SSE service.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the navigation agent over HTTP with SSE result streaming",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		runner := navigator.NewRunner(appCfg, logger)
		srv := server.New(appCfg, runner, Version, logger).HTTPServer()

		g, gCtx := errgroup.WithContext(ctx)

		g.Go(func() error {
			logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down HTTP server")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
