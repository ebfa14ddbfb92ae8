// Command statusd serves the read-only status panel over HTTP: runner
// state, usage summaries, and log listings for dashboards.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/drudge/internal/config"
	"github.com/phrazzld/drudge/internal/platform/logger"
	"github.com/phrazzld/drudge/internal/statusd"
	"github.com/phrazzld/drudge/internal/usage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "statusd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.Setup(cfg.Log.Level)

	ledger := usage.NewLedger(cfg.State.UsageFile)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Status.Port),
		Handler:           statusd.New(cfg, ledger, log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("status panel listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("status panel stopped")
	return nil
}
