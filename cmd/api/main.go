package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"

	"github.com/subshare/subshare/internal/api"
	"github.com/subshare/subshare/internal/infra/logging"
	"github.com/subshare/subshare/internal/infra/pgutils"
	"github.com/subshare/subshare/internal/services/booking"
	"github.com/subshare/subshare/internal/services/notify"
	"github.com/subshare/subshare/internal/services/wallet"
	"github.com/subshare/subshare/pkg/envconf"
	"github.com/subshare/subshare/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	dbConns, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	clk := clock.New()

	engine := booking.NewEngine(dbConns, notify.NewLogNotifier(), clk)
	walletSrv := wallet.New(dbConns)

	// Timer state is volatile; rebuild it from booking rows before taking
	// requests so no pending auto-cancel is lost across the restart.
	err = engine.RecoverPendingCancellations(ctx)
	if err != nil {
		return fmt.Errorf("recover pending cancellations: %w", err)
	}

	shutdownqueue.Add(func(context.Context) error {
		slog.Info("Stop cancellation timers")
		engine.Close()

		return nil
	})

	sweeper := booking.NewExpirySweeper(engine, cfg.SweepInterval, clk)
	sweeper.Start(ctx)

	shutdownqueue.Add(func(context.Context) error {
		slog.Info("Stop expiry sweeper")
		sweeper.Stop()

		return nil
	})

	// --- HTTP server ---
	srv := api.NewServer(cfg.Port, engine, walletSrv)

	// Register HTTP server graceful shutdown
	shutdownqueue.Add(func(c context.Context) error {
		slog.Info("Shut down server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	// Run server
	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("API started")

	// --- Wait until either context cancels or server errors out ---
	select {
	case <-ctx.Done():
		// graceful path; deferred shutdownqueue.Shutdown will run
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}
