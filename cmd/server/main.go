package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/quizdesk/internal/app"
	"github.com/JonMunkholm/quizdesk/internal/config"
	"github.com/JonMunkholm/quizdesk/internal/logging"
	"github.com/JonMunkholm/quizdesk/internal/web"
)

// stagingSweepInterval is how often expired staged batches are dropped.
const stagingSweepInterval = 5 * time.Minute

// Replaced in tests.
var (
	loadConfig    = config.Load
	enableRollbar = logging.EnableRollbar
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run starts the server and blocks until it stops. Errors are logged before
// they are returned, and the error reporter is flushed on every path.
func run() error {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return err
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	flush := enableRollbar(cfg.Logging.RollbarToken, cfg.Logging.Environment)
	defer flush()

	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		return err
	}

	scheduler, err := a.Scheduler()
	if err != nil {
		slog.Error("failed to schedule notifications", "error", err)
		a.Close(ctx)
		return err
	}

	server := web.NewServer(cfg, web.Deps{
		Imports:       a.Imports,
		Digests:       a.Digests,
		Notifications: a.Dispatcher,
		DB:            a.Store,
	})

	// Background jobs stop when the server shuts down
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go a.Imports.RunJanitor(jobCtx, stagingSweepInterval)
	scheduler.Start()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let running imports finish before the listener closes
		if status := a.Imports.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := a.Imports.WaitForImports(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		if err := scheduler.Stop(shutdownCtx); err != nil {
			slog.Warn("scheduled job still running", "error", err)
		}
		if err := a.Close(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		cancelJobs()
		scheduler.Stop(context.Background())
		a.Close(context.Background())
		return err
	}
	<-stopped
	slog.Info("server stopped")
	return nil
}
