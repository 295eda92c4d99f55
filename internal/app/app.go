// Package app wires configuration into the running import pipeline. The
// server and the CLI share it so both build the same graph.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/quizdesk/internal/config"
	"github.com/JonMunkholm/quizdesk/internal/core"
	"github.com/JonMunkholm/quizdesk/internal/mail"
	"github.com/JonMunkholm/quizdesk/internal/notify"
	"github.com/JonMunkholm/quizdesk/internal/store"
)

// App holds the long-lived components.
type App struct {
	Config     *config.Config
	Pool       *pgxpool.Pool
	Store      *store.Store
	Transport  mail.Transport
	Dispatcher *notify.Dispatcher
	Digests    *notify.Digests
	Imports    *core.Service
}

// New connects to the database, applies migrations when configured and
// builds the mail and import components.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	pool, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Pool: pool, Store: store.New(pool)}

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(cfg.Database.URL); err != nil {
			pool.Close()
			return nil, err
		}
	}

	if err := a.buildNotifications(); err != nil {
		pool.Close()
		return nil, err
	}

	var notifier core.CreationNotifier
	if cfg.Notify.OnImport {
		notifier = notify.NewImportNotifier(a.Store, a.Dispatcher, cfg.Server.PublicURL)
	}

	a.Imports, err = core.NewService(core.ServiceConfig{
		MaxBytes:        cfg.Upload.MaxBytes,
		MaxConcurrent:   cfg.Upload.MaxConcurrent,
		MaxWait:         cfg.Upload.MaxWait,
		StagingTTL:      cfg.Session.StagingTTL,
		FallbackCharset: cfg.Upload.FallbackCharset,
	}, a.Store, notifier)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	return a, nil
}

func (a *App) buildNotifications() error {
	cfg := a.Config

	templates, err := notify.LoadTemplates(cfg.Notify.TemplatesFile)
	if err != nil {
		return err
	}
	loc, err := cfg.Notify.Location()
	if err != nil {
		return fmt.Errorf("notify timezone: %w", err)
	}

	a.Transport, err = mail.Open(cfg.Mail, slog.Default())
	if err != nil {
		return fmt.Errorf("open mail transport: %w", err)
	}
	slog.Info("mail transport ready", "transport", cfg.Mail.Transport)

	a.Dispatcher = notify.NewDispatcher(a.Transport, templates, notify.Options{
		Workers:     cfg.Notify.Workers,
		QueueSize:   cfg.Notify.QueueSize,
		SendTimeout: cfg.Mail.SendTimeout,
	})
	a.Digests = notify.NewDigests(a.Store, a.Dispatcher, loc, cfg.Server.PublicURL)
	return nil
}

// Scheduler returns the cron scheduler for digests and reminders.
func (a *App) Scheduler() (*notify.Scheduler, error) {
	loc, err := a.Config.Notify.Location()
	if err != nil {
		return nil, err
	}
	return notify.NewScheduler(a.Digests, a.Config.Notify.DigestCron, a.Config.Notify.ReminderCron, loc)
}

// Close drains pending notifications, then releases the transport and the
// pool. ctx bounds the drain.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Dispatcher != nil {
		if err := a.Dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain notifications: %w", err))
		}
	}
	if a.Transport != nil {
		if err := mail.Close(a.Transport); err != nil {
			errs = append(errs, fmt.Errorf("close mail transport: %w", err))
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return errors.Join(errs...)
}
