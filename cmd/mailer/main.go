// Command mailer consumes queued notification e-mails from NATS and
// delivers them with the configured relay transport.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/quizdesk/internal/config"
	"github.com/JonMunkholm/quizdesk/internal/logging"
	"github.com/JonMunkholm/quizdesk/internal/mail"
)

func main() {
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	// The relay needs no database or HTTP settings.
	cfg, err := config.LoadWith(map[string]string{
		"DATABASE_URL":    "postgres://unused",
		"REQUIRE_API_KEY": "false",
	})
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	flush := logging.EnableRollbar(cfg.Logging.RollbarToken, cfg.Logging.Environment)
	defer flush()

	log := slog.Default().With("component", "mailer")

	transport, err := mail.OpenRelayTransport(cfg.Mail, log)
	if err != nil {
		log.Error("failed to open relay transport", "error", err)
		os.Exit(1)
	}
	defer mail.Close(transport)

	conn, err := mail.DialNATS(cfg.Mail.NATSURL, "quizdesk-mailer")
	if err != nil {
		log.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relay := mail.NewRelay(conn, cfg.Mail.NATSSubject, cfg.Mail.NATSQueue, transport, cfg.Mail.SendTimeout, log)
	log.Info("mailer started", "transport", cfg.Mail.RelayTransport, "nats", cfg.Mail.NATSURL)

	if err := relay.Run(ctx); err != nil {
		log.Error("relay stopped", "error", err)
		os.Exit(1)
	}
	log.Info("mailer stopped")
}
