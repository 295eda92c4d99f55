package mail

import (
	"fmt"
	"log/slog"
	"net/mail"

	"github.com/JonMunkholm/quizdesk/internal/config"
)

// Open builds the transport selected by cfg.Transport.
func Open(cfg config.MailConfig, log *slog.Logger) (Transport, error) {
	from := mail.Address{Name: cfg.FromName, Address: cfg.From}

	switch cfg.Transport {
	case "console", "":
		return NewConsoleTransport(from, log), nil
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("smtp transport: SMTP_HOST is not set")
		}
		return NewSMTPTransport(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, from), nil
	case "sendgrid":
		return NewSendGridTransport(cfg.SendGridAPIKey, from), nil
	case "nats":
		nc, err := DialNATS(cfg.NATSURL, "quizdesk-server")
		if err != nil {
			return nil, err
		}
		return NewNATSTransport(nc, cfg.NATSSubject), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
}

// OpenRelayTransport builds the transport a relay delivers with.
func OpenRelayTransport(cfg config.MailConfig, log *slog.Logger) (Transport, error) {
	if cfg.RelayTransport == "nats" {
		return nil, fmt.Errorf("relay transport cannot be nats")
	}
	cfg.Transport = cfg.RelayTransport
	return Open(cfg, log)
}
