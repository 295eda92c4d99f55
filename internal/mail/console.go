package mail

import (
	"context"
	"log/slog"
	"net/mail"
	"sync"
	"time"
)

// Delivery is a message accepted by the console transport.
type Delivery struct {
	To      string
	Message Message
	At      time.Time
}

// ConsoleTransport logs messages instead of sending them. It is the default
// for local development and keeps every delivery for inspection.
type ConsoleTransport struct {
	from mail.Address
	log  *slog.Logger

	mu   sync.Mutex
	sent []Delivery
}

// NewConsoleTransport logs through log; nil uses slog.Default().
func NewConsoleTransport(from mail.Address, log *slog.Logger) *ConsoleTransport {
	if log == nil {
		log = slog.Default()
	}
	return &ConsoleTransport{from: from, log: log}
}

func (t *ConsoleTransport) Send(ctx context.Context, to string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Transport: "console", To: to, Err: err}
	}

	now := time.Now()
	t.log.Info("mail (console)",
		"from", t.from.String(),
		"to", to,
		"subject", msg.Subject,
		"body", string(compose(t.from, to, msg, now)))

	t.mu.Lock()
	t.sent = append(t.sent, Delivery{To: to, Message: msg, At: now})
	t.mu.Unlock()
	return nil
}

// Sent returns a copy of the deliveries so far.
func (t *ConsoleTransport) Sent() []Delivery {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Delivery(nil), t.sent...)
}
