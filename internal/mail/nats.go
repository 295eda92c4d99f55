package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Envelope is the wire form of a queued message.
type Envelope struct {
	To      string    `json:"to"`
	Message Message   `json:"message"`
	Queued  time.Time `json:"queued_at"`
}

// NATSTransport hands messages to a NATS subject. A Relay consuming the
// subject performs the actual delivery.
type NATSTransport struct {
	conn    *nats.Conn
	subject string
}

// DialNATS connects to url for use by a NATSTransport or Relay.
func DialNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

// NewNATSTransport publishes to subject on conn.
func NewNATSTransport(conn *nats.Conn, subject string) *NATSTransport {
	return &NATSTransport{conn: conn, subject: subject}
}

// Send publishes the message and waits for the server to acknowledge it.
func (t *NATSTransport) Send(ctx context.Context, to string, msg Message) error {
	data, err := json.Marshal(Envelope{To: to, Message: msg, Queued: time.Now().UTC()})
	if err != nil {
		return &TransportError{Transport: "nats", To: to, Err: err}
	}
	if err := t.conn.Publish(t.subject, data); err != nil {
		return &TransportError{Transport: "nats", To: to, Err: err}
	}
	if err := t.conn.FlushWithContext(ctx); err != nil {
		return &TransportError{Transport: "nats", To: to, Err: err}
	}
	return nil
}

// Close drains the connection.
func (t *NATSTransport) Close() error {
	return t.conn.Drain()
}

// Relay consumes queued envelopes and delivers them with another transport.
// Relays sharing a queue group split the work.
type Relay struct {
	conn      *nats.Conn
	subject   string
	queue     string
	transport Transport
	timeout   time.Duration
	log       *slog.Logger
}

// NewRelay returns a relay delivering through transport, bounding each send
// by timeout.
func NewRelay(conn *nats.Conn, subject, queue string, transport Transport, timeout time.Duration, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		conn:      conn,
		subject:   subject,
		queue:     queue,
		transport: transport,
		timeout:   timeout,
		log:       log,
	}
}

// Run subscribes and delivers until ctx is cancelled, then drains the
// subscription so in-flight messages finish.
func (r *Relay) Run(ctx context.Context) error {
	sub, err := r.conn.QueueSubscribe(r.subject, r.queue, func(m *nats.Msg) {
		r.handle(ctx, m.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.subject, err)
	}
	r.log.Info("mail relay subscribed", "subject", r.subject, "queue", r.queue)

	<-ctx.Done()
	return sub.Drain()
}

// handle delivers one envelope. Failures are logged; the message is not
// redelivered.
func (r *Relay) handle(ctx context.Context, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.log.Error("discarding malformed mail envelope", "error", err, "size", len(data))
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.transport.Send(sendCtx, env.To, env.Message); err != nil {
		r.log.Error("relay delivery failed", "error", err, "to", env.To)
		return
	}
	r.log.Debug("relayed mail", "to", env.To, "latency", time.Since(env.Queued))
}
