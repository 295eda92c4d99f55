package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"
)

// SMTPTransport delivers through an SMTP relay. STARTTLS and AUTH PLAIN are
// used when the server offers them.
type SMTPTransport struct {
	host string
	addr string
	from mail.Address
	auth smtp.Auth
}

// NewSMTPTransport returns a transport for host:port. Authentication is
// skipped when user is empty.
func NewSMTPTransport(host string, port int, user, password string, from mail.Address) *SMTPTransport {
	t := &SMTPTransport{
		host: host,
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		from: from,
	}
	if user != "" {
		t.auth = smtp.PlainAuth("", user, password, host)
	}
	return t
}

func (t *SMTPTransport) Send(ctx context.Context, to string, msg Message) error {
	if err := t.send(ctx, to, msg); err != nil {
		return &TransportError{Transport: "smtp", To: to, Err: err}
	}
	return nil
}

func (t *SMTPTransport) send(ctx context.Context, to string, msg Message) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, t.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("greeting: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: t.host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if t.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(t.auth); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}

	if err := c.Mail(t.from.Address); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(compose(t.from, to, msg, time.Now())); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end data: %w", err)
	}
	return c.Quit()
}
