// Package mail delivers notification e-mails. A Transport sends one message
// to one address; the console, smtp, sendgrid and nats transports are
// selected by configuration.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"time"
)

// ErrInvalidAddress is reported for recipient addresses that do not parse.
var ErrInvalidAddress = errors.New("invalid recipient address")

// Message is a rendered e-mail.
type Message struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// Transport sends one message to one recipient. Implementations must be safe
// for concurrent use and should honor ctx for cancellation and deadlines.
type Transport interface {
	Send(ctx context.Context, to string, msg Message) error
}

// TransportError is a failed delivery attempt.
type TransportError struct {
	Transport string
	To        string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mail transport %s: send to %q: %v", e.Transport, e.To, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseAddress validates a recipient address and returns its bare form.
func ParseAddress(addr string) (string, error) {
	a, err := mail.ParseAddress(strings.TrimSpace(addr))
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidAddress, addr, err)
	}
	return a.Address, nil
}

// Close releases resources held by t, if any.
func Close(t Transport) error {
	if c, ok := t.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// compose builds an RFC 5322 message. With an HTML part the body is
// multipart/alternative.
func compose(from mail.Address, to string, msg Message, now time.Time) []byte {
	var b bytes.Buffer
	h := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }

	h("From", from.String())
	h("To", to)
	h("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	h("Date", now.Format(time.RFC1123Z))
	h("MIME-Version", "1.0")

	if msg.HTML == "" {
		h("Content-Type", "text/plain; charset=UTF-8")
		h("Content-Transfer-Encoding", "8bit")
		b.WriteString("\r\n")
		b.WriteString(crlf(msg.Text))
		return b.Bytes()
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h("Content-Type", "multipart/alternative; boundary="+w.Boundary())
	b.WriteString("\r\n")

	for _, part := range []struct{ ctype, content string }{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	} {
		pw, _ := w.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.ctype},
			"Content-Transfer-Encoding": {"8bit"},
		})
		io.WriteString(pw, crlf(part.content))
	}
	w.Close()
	b.Write(body.Bytes())
	return b.Bytes()
}

func crlf(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
