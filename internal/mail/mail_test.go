package mail

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/quizdesk/internal/config"
)

var testFrom = mail.Address{Name: "Quizdesk", Address: "quizdesk@example.com"}

func TestParseAddress(t *testing.T) {
	got, err := ParseAddress(" Ana <ana@example.com> ")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", got)

	for _, bad := range []string{"", "ana", "ana@", "@example.com"} {
		_, err := ParseAddress(bad)
		assert.ErrorIs(t, err, ErrInvalidAddress, "address %q", bad)
	}
}

func TestTransportError(t *testing.T) {
	err := &TransportError{Transport: "smtp", To: "a@b.c", Err: context.DeadlineExceeded}

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "mail transport smtp")
	assert.Contains(t, err.Error(), `"a@b.c"`)
}

func TestCompose_PlainText(t *testing.T) {
	now := time.Date(2026, 1, 3, 8, 0, 0, 0, time.UTC)
	raw := string(compose(testFrom, "ana@example.com", Message{Subject: "Novas perguntas", Text: "line 1\nline 2"}, now))

	assert.Contains(t, raw, "From: \"Quizdesk\" <quizdesk@example.com>\r\n")
	assert.Contains(t, raw, "To: ana@example.com\r\n")
	assert.Contains(t, raw, "Subject: Novas perguntas\r\n")
	assert.Contains(t, raw, "Content-Type: text/plain; charset=UTF-8\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nline 1\r\nline 2"))
}

func TestCompose_EncodesSubject(t *testing.T) {
	raw := string(compose(testFrom, "a@b.c", Message{Subject: "Questões", Text: "x"}, time.Now()))
	assert.Contains(t, raw, "Subject: =?utf-8?q?Quest=C3=B5es?=\r\n")
}

func TestCompose_Alternative(t *testing.T) {
	raw := string(compose(testFrom, "a@b.c", Message{Subject: "s", Text: "plain", HTML: "<p>rich</p>"}, time.Now()))

	assert.Contains(t, raw, "Content-Type: multipart/alternative; boundary=")
	assert.Contains(t, raw, "plain")
	assert.Contains(t, raw, "<p>rich</p>")
	assert.Less(t, strings.Index(raw, "text/plain"), strings.Index(raw, "text/html"))
}

func TestConsoleTransport(t *testing.T) {
	tr := NewConsoleTransport(testFrom, nil)

	require.NoError(t, tr.Send(context.Background(), "ana@example.com", Message{Subject: "hi", Text: "body"}))
	sent := tr.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ana@example.com", sent[0].To)
	assert.Equal(t, "hi", sent[0].Message.Subject)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var terr *TransportError
	require.ErrorAs(t, tr.Send(ctx, "x@example.com", Message{}), &terr)
	assert.Len(t, tr.Sent(), 1)
}

func TestOpen(t *testing.T) {
	base := config.MailConfig{From: "q@example.com", FromName: "Q", SMTPHost: "smtp.example.com", SMTPPort: 25, SendGridAPIKey: "k"}

	tests := []struct {
		transport string
		want      any
	}{
		{"console", &ConsoleTransport{}},
		{"smtp", &SMTPTransport{}},
		{"sendgrid", &SendGridTransport{}},
	}
	for _, tt := range tests {
		cfg := base
		cfg.Transport = tt.transport
		tr, err := Open(cfg, nil)
		require.NoError(t, err, tt.transport)
		assert.IsType(t, tt.want, tr)
		assert.NoError(t, Close(tr))
	}

	cfg := base
	cfg.Transport = "pigeon"
	_, err := Open(cfg, nil)
	assert.Error(t, err)

	cfg.Transport = "smtp"
	cfg.SMTPHost = ""
	_, err = Open(cfg, nil)
	assert.Error(t, err)
}

func TestOpenRelayTransport(t *testing.T) {
	cfg := config.MailConfig{Transport: "nats", RelayTransport: "console", From: "q@example.com"}
	tr, err := OpenRelayTransport(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &ConsoleTransport{}, tr)

	cfg.RelayTransport = "nats"
	_, err = OpenRelayTransport(cfg, nil)
	assert.Error(t, err)
}
