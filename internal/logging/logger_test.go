package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "info", "json").Info("batch staged", "rows", 3)

	out := buf.String()
	if !strings.HasPrefix(out, "{") || !strings.Contains(out, `"rows":3`) {
		t.Errorf("json output = %q", out)
	}
}

func TestFromContext_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "info", "text"))
	defer slog.SetDefault(prev)

	var ctx context.Context
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	FromContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), "request_id=") {
		t.Errorf("log line missing request_id: %q", buf.String())
	}
}

func TestRollbarHandler_ForwardsErrorsOnly(t *testing.T) {
	var reported [][]interface{}
	h := &rollbarHandler{
		next:   slog.NewTextHandler(&bytes.Buffer{}, nil),
		report: func(args ...interface{}) { reported = append(reported, args) },
	}
	logger := slog.New(h).With("component", "committer")

	logger.Info("ignored")
	logger.Error("row persistence failed", "error", errors.New("duplicate key"), "row", 4)

	if len(reported) != 1 {
		t.Fatalf("reported %d items, want 1", len(reported))
	}
	err, ok := reported[0][0].(error)
	if !ok || err.Error() != "duplicate key" {
		t.Fatalf("first argument = %#v, want the logged error", reported[0][0])
	}
	extras := reported[0][1].(map[string]interface{})
	if extras["component"] != "committer" || extras["row"] != "4" {
		t.Errorf("extras = %v", extras)
	}
	if extras["message"] != "row persistence failed" {
		t.Errorf("extras[message] = %v", extras["message"])
	}
}

func TestEnableRollbar_NoToken(t *testing.T) {
	prev := slog.Default()
	flush := EnableRollbar("", "test")
	flush()
	if slog.Default() != prev {
		t.Error("EnableRollbar without token replaced the default logger")
	}
}
