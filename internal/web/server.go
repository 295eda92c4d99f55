// Package web provides the JSON API for staging, correcting and committing
// question imports.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/JonMunkholm/quizdesk/internal/config"
	"github.com/JonMunkholm/quizdesk/internal/core"
	"github.com/JonMunkholm/quizdesk/internal/notify"
	"github.com/JonMunkholm/quizdesk/internal/web/middleware"
)

// Imports is the import pipeline as seen by the handlers.
type Imports interface {
	Stage(ctx context.Context, session, fileName, contentType string, data []byte) (*core.Batch, error)
	Current(session string) (*core.Batch, error)
	Commit(ctx context.Context, session string, corrections core.Corrections) (*core.ImportOutcome, *core.Batch, error)
	Cancel(session string)
	LimiterStatus() core.LimiterStatus
}

// DigestSender sends the daily digest on demand.
type DigestSender interface {
	SendDigest(ctx context.Context) (int, error)
}

// DispatchStats reports notification delivery counters.
type DispatchStats interface {
	Stats() notify.Stats
}

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators a Server serves. Digests, Notifications and
// DB may be nil.
type Deps struct {
	Imports       Imports
	Digests       DigestSender
	Notifications DispatchStats
	DB            Pinger
}

// Server is the HTTP server for the admin API.
type Server struct {
	cfg     *config.Config
	deps    Deps
	router  *chi.Mux
	server  *http.Server
	limiter *rateLimiter
}

// NewServer creates a Server with its routes mounted.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		router:  chi.NewRouter(),
		limiter: newRateLimiter(cfg.Security.RateLimit, time.Minute),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

	s.router.Use(securityHeaders)

	// Without an allow-list the API is same-origin only.
	if len(s.cfg.Security.AllowedOrigins) > 0 {
		s.router.Use(cors.New(cors.Options{
			AllowedOrigins:   s.cfg.Security.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders:   []string{"Content-Type", "X-API-Key", "Authorization"},
			AllowCredentials: true,
			MaxAge:           300,
		}).Handler)
	}
	s.router.Use(s.limiter.middleware)
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKeyAuth(&s.cfg.Security))

			r.Route("/imports", func(r chi.Router) {
				r.Use(sessionMiddleware(s.cfg.Session))

				r.Post("/", s.handleStage)
				r.Get("/current", s.handleCurrent)
				r.Get("/current/failing.csv", s.handleExportFailing)
				r.Post("/current/commit", s.handleCommit)
				r.Delete("/current", s.handleCancel)
			})

			r.Post("/notifications/digest", s.handleSendDigest)
		})
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.stop()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
