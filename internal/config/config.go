// Package config loads quizdesk settings from environment variables.
// Every setting has a default except the database URL; Load validates the
// result so a misconfigured deployment fails at startup.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Session  SessionConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Mail     MailConfig
	Notify   NotifyConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds a whole request including a commit (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// PublicURL is the link placed in notification e-mails.
	PublicURL string `env:"PUBLIC_URL" default:"http://localhost:8080"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required).
	// DB_URL is accepted for compatibility.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies pending migrations at server start (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// UploadConfig holds spreadsheet intake settings.
type UploadConfig struct {
	// MaxBytes is the largest accepted upload (default: 10MiB)
	MaxBytes int64 `env:"UPLOAD_MAX_BYTES" default:"10485760"`

	// MaxConcurrent is the number of imports decoded or committed at once (default: 4)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"4"`

	// MaxWait is how long a request waits for an import slot (default: 10s)
	MaxWait time.Duration `env:"UPLOAD_MAX_WAIT" default:"10s"`

	// FallbackCharset decodes non UTF-8 text files: windows-1252 or iso-8859-1.
	// Empty rejects them with an encoding error.
	FallbackCharset string `env:"UPLOAD_FALLBACK_CHARSET"`
}

// SessionConfig holds admin session and staging settings.
type SessionConfig struct {
	CookieName string `env:"SESSION_COOKIE_NAME" default:"quizdesk_session"`

	// Secure marks the session cookie HTTPS-only (default: false for local dev)
	Secure bool `env:"SESSION_COOKIE_SECURE" default:"false"`

	// StagingTTL drops a staged batch that has not been touched for this long (default: 2h)
	StagingTTL time.Duration `env:"STAGING_TTL" default:"2h"`
}

// SecurityConfig holds API access settings.
type SecurityConfig struct {
	// APIKeys is a comma-separated list of admin API keys.
	APIKeys []string `env:"API_KEYS"`

	// RequireAPIKey rejects admin routes without a valid key (default: true)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"true"`

	// AllowedOrigins is the CORS allow-list for the admin frontend.
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// forwarding headers are honored.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RateLimit is the number of requests a client IP may make per minute (default: 120)
	RateLimit int `env:"RATE_LIMIT_PER_MINUTE" default:"120"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// RollbarToken enables forwarding of error records to Rollbar.
	RollbarToken string `env:"ROLLBAR_TOKEN"`

	Environment string `env:"APP_ENV" default:"development"`
}

// MailConfig selects and configures the mail transport.
type MailConfig struct {
	// Transport is one of: console, smtp, sendgrid, nats (default: console)
	Transport string `env:"MAIL_TRANSPORT" default:"console"`

	From     string `env:"MAIL_FROM" default:"quizdesk@localhost"`
	FromName string `env:"MAIL_FROM_NAME" default:"Quizdesk"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" default:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	SendGridAPIKey string `env:"SENDGRID_API_KEY"`

	NATSURL     string `env:"NATS_URL" default:"nats://127.0.0.1:4222"`
	NATSSubject string `env:"NATS_MAIL_SUBJECT" default:"quizdesk.mail"`

	// NATSQueue is the queue group used by cmd/mailer workers.
	NATSQueue string `env:"NATS_MAIL_QUEUE" default:"quizdesk-mailer"`

	// RelayTransport is the transport cmd/mailer delivers with: console, smtp or sendgrid.
	RelayTransport string `env:"MAILER_RELAY_TRANSPORT" default:"smtp"`

	// SendTimeout bounds one send attempt (default: 20s)
	SendTimeout time.Duration `env:"MAIL_SEND_TIMEOUT" default:"20s"`
}

// NotifyConfig holds notification dispatch and schedule settings.
type NotifyConfig struct {
	Workers   int `env:"NOTIFY_WORKERS" default:"4"`
	QueueSize int `env:"NOTIFY_QUEUE_SIZE" default:"256"`

	// TemplatesFile overrides the built-in message templates (YAML).
	TemplatesFile string `env:"NOTIFY_TEMPLATES_FILE"`

	// DigestCron schedules the daily digest; "off" disables it.
	DigestCron string `env:"NOTIFY_DIGEST_CRON" default:"0 8 * * *"`

	// ReminderCron schedules pending-answer reminders; "off" disables it.
	ReminderCron string `env:"NOTIFY_REMINDER_CRON" default:"0 16 * * 1-5"`

	// Timezone decides what "today" means for digests and reminders.
	Timezone string `env:"NOTIFY_TIMEZONE" default:"UTC"`

	// OnImport sends new-question e-mails after each commit (default: true)
	OnImport bool `env:"NOTIFY_ON_IMPORT" default:"true"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Location returns the configured notification timezone.
func (c *NotifyConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
