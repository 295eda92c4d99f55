package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// lookupFunc resolves one environment variable.
type lookupFunc func(key string) string

// Load reads configuration from the process environment, applies defaults
// and validates the result.
func Load() (*Config, error) {
	return loadFrom(os.Getenv)
}

// LoadMap reads configuration from an explicit key/value map. Binaries use
// Load; LoadMap serves tools that build settings programmatically.
func LoadMap(values map[string]string) (*Config, error) {
	return loadFrom(func(key string) string { return values[key] })
}

// LoadWith reads the process environment like Load, except that keys in
// overrides take precedence over the environment.
func LoadWith(overrides map[string]string) (*Config, error) {
	return loadFrom(func(key string) string {
		if v, ok := overrides[key]; ok {
			return v
		}
		return os.Getenv(key)
	})
}

// MustLoad loads configuration and panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

func loadFrom(lookup lookupFunc) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct walks nested structs and fills tagged fields.
func loadStruct(v reflect.Value, lookup lookupFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, lookup); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := strings.TrimSpace(lookup(envName))
		if alt := field.Tag.Get("envAlt"); value == "" && alt != "" {
			value = strings.TrimSpace(lookup(alt))
		}

		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField converts value to the field's kind.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		var items []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		field.Set(reflect.ValueOf(items))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

var (
	validLevels     = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats    = map[string]bool{"text": true, "json": true}
	validTransports = map[string]bool{"console": true, "smtp": true, "sendgrid": true, "nats": true}
	validCharsets   = map[string]bool{"": true, "windows-1252": true, "iso-8859-1": true}
)

// Validate checks cross-field constraints and reports every failure at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, fmt.Sprintf("DB_MIN_CONNS (%d) must be between 0 and DB_MAX_CONNS (%d)",
			c.Database.MinConns, c.Database.MaxConns))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, "UPLOAD_MAX_BYTES must be positive")
	}
	if c.Upload.MaxConcurrent <= 0 {
		errs = append(errs, "UPLOAD_MAX_CONCURRENT must be positive")
	}
	if c.Upload.MaxWait <= 0 {
		errs = append(errs, "UPLOAD_MAX_WAIT must be positive")
	}
	if !validCharsets[strings.ToLower(c.Upload.FallbackCharset)] {
		errs = append(errs, fmt.Sprintf("UPLOAD_FALLBACK_CHARSET (%q) must be windows-1252 or iso-8859-1", c.Upload.FallbackCharset))
	}

	if c.Session.CookieName == "" {
		errs = append(errs, "SESSION_COOKIE_NAME must not be empty")
	}
	if c.Session.StagingTTL <= 0 {
		errs = append(errs, "STAGING_TTL must be positive")
	}

	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	if c.Security.RateLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_PER_MINUTE must be positive")
	}

	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	errs = append(errs, c.Mail.validate()...)

	if c.Notify.Workers <= 0 {
		errs = append(errs, "NOTIFY_WORKERS must be positive")
	}
	if c.Notify.QueueSize <= 0 {
		errs = append(errs, "NOTIFY_QUEUE_SIZE must be positive")
	}
	if _, err := c.Notify.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("NOTIFY_TIMEZONE (%q) is not a known location", c.Notify.Timezone))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (m *MailConfig) validate() []string {
	var errs []string

	if !validTransports[m.Transport] {
		errs = append(errs, fmt.Sprintf("MAIL_TRANSPORT (%q) must be one of: console, smtp, sendgrid, nats", m.Transport))
	}
	if m.Transport == "nats" && !validTransports[m.RelayTransport] {
		errs = append(errs, fmt.Sprintf("MAILER_RELAY_TRANSPORT (%q) must be one of: console, smtp, sendgrid", m.RelayTransport))
	}
	if m.RelayTransport == "nats" {
		errs = append(errs, "MAILER_RELAY_TRANSPORT cannot be nats")
	}
	if m.Transport == "sendgrid" && m.SendGridAPIKey == "" {
		errs = append(errs, "SENDGRID_API_KEY is required when MAIL_TRANSPORT=sendgrid")
	}
	if m.From == "" {
		errs = append(errs, "MAIL_FROM must not be empty")
	}
	if m.SendTimeout <= 0 {
		errs = append(errs, "MAIL_SEND_TIMEOUT must be positive")
	}

	return errs
}

// String returns a representation safe for logs; secrets are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Addr: %q}, ", c.Server.Addr())
	fmt.Fprintf(&b, "Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Upload: {MaxBytes: %d, MaxConcurrent: %d}, ",
		c.Upload.MaxBytes, c.Upload.MaxConcurrent)
	fmt.Fprintf(&b, "Security: {APIKeys: %d configured}, ", len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Mail: {Transport: %q, From: %q}, ", c.Mail.Transport, c.Mail.From)
	fmt.Fprintf(&b, "Notify: {Workers: %d, QueueSize: %d}, ", c.Notify.Workers, c.Notify.QueueSize)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
