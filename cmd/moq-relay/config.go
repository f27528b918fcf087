package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// relayConfig is read from the environment, after an optional .env file.
type relayConfig struct {
	// Addr is the UDP address serving QUIC and WebTransport.
	Addr string `env:"MOQ_ADDR" envDefault:":4443"`

	// HTTPAddr serves /metrics and, with a self-signed certificate,
	// /certificate.sha256. Empty disables it.
	HTTPAddr string `env:"MOQ_HTTP_ADDR" envDefault:":4480"`

	// CertFile and KeyFile load the TLS certificate. When both are empty a
	// self-signed certificate is generated for CertHosts.
	CertFile  string   `env:"MOQ_CERT_FILE"`
	KeyFile   string   `env:"MOQ_KEY_FILE"`
	CertHosts []string `env:"MOQ_CERT_HOSTS" envSeparator:","`

	// AllowedOrigins restricts WebTransport Origin headers. Empty allows all.
	AllowedOrigins []string `env:"MOQ_ALLOWED_ORIGINS" envSeparator:","`

	SetupTimeout    time.Duration `env:"MOQ_SETUP_TIMEOUT" envDefault:"5s"`
	InfoInterval    time.Duration `env:"MOQ_INFO_INTERVAL" envDefault:"1s"`
	ShutdownTimeout time.Duration `env:"MOQ_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// loadConfig loads .env files, if present, and parses the environment.
func loadConfig(files ...string) (relayConfig, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return relayConfig{}, fmt.Errorf("failed to load .env: %w", err)
	}

	return parseConfig(env.Options{})
}

func parseConfig(opts env.Options) (relayConfig, error) {
	cfg, err := env.ParseAsWithOptions[relayConfig](opts)
	if err != nil {
		return relayConfig{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return relayConfig{}, err
	}

	return cfg, nil
}

func (cfg relayConfig) validate() error {
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return errors.New("MOQ_CERT_FILE and MOQ_KEY_FILE must be set together")
	}

	if !slices.Contains([]string{"text", "json"}, cfg.LogFormat) {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if cfg.ShutdownTimeout <= 0 {
		return errors.New("MOQ_SHUTDOWN_TIMEOUT must be positive")
	}

	return nil
}

func (cfg relayConfig) selfSigned() bool {
	return cfg.CertFile == ""
}

func newLogger(cfg relayConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(cfg.LogLevel))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// checkOrigin returns nil when every origin is allowed.
func (cfg relayConfig) checkOrigin() func(*http.Request) bool {
	if len(cfg.AllowedOrigins) == 0 {
		return nil
	}

	allowed := slices.Clone(cfg.AllowedOrigins)
	return func(r *http.Request) bool {
		return slices.Contains(allowed, r.Header.Get("Origin"))
	}
}
