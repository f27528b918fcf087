package main

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	tests := map[string]struct {
		environ map[string]string
		want    func(t *testing.T, cfg relayConfig)
		wantErr bool
	}{
		"defaults": {
			environ: map[string]string{},
			want: func(t *testing.T, cfg relayConfig) {
				assert.Equal(t, ":4443", cfg.Addr)
				assert.Equal(t, ":4480", cfg.HTTPAddr)
				assert.Equal(t, 5*time.Second, cfg.SetupTimeout)
				assert.Equal(t, time.Second, cfg.InfoInterval)
				assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.Equal(t, "text", cfg.LogFormat)
				assert.True(t, cfg.selfSigned())
				assert.Nil(t, cfg.checkOrigin())
			},
		},
		"overrides": {
			environ: map[string]string{
				"MOQ_ADDR":            "0.0.0.0:9000",
				"MOQ_CERT_FILE":       "relay.crt",
				"MOQ_KEY_FILE":        "relay.key",
				"MOQ_CERT_HOSTS":      "relay.local,10.0.0.1",
				"MOQ_ALLOWED_ORIGINS": "https://a.example,https://b.example",
				"MOQ_INFO_INTERVAL":   "250ms",
				"LOG_LEVEL":           "debug",
				"LOG_FORMAT":          "json",
			},
			want: func(t *testing.T, cfg relayConfig) {
				assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
				assert.False(t, cfg.selfSigned())
				assert.Equal(t, []string{"relay.local", "10.0.0.1"}, cfg.CertHosts)
				assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
				assert.Equal(t, 250*time.Millisecond, cfg.InfoInterval)
				assert.Equal(t, "json", cfg.LogFormat)
			},
		},
		"certificate without key": {
			environ: map[string]string{"MOQ_CERT_FILE": "relay.crt"},
			wantErr: true,
		},
		"unknown log format": {
			environ: map[string]string{"LOG_FORMAT": "xml"},
			wantErr: true,
		},
		"unknown log level": {
			environ: map[string]string{"LOG_LEVEL": "verbose"},
			wantErr: true,
		},
		"malformed duration": {
			environ: map[string]string{"MOQ_SETUP_TIMEOUT": "soon"},
			wantErr: true,
		},
		"zero shutdown timeout": {
			environ: map[string]string{"MOQ_SHUTDOWN_TIMEOUT": "0s"},
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg, err := parseConfig(env.Options{Environment: tt.environ})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.want(t, cfg)
		})
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MOQ_HTTP_ADDR=127.0.0.1:9090\n"), 0o600))

	t.Setenv("MOQ_HTTP_ADDR", "")
	os.Unsetenv("MOQ_HTTP_ADDR")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.HTTPAddr)
}

func TestLoadConfig_MissingDotEnv(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestCheckOrigin(t *testing.T) {
	cfg := relayConfig{AllowedOrigins: []string{"https://app.example"}}
	check := cfg.checkOrigin()
	require.NotNil(t, check)

	tests := map[string]struct {
		origin string
		want   bool
	}{
		"allowed":   {origin: "https://app.example", want: true},
		"other":     {origin: "https://evil.example", want: false},
		"no origin": {origin: "", want: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r, err := http.NewRequest(http.MethodConnect, "https://relay.example/live", nil)
			require.NoError(t, err)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, check(r))
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := map[string]struct {
		cfg       relayConfig
		wantDebug bool
		wantJSON  bool
	}{
		"text info":  {cfg: relayConfig{LogLevel: "info", LogFormat: "text"}},
		"json debug": {cfg: relayConfig{LogLevel: "debug", LogFormat: "json"}, wantDebug: true, wantJSON: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(tt.cfg, &buf)

			logger.Debug("debug line")
			logger.Info("info line")

			out := buf.String()
			assert.Contains(t, out, "info line")
			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug line")))
			assert.Equal(t, tt.wantJSON, bytes.HasPrefix(buf.Bytes(), []byte("{")))
		})
	}
}
