// Command moq-relay accepts MOQ Lite sessions over QUIC and WebTransport and
// forwards every broadcast announced by one session to all the others.
//
// Configuration is read from the environment; see relayConfig. Without a
// certificate file the relay generates a self-signed certificate and serves
// its fingerprint at http://MOQ_HTTP_ADDR/certificate.sha256, so local
// clients can dial http:// URLs.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okdaichi/moqlite/certs"
	"github.com/okdaichi/moqlite/moqt"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("relay stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg relayConfig, logger *slog.Logger) error {
	tlsConfig, info, err := loadTLS(cfg)
	if err != nil {
		return err
	}
	if info != nil {
		logger.Info("generated self-signed certificate",
			"fingerprint", info.FingerprintHex(),
			"expires", info.NotAfter.Format(time.RFC3339),
		)
	}

	server := &moqt.Server{
		Addr:      cfg.Addr,
		TLSConfig: tlsConfig,
		Config: &moqt.Config{
			CheckHTTPOrigin: cfg.checkOrigin(),
			SetupTimeout:    cfg.SetupTimeout,
			InfoInterval:    cfg.InfoInterval,
		},
		Logger:  logger,
		Handler: newRelay(logger),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("relay listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, moqt.ErrServerClosed) {
			return fmt.Errorf("relay server: %w", err)
		}
		return nil
	})

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           newHTTPHandler(info),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var sg errgroup.Group
		sg.Go(func() error {
			err := server.Shutdown(shutdownCtx)
			if errors.Is(err, context.DeadlineExceeded) {
				logger.Warn("closed remaining sessions after shutdown timeout")
				return nil
			}
			return err
		})
		if httpServer != nil {
			sg.Go(func() error {
				return httpServer.Shutdown(shutdownCtx)
			})
		}
		return sg.Wait()
	})

	return g.Wait()
}

// loadTLS returns the configured certificate, or a self-signed one together
// with its fingerprint.
func loadTLS(cfg relayConfig) (*tls.Config, *certs.CertInfo, error) {
	if !cfg.selfSigned() {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}}, nil, nil
	}

	info, err := certs.Generate(0, cfg.CertHosts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate certificate: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{info.TLSCert}}, info, nil
}

// newHTTPHandler serves metrics and, when info is set, the certificate
// fingerprint.
func newHTTPHandler(info *certs.CertInfo) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if info != nil {
		mux.Handle(certs.FingerprintPath, certs.Handler(info))
	}
	return mux
}
