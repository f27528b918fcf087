package moqt

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okdaichi/moqlite/certs"
	"github.com/okdaichi/moqlite/quic"
	"github.com/okdaichi/moqlite/quic/quicgo"
	"github.com/okdaichi/moqlite/webtransport"
	"github.com/okdaichi/moqlite/webtransport/webtransportgo"
)

// Client dials MOQ Lite servers over WebTransport or native QUIC.
//
// The URL scheme selects the transport:
//
//	https://host:port/path  WebTransport
//	moqt://host:port        native QUIC with the NextProtoMOQ ALPN
//	http://host:port/path   WebTransport to https://host:port/path, trusting
//	                        the self-signed certificate whose SHA-256 hash is
//	                        served at http://host:port/certificate.sha256
//
// The http scheme exists for local development only.
type Client struct {
	/*
	 * TLS configuration
	 */
	TLSConfig *tls.Config

	/*
	 * QUIC configuration
	 */
	QUICConfig *quic.Config

	/*
	 * MOQ Configuration
	 */
	Config *Config

	/*
	 * Logger
	 */
	Logger *slog.Logger

	// DialQUICFunc dials moqt URLs. Defaults to quicgo.DialAddrEarly.
	DialQUICFunc quic.DialAddrFunc

	// DialWebTransportFunc dials https and http URLs. Defaults to
	// webtransportgo.Dial.
	DialWebTransportFunc webtransport.DialAddrFunc

	// HTTPClient fetches certificate fingerprints for http URLs. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	initOnce sync.Once
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[*Connection]struct{}

	inShutdown atomic.Bool
}

func (c *Client) init() {
	c.initOnce.Do(func() {
		c.conns = make(map[*Connection]struct{})

		if c.Logger != nil {
			c.logger = c.Logger
		} else {
			c.logger = slog.New(slog.DiscardHandler)
		}
	})
}

func (c *Client) dialTimeout() time.Duration {
	if c.Config != nil && c.Config.SetupTimeout != 0 {
		return c.Config.SetupTimeout
	}
	return 5 * time.Second
}

// Dial connects to urlStr and performs the session handshake.
func (c *Client) Dial(ctx context.Context, urlStr string) (*Connection, error) {
	if c.shuttingDown() {
		return nil, ErrClientClosed
	}

	c.init()

	u, err := url.Parse(urlStr)
	if err != nil {
		c.logger.Error("failed to parse URL",
			"url", urlStr,
			"error", err,
		)
		return nil, err
	}

	switch u.Scheme {
	case "https":
		return c.dialWebTransport(ctx, u, c.TLSConfig)
	case "moqt":
		return c.dialQUIC(ctx, u)
	case "http":
		return c.dialInsecure(ctx, u)
	default:
		c.logger.Error("unsupported URL scheme",
			"scheme", u.Scheme,
		)
		return nil, ErrInvalidScheme
	}
}

func (c *Client) dialInsecure(ctx context.Context, u *url.URL) (*Connection, error) {
	logger := c.logger.With("host", u.Host)

	fetchCtx, cancel := context.WithTimeout(ctx, c.dialTimeout())
	defer cancel()

	fingerprintURL := url.URL{Scheme: "http", Host: u.Host, Path: certs.FingerprintPath}
	fp, err := certs.FetchFingerprint(fetchCtx, c.HTTPClient, fingerprintURL.String())
	if err != nil {
		logger.Error("failed to fetch certificate fingerprint",
			"error", err,
		)
		return nil, err
	}

	logger.Warn("trusting self-signed certificate by fingerprint; do not use in production")

	secure := *u
	secure.Scheme = "https"

	return c.dialWebTransport(ctx, &secure, certs.Pin(c.TLSConfig, fp))
}

func (c *Client) dialWebTransport(ctx context.Context, u *url.URL, tlsConfig *tls.Config) (*Connection, error) {
	logger := c.logger.With("host", u.Host)

	if tlsConfig != nil {
		tlsConfig = tlsConfig.Clone()
	} else {
		tlsConfig = &tls.Config{}
	}
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{NextProtoH3}
	}

	dial := c.DialWebTransportFunc
	if dial == nil {
		dial = webtransportgo.Dial
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout())
	defer cancel()

	logger.Debug("dialing WebTransport")

	_, conn, err := dial(dialCtx, u.String(), http.Header{}, tlsConfig)
	if err != nil {
		logger.Error("WebTransport dial failed",
			"error", err,
		)
		return nil, err
	}

	return c.connect(ctx, conn)
}

func (c *Client) dialQUIC(ctx context.Context, u *url.URL) (*Connection, error) {
	logger := c.logger.With("host", u.Host)

	var tlsConfig *tls.Config
	if c.TLSConfig != nil {
		tlsConfig = c.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{}
	}
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{NextProtoMOQ}
	}

	dial := c.DialQUICFunc
	if dial == nil {
		dial = quicgo.DialAddrEarly
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout())
	defer cancel()

	logger.Debug("dialing QUIC")

	conn, err := dial(dialCtx, u.Host, tlsConfig, c.QUICConfig)
	if err != nil {
		logger.Error("QUIC dial failed",
			"error", err,
		)
		return nil, err
	}

	return c.connect(ctx, conn)
}

func (c *Client) connect(ctx context.Context, conn quic.Connection) (*Connection, error) {
	config := c.Config.Clone()
	if config == nil {
		config = &Config{}
	}
	if config.Logger == nil {
		config.Logger = c.logger
	}

	sess, err := Connect(ctx, conn, config)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.shuttingDown() {
		c.mu.Unlock()
		sess.CloseWithError(NoError, "client closed")
		return nil, ErrClientClosed
	}
	c.conns[sess] = struct{}{}
	c.mu.Unlock()

	context.AfterFunc(sess.Context(), func() {
		c.mu.Lock()
		delete(c.conns, sess)
		c.mu.Unlock()
	})

	return sess, nil
}

func (c *Client) shuttingDown() bool {
	return c.inShutdown.Load()
}

// Close closes every connection dialed by the client. Later dials fail with
// ErrClientClosed.
func (c *Client) Close() error {
	c.inShutdown.Store(true)

	c.init()

	c.logger.Info("closing client")

	for _, sess := range c.snapshot() {
		sess.Close()
	}

	return nil
}

// Shutdown waits for every connection to be closed by its owner or the peer.
// When ctx ends first, the remaining connections are closed with
// GoAwayTimeoutErrorCode and ctx's error is returned.
func (c *Client) Shutdown(ctx context.Context) error {
	c.inShutdown.Store(true)

	c.init()

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()

	for {
		conns := c.snapshot()
		if len(conns) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			c.logger.Warn("graceful shutdown timed out",
				"connections", len(conns),
			)
			for _, sess := range conns {
				sess.CloseWithError(GoAwayTimeoutErrorCode, "shutdown timed out")
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) snapshot() []*Connection {
	c.mu.Lock()
	defer c.mu.Unlock()

	conns := make([]*Connection, 0, len(c.conns))
	for sess := range c.conns {
		conns = append(conns, sess)
	}
	return conns
}
