package moqt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okdaichi/moqlite/quic"
	"github.com/okdaichi/moqlite/quic/quicgo"
	"github.com/okdaichi/moqlite/webtransport"
	"github.com/okdaichi/moqlite/webtransport/webtransportgo"
	"golang.org/x/sync/errgroup"
)

const shutdownPollInterval = 50 * time.Millisecond

// Server accepts MOQ Lite connections over native QUIC and WebTransport.
//
// A single QUIC listener carries both. Connections that negotiate
// NextProtoMOQ are handled directly; connections that negotiate NextProtoH3
// are handed to the WebTransport server, whose session requests come back
// through ServeWebTransport.
type Server struct {
	/*
	 * Server's Address
	 */
	Addr string

	/*
	 * TLS configuration
	 * Required by ListenAndServe. If NextProtos is empty, both NextProtoMOQ
	 * and NextProtoH3 are offered.
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

	// Handler is called for every established connection. If nil,
	// connections are kept open but nothing is published or consumed.
	Handler ConnectionHandler

	// ListenFunc creates the QUIC listener used by ListenAndServe.
	// Defaults to quicgo.ListenAddrEarly.
	ListenFunc quic.ListenAddrFunc

	// WebTransportServer serves HTTP/3 connections. If nil, a server routing
	// every request to ServeWebTransport is used.
	WebTransportServer webtransport.Server

	initOnce sync.Once
	logger   *slog.Logger

	mu        sync.Mutex
	listeners map[quic.Listener]struct{}
	conns     map[*Connection]struct{}

	inShutdown atomic.Bool
}

func (s *Server) init() {
	s.initOnce.Do(func() {
		s.listeners = make(map[quic.Listener]struct{})
		s.conns = make(map[*Connection]struct{})

		if s.Logger != nil {
			s.logger = s.Logger.With("address", s.Addr)
		} else {
			s.logger = slog.New(slog.DiscardHandler)
		}

		if s.WebTransportServer == nil {
			s.WebTransportServer = webtransportgo.NewServer(
				s.Addr,
				s.TLSConfig,
				s.QUICConfig,
				s.Config.checkHTTPOrigin(),
				http.HandlerFunc(s.handleWebTransport),
			)
		}

		s.logger.Debug("initialized server")
	})
}

// ListenAndServe listens on Addr and serves every accepted connection.
// It always returns a non-nil error; after Close or Shutdown it is
// ErrServerClosed.
func (s *Server) ListenAndServe() error {
	if s.shuttingDown() {
		return ErrServerClosed
	}

	s.init()

	if s.TLSConfig == nil {
		return errors.New("moqt: TLS configuration is required")
	}

	tlsConfig := s.TLSConfig.Clone()
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{NextProtoMOQ, NextProtoH3}
	}

	return s.listenAndServe(tlsConfig)
}

// ListenAndServeTLS is like ListenAndServe with a certificate loaded from
// certFile and keyFile.
func (s *Server) ListenAndServeTLS(certFile, keyFile string) error {
	if s.shuttingDown() {
		return ErrServerClosed
	}

	s.init()

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		s.logger.Error("failed to load X509 key pair",
			"cert_file", certFile,
			"key_file", keyFile,
			"error", err,
		)
		return err
	}

	var tlsConfig *tls.Config
	if s.TLSConfig != nil {
		tlsConfig = s.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{}
	}
	tlsConfig.Certificates = []tls.Certificate{cert}
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{NextProtoMOQ, NextProtoH3}
	}

	return s.listenAndServe(tlsConfig)
}

func (s *Server) listenAndServe(tlsConfig *tls.Config) error {
	// WebTransport sessions need QUIC datagrams negotiated on the listener.
	var quicConfig *quic.Config
	if s.QUICConfig != nil {
		quicConfig = s.QUICConfig.Clone()
	} else {
		quicConfig = &quic.Config{}
	}
	quicConfig.EnableDatagrams = true

	listen := s.ListenFunc
	if listen == nil {
		listen = quicgo.ListenAddrEarly
	}

	ln, err := listen(s.Addr, tlsConfig, quicConfig)
	if err != nil {
		s.logger.Error("failed to start QUIC listener",
			"error", err,
		)
		return err
	}

	return s.ServeQUICListener(ln)
}

// ServeQUICListener accepts connections from ln until it fails or the server
// is closed. The listener is closed by Close and Shutdown.
func (s *Server) ServeQUICListener(ln quic.Listener) error {
	if s.shuttingDown() {
		return ErrServerClosed
	}

	s.init()

	if !s.trackListener(ln, true) {
		ln.Close()
		return ErrServerClosed
	}
	defer s.trackListener(ln, false)

	s.logger.Info("listening for QUIC connections",
		"listen_address", ln.Addr(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}
			s.logger.Error("failed to accept QUIC connection",
				"error", err,
			)
			return err
		}

		go func() {
			err := s.ServeQUICConn(conn)
			if err != nil && !errors.Is(err, ErrServerClosed) {
				s.logger.Debug("connection ended",
					"remote_address", conn.RemoteAddr(),
					"error", err,
				)
			}
		}()
	}
}

// ServeQUICConn serves one QUIC connection according to its negotiated ALPN.
// It returns once the connection closes.
func (s *Server) ServeQUICConn(conn quic.Connection) error {
	if s.shuttingDown() {
		conn.CloseWithError(quic.ApplicationErrorCode(NoError), "server closed")
		return ErrServerClosed
	}

	s.init()

	logger := s.logger.With(
		"remote_address", conn.RemoteAddr(),
	)

	switch protocol := conn.ConnectionState().TLS.NegotiatedProtocol; protocol {
	case NextProtoH3:
		logger.Debug("serving HTTP/3 connection")
		return s.WebTransportServer.ServeQUICConn(conn)
	case NextProtoMOQ:
		logger.Debug("serving native QUIC connection")
		return s.serveConn(conn.Context(), conn)
	default:
		logger.Warn("unsupported negotiated protocol",
			"protocol", protocol,
		)
		conn.CloseWithError(quic.ApplicationErrorCode(ProtocolViolationErrorCode), "unsupported protocol")
		return fmt.Errorf("moqt: unsupported protocol %q", protocol)
	}
}

// ServeWebTransport upgrades r to a WebTransport session and serves it. It
// returns once the session closes.
func (s *Server) ServeWebTransport(w http.ResponseWriter, r *http.Request) error {
	if s.shuttingDown() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return ErrServerClosed
	}

	s.init()

	logger := s.logger.With(
		"remote_address", r.RemoteAddr,
		"path", r.URL.Path,
	)

	conn, err := s.WebTransportServer.Upgrade(w, r)
	if err != nil {
		logger.Warn("failed to upgrade to WebTransport",
			"error", err,
		)
		w.WriteHeader(http.StatusBadRequest)
		return err
	}

	logger.Debug("upgraded to WebTransport")

	return s.serveConn(r.Context(), conn)
}

func (s *Server) handleWebTransport(w http.ResponseWriter, r *http.Request) {
	if err := s.ServeWebTransport(w, r); err != nil && !errors.Is(err, ErrServerClosed) {
		s.logger.Debug("WebTransport session ended",
			"remote_address", r.RemoteAddr,
			"error", err,
		)
	}
}

func (s *Server) serveConn(ctx context.Context, conn quic.Connection) error {
	c, err := Accept(ctx, conn, s.connConfig())
	if err != nil {
		return err
	}

	if !s.trackConn(c, true) {
		c.CloseWithError(NoError, "server closed")
		return ErrServerClosed
	}
	defer s.trackConn(c, false)

	if s.Handler != nil {
		go s.Handler.ServeMOQ(c)
	}

	<-c.Context().Done()

	return c.Close()
}

func (s *Server) connConfig() *Config {
	config := s.Config.Clone()
	if config == nil {
		config = &Config{}
	}
	if config.Logger == nil {
		config.Logger = s.logger
	}
	return config
}

// Close immediately closes every listener and connection.
func (s *Server) Close() error {
	s.inShutdown.Store(true)

	s.init()

	s.logger.Info("closing server")

	var g errgroup.Group

	for _, ln := range s.snapshotListeners() {
		g.Go(ln.Close)
	}

	s.closeConns(NoError, "server closed")

	g.Go(s.WebTransportServer.Close)

	return g.Wait()
}

// Shutdown stops accepting connections and waits for the open ones to close.
// When ctx ends first, the remaining connections are closed with
// GoAwayTimeoutErrorCode and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)

	s.init()

	s.logger.Info("shutting down server")

	var g errgroup.Group
	for _, ln := range s.snapshotListeners() {
		g.Go(ln.Close)
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("failed to close listener",
			"error", err,
		)
	}

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()

	for {
		if s.numConns() == 0 {
			return s.WebTransportServer.Shutdown(ctx)
		}

		select {
		case <-ctx.Done():
			s.logger.Warn("graceful shutdown timed out",
				"connections", s.numConns(),
			)
			s.closeConns(GoAwayTimeoutErrorCode, "shutdown timed out")
			s.WebTransportServer.Close()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Server) shuttingDown() bool {
	return s.inShutdown.Load()
}

func (s *Server) trackListener(ln quic.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if add {
		if s.shuttingDown() {
			return false
		}
		s.listeners[ln] = struct{}{}
	} else {
		delete(s.listeners, ln)
	}
	return true
}

func (s *Server) trackConn(c *Connection, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if add {
		if s.shuttingDown() {
			return false
		}
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
	return true
}

func (s *Server) snapshotListeners() []quic.Listener {
	s.mu.Lock()
	defer s.mu.Unlock()

	lns := make([]quic.Listener, 0, len(s.listeners))
	for ln := range s.listeners {
		lns = append(lns, ln)
	}
	return lns
}

func (s *Server) closeConns(code SessionErrorCode, msg string) {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.CloseWithError(code, msg)
	}
}

func (s *Server) numConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
