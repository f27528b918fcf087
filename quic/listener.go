package quic

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/quic-go/quic-go"
)

// Config is the quic-go transport configuration, shared by every transport
// in this module.
type Config = quic.Config

// DialAddrFunc establishes a connection to addr.
type DialAddrFunc func(ctx context.Context, addr string, tlsConfig *tls.Config, quicConfig *Config) (Connection, error)

// ListenAddrFunc creates a listener bound to addr.
type ListenAddrFunc func(addr string, tlsConfig *tls.Config, quicConfig *Config) (Listener, error)

// Listener accepts incoming QUIC connections.
type Listener interface {
	// Accept waits for and returns the next incoming connection.
	Accept(ctx context.Context) (Connection, error)

	Addr() net.Addr

	// Close closes the listener and stops accepting new connections.
	Close() error
}
