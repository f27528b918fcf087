package quicgo

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/okdaichi/moqlite/quic"
	quicgo_quicgo "github.com/quic-go/quic-go"
)

var (
	_ quic.ListenAddrFunc = ListenAddrEarly
	_ quic.DialAddrFunc   = DialAddrEarly
)

// ListenAddrEarly listens for QUIC connections on addr, accepting them
// before the handshake completes.
func ListenAddrEarly(addr string, tlsConfig *tls.Config, quicConfig *quic.Config) (quic.Listener, error) {
	ln, err := quicgo_quicgo.ListenAddrEarly(addr, tlsConfig, quicConfig)
	if err != nil {
		return nil, err
	}
	return &listenerWrapper{listener: ln}, nil
}

// DialAddrEarly dials addr with 0-RTT enabled when the session allows it.
func DialAddrEarly(ctx context.Context, addr string, tlsConfig *tls.Config, quicConfig *quic.Config) (quic.Connection, error) {
	conn, err := quicgo_quicgo.DialAddrEarly(ctx, addr, tlsConfig, quicConfig)
	if err != nil {
		return nil, err
	}
	return Wrap(conn), nil
}

var _ quic.Listener = (*listenerWrapper)(nil)

type listenerWrapper struct {
	listener *quicgo_quicgo.EarlyListener
}

func (wrapper *listenerWrapper) Accept(ctx context.Context) (quic.Connection, error) {
	conn, err := wrapper.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return Wrap(conn), nil
}

func (wrapper *listenerWrapper) Addr() net.Addr {
	return wrapper.listener.Addr()
}

func (wrapper *listenerWrapper) Close() error {
	return wrapper.listener.Close()
}
