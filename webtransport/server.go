package webtransport

import (
	"context"
	"net/http"

	"github.com/okdaichi/moqlite/quic"
)

// Server upgrades HTTP/3 requests to WebTransport sessions.
type Server interface {
	// Upgrade turns an extended CONNECT request into a session.
	Upgrade(w http.ResponseWriter, r *http.Request) (quic.Connection, error)

	// ServeQUICConn serves HTTP/3 on a connection that negotiated the h3 ALPN.
	ServeQUICConn(conn quic.Connection) error

	Close() error
	Shutdown(ctx context.Context) error
}
