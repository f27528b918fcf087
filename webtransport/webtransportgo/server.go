package webtransportgo

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"

	"github.com/okdaichi/moqlite/quic"
	"github.com/okdaichi/moqlite/quic/quicgo"
	"github.com/okdaichi/moqlite/webtransport"
	"github.com/quic-go/quic-go/http3"
	quicgo_webtransportgo "github.com/quic-go/webtransport-go"
)

// ErrNotQUICGoConn is returned by ServeQUICConn for connections that were not
// produced by the quicgo package.
var ErrNotQUICGoConn = errors.New("webtransportgo: connection is not a quic-go connection")

// NewServer creates a WebTransport server whose HTTP/3 requests are routed to
// handler. checkOrigin may be nil to accept every origin.
func NewServer(addr string, tlsConfig *tls.Config, quicConfig *quic.Config, checkOrigin func(*http.Request) bool, handler http.Handler) webtransport.Server {
	if checkOrigin == nil {
		checkOrigin = acceptAnyOrigin
	}
	return &serverWrapper{
		server: &quicgo_webtransportgo.Server{
			H3: http3.Server{
				Addr:       addr,
				TLSConfig:  tlsConfig,
				QUICConfig: quicConfig,
				Handler:    handler,
			},
			CheckOrigin: checkOrigin,
		},
	}
}

func acceptAnyOrigin(*http.Request) bool { return true }

var _ webtransport.Server = (*serverWrapper)(nil)

type serverWrapper struct {
	server *quicgo_webtransportgo.Server
}

func (wrapper *serverWrapper) Upgrade(w http.ResponseWriter, r *http.Request) (quic.Connection, error) {
	sess, err := wrapper.server.Upgrade(w, r)
	if err != nil {
		return nil, err
	}
	return WrapSession(sess), nil
}

func (wrapper *serverWrapper) ServeQUICConn(conn quic.Connection) error {
	qconn, ok := quicgo.Unwrap(conn)
	if !ok {
		return ErrNotQUICGoConn
	}
	return wrapper.server.ServeQUICConn(qconn)
}

func (wrapper *serverWrapper) Close() error {
	return wrapper.server.Close()
}

func (wrapper *serverWrapper) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- wrapper.server.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
