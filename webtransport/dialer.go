package webtransport

import (
	"context"
	"crypto/tls"
	"net/http"

	"github.com/okdaichi/moqlite/quic"
)

// DialAddrFunc establishes a WebTransport session with the server at addr,
// an https URL. It returns the HTTP response of the CONNECT request.
type DialAddrFunc func(ctx context.Context, addr string, header http.Header, tlsConfig *tls.Config) (*http.Response, quic.Connection, error)
