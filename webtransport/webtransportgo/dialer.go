package webtransportgo

import (
	"context"
	"crypto/tls"
	"net/http"

	"github.com/okdaichi/moqlite/quic"
	"github.com/okdaichi/moqlite/webtransport"
	quicgo_webtransportgo "github.com/quic-go/webtransport-go"
)

var _ webtransport.DialAddrFunc = Dial

// Dial opens a WebTransport session to addr, an https URL.
func Dial(ctx context.Context, addr string, header http.Header, tlsConfig *tls.Config) (*http.Response, quic.Connection, error) {
	d := quicgo_webtransportgo.Dialer{
		TLSClientConfig: tlsConfig,
	}
	rsp, sess, err := d.Dial(ctx, addr, header)
	if err != nil {
		return rsp, nil, wrapError(err, 0)
	}

	return rsp, WrapSession(sess), nil
}
