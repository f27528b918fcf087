package webtransportgo

import (
	"context"
	"errors"
	"net"

	"github.com/okdaichi/moqlite/quic"
	quicgo_webtransportgo "github.com/quic-go/webtransport-go"
)

// WrapSession adapts a webtransport-go session to quic.Connection.
func WrapSession(sess *quicgo_webtransportgo.Session) quic.Connection {
	if sess == nil {
		return nil
	}
	return &sessionWrapper{sess: sess}
}

var _ quic.Connection = (*sessionWrapper)(nil)

type sessionWrapper struct {
	sess *quicgo_webtransportgo.Session
}

func (wrapper *sessionWrapper) AcceptStream(ctx context.Context) (quic.Stream, error) {
	stream, err := wrapper.sess.AcceptStream(ctx)
	if err != nil {
		return nil, wrapError(err, 0)
	}
	return streamWrapper{stream: stream}, nil
}

func (wrapper *sessionWrapper) AcceptUniStream(ctx context.Context) (quic.ReceiveStream, error) {
	stream, err := wrapper.sess.AcceptUniStream(ctx)
	if err != nil {
		return nil, wrapError(err, 0)
	}
	return receiveStreamWrapper{stream: stream}, nil
}

func (wrapper *sessionWrapper) CloseWithError(code quic.ApplicationErrorCode, msg string) error {
	return wrapError(wrapper.sess.CloseWithError(quicgo_webtransportgo.SessionErrorCode(code), msg), 0)
}

func (wrapper *sessionWrapper) ConnectionState() quic.ConnectionState {
	return wrapper.sess.ConnectionState()
}

func (wrapper *sessionWrapper) Context() context.Context {
	return wrapper.sess.Context()
}

func (wrapper *sessionWrapper) LocalAddr() net.Addr {
	return wrapper.sess.LocalAddr()
}

func (wrapper *sessionWrapper) OpenStream() (quic.Stream, error) {
	stream, err := wrapper.sess.OpenStream()
	if err != nil {
		return nil, wrapError(err, 0)
	}
	return streamWrapper{stream: stream}, nil
}

func (wrapper *sessionWrapper) OpenStreamSync(ctx context.Context) (quic.Stream, error) {
	stream, err := wrapper.sess.OpenStreamSync(ctx)
	if err != nil {
		return nil, wrapError(err, 0)
	}
	return streamWrapper{stream: stream}, nil
}

func (wrapper *sessionWrapper) OpenUniStream() (quic.SendStream, error) {
	stream, err := wrapper.sess.OpenUniStream()
	if err != nil {
		return nil, wrapError(err, 0)
	}
	return sendStreamWrapper{stream: stream}, nil
}

func (wrapper *sessionWrapper) OpenUniStreamSync(ctx context.Context) (quic.SendStream, error) {
	stream, err := wrapper.sess.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, wrapError(err, 0)
	}
	return sendStreamWrapper{stream: stream}, nil
}

func (wrapper *sessionWrapper) RemoteAddr() net.Addr {
	return wrapper.sess.RemoteAddr()
}

// wrapError translates webtransport-go errors into the quic error types.
func wrapError(err error, id quic.StreamID) error {
	if err == nil {
		return nil
	}

	var strErr *quicgo_webtransportgo.StreamError
	if errors.As(err, &strErr) {
		return &quic.StreamError{
			StreamID:  id,
			ErrorCode: quic.StreamErrorCode(strErr.ErrorCode),
			Remote:    strErr.Remote,
		}
	}

	var sessErr *quicgo_webtransportgo.SessionError
	if errors.As(err, &sessErr) {
		return &quic.ApplicationError{
			Remote:       sessErr.Remote,
			ErrorCode:    quic.ApplicationErrorCode(sessErr.ErrorCode),
			ErrorMessage: sessErr.Message,
		}
	}

	return err
}
