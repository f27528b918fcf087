package moqt

import (
	"context"
	"errors"

	"github.com/okdaichi/moqlite/moqt/internal/message"
	"github.com/okdaichi/moqlite/quic"
)

// Cause translates a context cancellation reason into a package-specific error type.
// When the context belongs to a stream and was canceled because of a QUIC stream
// error, Cause converts it into the AnnounceError, SubscribeError or GroupError
// matching the stream type. Application errors become SessionError.
// Other reasons are returned unchanged.
func Cause(ctx context.Context) error {
	reason := context.Cause(ctx)
	if reason == nil {
		return nil
	}

	if st, ok := ctx.Value(&biStreamTypeCtxKey).(message.StreamType); ok {
		return wrapStreamError(st, false, reason)
	}
	if st, ok := ctx.Value(&uniStreamTypeCtxKey).(message.StreamType); ok {
		return wrapStreamError(st, true, reason)
	}

	return wrapStreamError(message.StreamTypeSession, false, reason)
}

func withBiStreamType(ctx context.Context, st message.StreamType) context.Context {
	return context.WithValue(ctx, &biStreamTypeCtxKey, st)
}

func withUniStreamType(ctx context.Context, st message.StreamType) context.Context {
	return context.WithValue(ctx, &uniStreamTypeCtxKey, st)
}

// wrapStreamError converts transport errors observed on a stream of type st.
func wrapStreamError(st message.StreamType, uni bool, err error) error {
	var strErr *quic.StreamError
	if errors.As(err, &strErr) {
		if uni {
			if st == message.StreamTypeGroup {
				return &GroupError{StreamError: strErr}
			}
			return err
		}

		switch st {
		case message.StreamTypeSession:
			// Stream error codes are not application error codes, so a reset
			// session stream is reported as a protocol violation.
			return &SessionError{
				ApplicationError: &quic.ApplicationError{
					Remote:       strErr.Remote,
					ErrorCode:    quic.ApplicationErrorCode(ProtocolViolationErrorCode),
					ErrorMessage: "moqt: reset session stream",
				},
			}
		case message.StreamTypeAnnounce:
			return &AnnounceError{StreamError: strErr}
		case message.StreamTypeSubscribe:
			return &SubscribeError{StreamError: strErr}
		}
		return err
	}

	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) {
		return &SessionError{ApplicationError: appErr}
	}

	return err
}

var biStreamTypeCtxKey int
var uniStreamTypeCtxKey int
