package webtransportgo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okdaichi/moqlite/quic"
	quicgo_webtransportgo "github.com/quic-go/webtransport-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, wrapError(nil, 0))
	})

	t.Run("stream error", func(t *testing.T) {
		err := wrapError(fmt.Errorf("read: %w", &quicgo_webtransportgo.StreamError{
			ErrorCode: 3,
			Remote:    true,
		}), 8)

		var strErr *quic.StreamError
		require.ErrorAs(t, err, &strErr)
		assert.Equal(t, quic.StreamErrorCode(3), strErr.ErrorCode)
		assert.Equal(t, quic.StreamID(8), strErr.StreamID)
		assert.True(t, strErr.Remote)
	})

	t.Run("session error", func(t *testing.T) {
		err := wrapError(&quicgo_webtransportgo.SessionError{
			ErrorCode: 0x12,
			Message:   "unsupported version",
			Remote:    true,
		}, 0)

		var appErr *quic.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, quic.ApplicationErrorCode(0x12), appErr.ErrorCode)
		assert.Equal(t, "unsupported version", appErr.ErrorMessage)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		other := errors.New("other")
		assert.Same(t, other, wrapError(other, 0))
	})
}
