package moqt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okdaichi/moqlite/moqt/internal/message"
	"github.com/okdaichi/moqlite/moqt/internal/protocol"
	"github.com/okdaichi/moqlite/moqt/metrics"
	"github.com/okdaichi/moqlite/quic"
)

// Connect performs the client side of the session handshake on conn.
// On failure the connection is closed.
func Connect(ctx context.Context, conn quic.Connection, config *Config) (*Connection, error) {
	logger := config.logger()

	ctx, cancel := context.WithTimeout(ctx, config.setupTimeout())
	defer cancel()

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		metrics.HandshakesTotal.WithLabelValues(metrics.RoleClient, metrics.ResultError).Inc()
		logger.Error("failed to open session stream",
			"error", err,
		)
		return nil, wrapStreamError(message.StreamTypeSession, false, err)
	}

	offered := config.versions()

	err = message.StreamTypeSession.Encode(stream)
	if err == nil {
		err = message.SessionClientMessage{
			SupportedVersions: offered,
			Parameters:        message.Parameters{},
		}.Encode(stream)
	}
	if err != nil {
		metrics.HandshakesTotal.WithLabelValues(metrics.RoleClient, metrics.ResultError).Inc()
		logger.Error("failed to send SESSION_CLIENT message",
			"error", err,
		)
		return nil, closeWithError(conn, SetupFailedErrorCode, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		stream.SetReadDeadline(deadline)
	}

	var ssm message.SessionServerMessage
	if err := ssm.Decode(stream); err != nil {
		metrics.HandshakesTotal.WithLabelValues(metrics.RoleClient, metrics.ResultError).Inc()
		logger.Error("failed to receive SESSION_SERVER message",
			"error", err,
		)
		reason := wrapStreamError(message.StreamTypeSession, false, err)
		var sessErr *SessionError
		if errors.As(reason, &sessErr) && sessErr.Remote {
			return nil, reason
		}
		return nil, closeWithError(conn, SetupFailedErrorCode, err)
	}

	stream.SetReadDeadline(time.Time{})

	if !slices.Contains(offered, ssm.SelectedVersion) {
		metrics.HandshakesTotal.WithLabelValues(metrics.RoleClient, metrics.ResultRejected).Inc()
		logger.Error("server selected a version that was not offered",
			"version", ssm.SelectedVersion,
		)
		return nil, closeWithError(conn, UnsupportedVersionErrorCode, fmt.Errorf("version %#x was not offered", uint64(ssm.SelectedVersion)))
	}

	metrics.HandshakesTotal.WithLabelValues(metrics.RoleClient, metrics.ResultOK).Inc()

	return newConnection(conn, stream, ssm.SelectedVersion, config), nil
}

// Accept performs the server side of the session handshake on conn.
// On failure the connection is closed.
func Accept(ctx context.Context, conn quic.Connection, config *Config) (*Connection, error) {
	logger := config.logger()

	ctx, cancel := context.WithTimeout(ctx, config.setupTimeout())
	defer cancel()

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		metrics.HandshakesTotal.WithLabelValues(metrics.RoleServer, metrics.ResultError).Inc()
		logger.Error("failed to accept session stream",
			"error", err,
		)
		if ctx.Err() != nil {
			return nil, closeWithError(conn, SetupFailedErrorCode, err)
		}
		return nil, wrapStreamError(message.StreamTypeSession, false, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		stream.SetReadDeadline(deadline)
	}

	var st message.StreamType
	if err := st.Decode(stream); err != nil {
		metrics.HandshakesTotal.WithLabelValues(metrics.RoleServer, metrics.ResultError).Inc()
		return nil, closeWithError(conn, SetupFailedErrorCode, err)
	}
	if st != message.StreamTypeSession {
		metrics.HandshakesTotal.WithLabelValues(metrics.RoleServer, metrics.ResultError).Inc()
		logger.Error("first stream is not a session stream",
			"stream_type", st,
		)
		return nil, closeWithError(conn, ProtocolViolationErrorCode, fmt.Errorf("unexpected stream type %d", st))
	}

	var scm message.SessionClientMessage
	if err := scm.Decode(stream); err != nil {
		metrics.HandshakesTotal.WithLabelValues(metrics.RoleServer, metrics.ResultError).Inc()
		logger.Error("failed to receive SESSION_CLIENT message",
			"error", err,
		)
		return nil, closeWithError(conn, SetupFailedErrorCode, err)
	}

	stream.SetReadDeadline(time.Time{})

	version, ok := protocol.Negotiate(scm.SupportedVersions, config.versions())
	if !ok {
		metrics.HandshakesTotal.WithLabelValues(metrics.RoleServer, metrics.ResultRejected).Inc()
		logger.Warn("no common version",
			"offered", scm.SupportedVersions,
		)
		return nil, closeWithError(conn, UnsupportedVersionErrorCode, errors.New("no common version"))
	}

	err = message.SessionServerMessage{
		SelectedVersion: version,
		Parameters:      message.Parameters{},
	}.Encode(stream)
	if err != nil {
		metrics.HandshakesTotal.WithLabelValues(metrics.RoleServer, metrics.ResultError).Inc()
		logger.Error("failed to send SESSION_SERVER message",
			"error", err,
		)
		return nil, closeWithError(conn, SetupFailedErrorCode, err)
	}

	metrics.HandshakesTotal.WithLabelValues(metrics.RoleServer, metrics.ResultOK).Inc()

	return newConnection(conn, stream, version, config), nil
}

// closeWithError closes conn and reports the closure as a local SessionError.
func closeWithError(conn quic.Connection, code SessionErrorCode, cause error) error {
	msg := cause.Error()
	_ = conn.CloseWithError(quic.ApplicationErrorCode(code), msg)

	return &SessionError{
		ApplicationError: &quic.ApplicationError{
			ErrorCode:    quic.ApplicationErrorCode(code),
			ErrorMessage: msg,
		},
	}
}

func newConnection(conn quic.Connection, stream quic.Stream, version Version, config *Config) *Connection {
	transport := transportOf(conn)

	logger := config.logger().With(
		"connection_id", uuid.NewString(),
		"remote_address", conn.RemoteAddr(),
		"transport", transport,
	)

	ctx, cancel := context.WithCancelCause(conn.Context())

	c := &Connection{
		conn:       conn,
		version:    version,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		session:    newSessionStream(stream, logger),
		publisher:  newPublisher(ctx, conn, logger),
		subscriber: newSubscriber(ctx, conn, logger),
	}

	c.publisher.violation = c.protocolViolation
	c.subscriber.violation = c.protocolViolation

	metrics.ConnectionsCurrent.WithLabelValues(transport).Inc()
	context.AfterFunc(ctx, func() {
		metrics.ConnectionsCurrent.WithLabelValues(transport).Dec()
		c.publisher.close()
	})

	c.wg.Go(c.handleBiStreams)
	c.wg.Go(c.handleUniStreams)
	c.wg.Go(c.handleSessionStream)

	if interval := config.infoInterval(); interval > 0 {
		clock := config.clock()
		c.wg.Go(func() {
			c.session.reportBitrate(ctx, clock, interval, c.publisher.bytesSent.Load)
		})
	}

	logger.Info("connection established",
		"version", version,
	)

	return c
}

func transportOf(conn quic.Connection) string {
	if conn.ConnectionState().TLS.NegotiatedProtocol == NextProtoH3 {
		return "webtransport"
	}
	return "quic"
}

// Connection is an established MOQ Lite session. Both peers may publish and
// subscribe over the same connection.
type Connection struct {
	conn    quic.Connection
	version Version
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup

	session    *sessionStream
	publisher  *publisher
	subscriber *subscriber

	closeOnce sync.Once
	closeErr  error
}

// Publish makes broadcast available to the peer at path. The connection takes
// ownership of broadcast and closes it once the broadcast ends, is
// unpublished, or the connection closes.
func (c *Connection) Publish(path BroadcastPath, broadcast *BroadcastConsumer) error {
	return c.publisher.publish(path, broadcast)
}

// Unpublish withdraws the broadcast published at path.
func (c *Connection) Unpublish(path BroadcastPath) bool {
	return c.publisher.unpublish(path)
}

// Consume returns a consumer of the broadcast the peer publishes at path.
// Tracks are requested from the peer on first subscription.
func (c *Connection) Consume(path BroadcastPath) *BroadcastConsumer {
	return c.subscriber.consume(path)
}

// Announced reports the broadcasts the peer publishes under prefix. Paths are
// relative to prefix.
func (c *Connection) Announced(prefix string) *AnnouncedConsumer {
	return c.subscriber.announced(prefix)
}

// RemoteBitrate returns the most recent sending bitrate reported by the peer,
// in bits per second, or zero.
func (c *Connection) RemoteBitrate() uint64 {
	return c.session.remoteBitrate.Load()
}

// RemoteAddr returns the address of the peer.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Connection) Version() Version {
	return c.version
}

// Context is canceled once the connection closes. Cause reports why.
func (c *Connection) Context() context.Context {
	return c.ctx
}

// CloseWithError closes the connection with code.
func (c *Connection) CloseWithError(code SessionErrorCode, msg string) error {
	c.closeOnce.Do(func() {
		c.logger.Info("terminating connection",
			"code", code,
			"message", msg,
		)

		c.cancel(&SessionError{
			ApplicationError: &quic.ApplicationError{
				ErrorCode:    quic.ApplicationErrorCode(code),
				ErrorMessage: msg,
			},
		})

		if err := c.conn.CloseWithError(quic.ApplicationErrorCode(code), msg); err != nil {
			c.closeErr = wrapStreamError(message.StreamTypeSession, false, err)
		}
	})
	return c.closeErr
}

func (c *Connection) protocolViolation(err error) {
	c.logger.Error("received malformed message",
		"error", err,
	)
	c.CloseWithError(ProtocolViolationErrorCode, err.Error())
}

// Close closes the connection without error and waits for its goroutines.
func (c *Connection) Close() error {
	err := c.CloseWithError(NoError, "")
	c.wg.Wait()
	return err
}

func (c *Connection) handleSessionStream() {
	err := c.session.readInfo()
	if c.ctx.Err() != nil {
		return
	}

	if errors.Is(err, io.EOF) {
		c.logger.Info("session stream closed by peer")
		c.CloseWithError(NoError, "session stream closed")
		return
	}

	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) {
		c.cancel(&SessionError{ApplicationError: appErr})
		return
	}

	c.logger.Error("session stream failed",
		"error", err,
	)
	c.CloseWithError(ProtocolViolationErrorCode, "session stream failed")
}

func (c *Connection) handleBiStreams() {
	for {
		stream, err := c.conn.AcceptStream(c.ctx)
		if err != nil {
			c.logger.Debug("stopped accepting bidirectional streams",
				"error", err,
			)
			return
		}

		logger := c.logger.With("stream_id", stream.StreamID())

		go c.processBiStream(stream, logger)
	}
}

func (c *Connection) processBiStream(stream quic.Stream, logger *slog.Logger) {
	var st message.StreamType
	if err := st.Decode(stream); err != nil {
		logger.Debug("failed to decode stream type",
			"error", err,
		)
		cancelStreamWithError(stream, quic.StreamErrorCode(InternalSubscribeErrorCode))
		return
	}

	switch st {
	case message.StreamTypeAnnounce:
		c.publisher.runAnnounce(stream, logger)
	case message.StreamTypeSubscribe:
		c.publisher.runSubscribe(stream, logger)
	case message.StreamTypeSession:
		logger.Error("received a second session stream")
		c.CloseWithError(ProtocolViolationErrorCode, "duplicate session stream")
	default:
		logger.Error("unknown bidirectional stream type",
			"stream_type", st,
		)
		c.CloseWithError(ProtocolViolationErrorCode, fmt.Sprintf("unknown bidirectional stream type: %d", st))
	}
}

func (c *Connection) handleUniStreams() {
	for {
		stream, err := c.conn.AcceptUniStream(c.ctx)
		if err != nil {
			c.logger.Debug("stopped accepting unidirectional streams",
				"error", err,
			)
			return
		}

		logger := c.logger.With("stream_id", stream.StreamID())

		go c.processUniStream(stream, logger)
	}
}

func (c *Connection) processUniStream(stream quic.ReceiveStream, logger *slog.Logger) {
	var st message.StreamType
	if err := st.Decode(stream); err != nil {
		logger.Debug("failed to decode stream type",
			"error", err,
		)
		stream.CancelRead(quic.StreamErrorCode(InternalGroupErrorCode))
		return
	}

	switch st {
	case message.StreamTypeGroup:
		c.subscriber.runGroup(stream, logger)
	default:
		logger.Error("unknown unidirectional stream type",
			"stream_type", st,
		)
		c.CloseWithError(ProtocolViolationErrorCode, fmt.Sprintf("unknown unidirectional stream type: %d", st))
	}
}
