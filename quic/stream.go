package quic

import (
	"io"
	"time"

	"github.com/quic-go/quic-go"
)

// Stream is a bidirectional QUIC stream that implements both SendStream and ReceiveStream.
type Stream interface {
	SendStream
	ReceiveStream
	SetDeadline(time.Time) error
}

// SendStream is a unidirectional QUIC stream for sending data.
type SendStream interface {
	io.Writer
	io.Closer

	StreamID() StreamID

	// CancelWrite resets the sending side with the given error code.
	CancelWrite(StreamErrorCode)

	SetWriteDeadline(time.Time) error
}

// ReceiveStream is a unidirectional QUIC stream for receiving data.
type ReceiveStream interface {
	io.Reader

	StreamID() StreamID

	// CancelRead asks the peer to stop sending with the given error code.
	CancelRead(StreamErrorCode)

	SetReadDeadline(time.Time) error
}

// StreamID uniquely identifies a stream within a QUIC connection.
type StreamID = quic.StreamID
