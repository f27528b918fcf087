package message

import (
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// StreamType is the varint written at the start of every stream.
// Bidirectional and unidirectional streams have separate namespaces.
type StreamType uint64

const (
	/*
	 * Bidirectional stream types
	 */
	StreamTypeSession   StreamType = 0x0
	StreamTypeAnnounce  StreamType = 0x1
	StreamTypeSubscribe StreamType = 0x2

	/*
	 * Unidirectional stream types
	 */
	StreamTypeGroup StreamType = 0x0
)

func (st StreamType) Encode(w io.Writer) error {
	_, err := w.Write(quicvarint.Append(nil, uint64(st)))
	return err
}

func (st *StreamType) Decode(r io.Reader) error {
	num, err := quicvarint.Read(quicvarint.NewReader(r))
	if err != nil {
		return err
	}
	*st = StreamType(num)
	return nil
}
