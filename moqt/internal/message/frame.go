package message

import (
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

/*
 * FRAME Message {
 *   Payload Length (varint),
 *   Payload (bytes),
 * }
 */
type FrameMessage struct {
	Payload []byte
}

func (f FrameMessage) Len() int {
	return len(f.Payload)
}

func (f FrameMessage) Encode(w io.Writer) error {
	if len(f.Payload) > MaxFrameSize {
		return ErrMessageTooLarge
	}

	p := pool.Get(VarintLen(uint64(len(f.Payload))))
	defer pool.Put(p)

	*p = quicvarint.Append(*p, uint64(len(f.Payload)))
	if _, err := w.Write(*p); err != nil {
		return err
	}

	_, err := w.Write(f.Payload)
	return err
}

// Decode reads the next frame. It returns io.EOF when the stream ends on a
// frame boundary.
func (f *FrameMessage) Decode(r io.Reader) error {
	num, err := ReadMessageLength(r)
	if err != nil {
		return err
	}
	if num > MaxFrameSize {
		return ErrMessageTooLarge
	}

	payload := make([]byte, num)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	f.Payload = payload

	return nil
}
