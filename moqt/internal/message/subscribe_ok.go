package message

import (
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

/*
 * SUBSCRIBE_OK Message {
 *   Message Length (varint),
 *   Track Priority (varint),
 * }
 */
type SubscribeOkMessage struct {
	TrackPriority uint64
}

func (som SubscribeOkMessage) Len() int {
	return VarintLen(som.TrackPriority)
}

func (som SubscribeOkMessage) Encode(w io.Writer) error {
	if err := checkU53(som.TrackPriority); err != nil {
		return err
	}

	return writeMessage(w, som.Len(), func(b []byte) []byte {
		return quicvarint.Append(b, som.TrackPriority)
	})
}

func (som *SubscribeOkMessage) Decode(r io.Reader) error {
	return readMessage(r, func(b []byte) (int, error) {
		num, n, err := ReadU53(b)
		if err != nil {
			return 0, err
		}
		som.TrackPriority = num
		return n, nil
	})
}
