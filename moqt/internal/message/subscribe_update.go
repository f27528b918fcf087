package message

import (
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

/*
 * SUBSCRIBE_UPDATE Message {
 *   Message Length (varint),
 *   Track Priority (varint),
 * }
 */
type SubscribeUpdateMessage struct {
	TrackPriority uint64
}

func (sum SubscribeUpdateMessage) Len() int {
	return VarintLen(sum.TrackPriority)
}

func (sum SubscribeUpdateMessage) Encode(w io.Writer) error {
	if err := checkU53(sum.TrackPriority); err != nil {
		return err
	}

	return writeMessage(w, sum.Len(), func(b []byte) []byte {
		return quicvarint.Append(b, sum.TrackPriority)
	})
}

func (sum *SubscribeUpdateMessage) Decode(r io.Reader) error {
	return readMessage(r, func(b []byte) (int, error) {
		num, n, err := ReadU53(b)
		if err != nil {
			return 0, err
		}
		sum.TrackPriority = num
		return n, nil
	})
}
