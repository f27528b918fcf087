package message

import (
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

/*
 * GROUP Message {
 *   Message Length (varint),
 *   Subscribe ID (varint),
 *   Group Sequence (varint),
 * }
 */
type GroupMessage struct {
	SubscribeID   uint64
	GroupSequence uint64
}

func (g GroupMessage) Len() int {
	return VarintLen(g.SubscribeID) + VarintLen(g.GroupSequence)
}

func (g GroupMessage) Encode(w io.Writer) error {
	if err := checkU62(g.SubscribeID); err != nil {
		return err
	}
	if err := checkU53(g.GroupSequence); err != nil {
		return err
	}

	return writeMessage(w, g.Len(), func(b []byte) []byte {
		b = quicvarint.Append(b, g.SubscribeID)
		return quicvarint.Append(b, g.GroupSequence)
	})
}

func (g *GroupMessage) Decode(r io.Reader) error {
	return readMessage(r, func(b []byte) (int, error) {
		num, n, err := ReadVarint(b)
		if err != nil {
			return 0, err
		}
		g.SubscribeID = num

		num, m, err := ReadU53(b[n:])
		if err != nil {
			return 0, err
		}
		g.GroupSequence = num

		return n + m, nil
	})
}
