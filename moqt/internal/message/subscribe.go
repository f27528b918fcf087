package message

import (
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

/*
 * SUBSCRIBE Message {
 *   Message Length (varint),
 *   Subscribe ID (varint),
 *   Broadcast Path (string),
 *   Track Name (string),
 *   Track Priority (varint),
 * }
 */
type SubscribeMessage struct {
	SubscribeID   uint64
	BroadcastPath string
	TrackName     string
	TrackPriority uint64
}

func (s SubscribeMessage) Len() int {
	var l int

	l += VarintLen(s.SubscribeID)
	l += StringLen(s.BroadcastPath)
	l += StringLen(s.TrackName)
	l += VarintLen(s.TrackPriority)

	return l
}

func (s SubscribeMessage) Encode(w io.Writer) error {
	if err := checkU62(s.SubscribeID); err != nil {
		return err
	}
	if err := checkU53(s.TrackPriority); err != nil {
		return err
	}

	return writeMessage(w, s.Len(), func(b []byte) []byte {
		b = quicvarint.Append(b, s.SubscribeID)
		b = AppendString(b, s.BroadcastPath)
		b = AppendString(b, s.TrackName)
		return quicvarint.Append(b, s.TrackPriority)
	})
}

func (s *SubscribeMessage) Decode(r io.Reader) error {
	return readMessage(r, func(b []byte) (int, error) {
		var total int

		num, n, err := ReadVarint(b)
		if err != nil {
			return 0, err
		}
		s.SubscribeID = num
		total += n

		str, n, err := ReadString(b[total:])
		if err != nil {
			return 0, err
		}
		s.BroadcastPath = str
		total += n

		str, n, err = ReadString(b[total:])
		if err != nil {
			return 0, err
		}
		s.TrackName = str
		total += n

		num, n, err = ReadU53(b[total:])
		if err != nil {
			return 0, err
		}
		s.TrackPriority = num
		total += n

		return total, nil
	})
}
