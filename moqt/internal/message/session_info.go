package message

import (
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

/*
 * SESSION_INFO Message {
 *   Message Length (varint),
 *   Bitrate (varint),
 * }
 */
type SessionInfoMessage struct {
	Bitrate uint64
}

func (sim SessionInfoMessage) Len() int {
	return VarintLen(sim.Bitrate)
}

func (sim SessionInfoMessage) Encode(w io.Writer) error {
	if err := checkU53(sim.Bitrate); err != nil {
		return err
	}

	return writeMessage(w, sim.Len(), func(b []byte) []byte {
		return quicvarint.Append(b, sim.Bitrate)
	})
}

func (sim *SessionInfoMessage) Decode(r io.Reader) error {
	return readMessage(r, func(b []byte) (int, error) {
		num, n, err := ReadU53(b)
		if err != nil {
			return 0, err
		}
		sim.Bitrate = num
		return n, nil
	})
}
