package message

import (
	"errors"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// ErrInvalidAnnounceStatus is returned for a status other than ended or active.
var ErrInvalidAnnounceStatus = errors.New("message: invalid announce status")

type AnnounceStatus byte

const (
	ENDED  AnnounceStatus = 0x0
	ACTIVE AnnounceStatus = 0x1
)

/*
 * ANNOUNCE Message {
 *   Message Length (varint),
 *   Announce Status (varint),
 *   Broadcast Path Suffix (string),
 * }
 */
type AnnounceMessage struct {
	AnnounceStatus      AnnounceStatus
	BroadcastPathSuffix string
}

func (am AnnounceMessage) Active() bool {
	return am.AnnounceStatus == ACTIVE
}

func (am AnnounceMessage) Len() int {
	return VarintLen(uint64(am.AnnounceStatus)) + StringLen(am.BroadcastPathSuffix)
}

func (am AnnounceMessage) Encode(w io.Writer) error {
	if am.AnnounceStatus != ENDED && am.AnnounceStatus != ACTIVE {
		return ErrInvalidAnnounceStatus
	}

	return writeMessage(w, am.Len(), func(b []byte) []byte {
		b = quicvarint.Append(b, uint64(am.AnnounceStatus))
		return AppendString(b, am.BroadcastPathSuffix)
	})
}

func (am *AnnounceMessage) Decode(r io.Reader) error {
	return readMessage(r, func(b []byte) (int, error) {
		num, n, err := ReadVarint(b)
		if err != nil {
			return 0, err
		}
		status := AnnounceStatus(num)
		if num > 1 {
			return 0, ErrInvalidAnnounceStatus
		}
		am.AnnounceStatus = status

		str, m, err := ReadString(b[n:])
		if err != nil {
			return 0, err
		}
		am.BroadcastPathSuffix = str

		return n + m, nil
	})
}
