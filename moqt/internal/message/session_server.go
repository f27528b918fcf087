package message

import (
	"io"
	"math"

	"github.com/okdaichi/moqlite/moqt/internal/protocol"
	"github.com/quic-go/quic-go/quicvarint"
)

/*
 * SESSION_SERVER Message {
 *   Message Length (varint),
 *   Selected Version (varint),
 *   Extensions (Parameters),
 * }
 */
type SessionServerMessage struct {
	SelectedVersion protocol.Version
	Parameters      Parameters
}

func (ssm SessionServerMessage) Len() int {
	return VarintLen(uint64(ssm.SelectedVersion)) + ParametersLen(ssm.Parameters)
}

func (ssm SessionServerMessage) Encode(w io.Writer) error {
	if ssm.SelectedVersion > math.MaxUint32 {
		return ErrVarintOverflow
	}

	return writeMessage(w, ssm.Len(), func(b []byte) []byte {
		b = quicvarint.Append(b, uint64(ssm.SelectedVersion))
		return AppendParameters(b, ssm.Parameters)
	})
}

func (ssm *SessionServerMessage) Decode(r io.Reader) error {
	return readMessage(r, func(b []byte) (int, error) {
		num, n, err := ReadVarint(b)
		if err != nil {
			return 0, err
		}
		if num > math.MaxUint32 {
			return 0, ErrVarintOverflow
		}
		ssm.SelectedVersion = protocol.Version(num)

		params, m, err := ReadParameters(b[n:])
		if err != nil {
			return 0, err
		}
		ssm.Parameters = params

		return n + m, nil
	})
}
