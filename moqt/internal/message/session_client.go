package message

import (
	"io"
	"math"

	"github.com/okdaichi/moqlite/moqt/internal/protocol"
	"github.com/quic-go/quic-go/quicvarint"
)

/*
 * SESSION_CLIENT Message {
 *   Message Length (varint),
 *   Supported Versions {
 *     Count (varint),
 *     Versions (varint...),
 *   },
 *   Extensions (Parameters),
 * }
 */
type SessionClientMessage struct {
	SupportedVersions []protocol.Version
	Parameters        Parameters
}

func (scm SessionClientMessage) Len() int {
	l := VarintLen(uint64(len(scm.SupportedVersions)))
	for _, v := range scm.SupportedVersions {
		l += VarintLen(uint64(v))
	}
	l += ParametersLen(scm.Parameters)
	return l
}

func (scm SessionClientMessage) Encode(w io.Writer) error {
	for _, v := range scm.SupportedVersions {
		if v > math.MaxUint32 {
			return ErrVarintOverflow
		}
	}

	return writeMessage(w, scm.Len(), func(b []byte) []byte {
		b = quicvarint.Append(b, uint64(len(scm.SupportedVersions)))
		for _, v := range scm.SupportedVersions {
			b = quicvarint.Append(b, uint64(v))
		}
		return AppendParameters(b, scm.Parameters)
	})
}

func (scm *SessionClientMessage) Decode(r io.Reader) error {
	return readMessage(r, func(b []byte) (int, error) {
		count, n, err := ReadVarint(b)
		if err != nil {
			return 0, err
		}
		if count > uint64(len(b)) {
			return 0, ErrMessageTooLarge
		}

		versions := make([]protocol.Version, 0, count)
		for range count {
			num, m, err := ReadVarint(b[n:])
			if err != nil {
				return 0, err
			}
			if num > math.MaxUint32 {
				return 0, ErrVarintOverflow
			}
			versions = append(versions, protocol.Version(num))
			n += m
		}
		scm.SupportedVersions = versions

		params, m, err := ReadParameters(b[n:])
		if err != nil {
			return 0, err
		}
		scm.Parameters = params

		return n + m, nil
	})
}
