package message

import "github.com/quic-go/quic-go/quicvarint"

// Parameters carries extension values keyed by a varint identifier.
type Parameters map[uint64][]byte

func ParametersLen(params Parameters) int {
	l := VarintLen(uint64(len(params)))
	for k, v := range params {
		l += VarintLen(k) + BytesLen(v)
	}
	return l
}

func AppendParameters(b []byte, params Parameters) []byte {
	b = quicvarint.Append(b, uint64(len(params)))
	for k, v := range params {
		b = quicvarint.Append(b, k)
		b = AppendBytes(b, v)
	}
	return b
}

func ReadParameters(b []byte) (Parameters, int, error) {
	count, n, err := ReadVarint(b)
	if err != nil {
		return nil, 0, err
	}
	if count > uint64(len(b)) {
		return nil, 0, ErrMessageTooLarge
	}

	params := make(Parameters, count)
	for range count {
		key, m, err := ReadVarint(b[n:])
		if err != nil {
			return nil, 0, err
		}
		n += m

		value, m, err := ReadBytes(b[n:])
		if err != nil {
			return nil, 0, err
		}
		n += m

		params[key] = value
	}

	return params, n, nil
}
