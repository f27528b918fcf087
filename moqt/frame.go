package moqt

import (
	"encoding/binary"
	"errors"
	"time"
)

// ErrShortFrame is returned by DecodeFrame for payloads without a timestamp.
var ErrShortFrame = errors.New("moqt: frame shorter than its timestamp")

const timestampSize = 8

// EncodeFrame prefixes payload with its presentation timestamp, an unsigned
// microsecond count in little-endian order. Negative timestamps are clamped
// to zero. Whether a frame is a keyframe is not encoded: the first frame of a
// group is the keyframe.
func EncodeFrame(timestamp time.Duration, payload []byte) []byte {
	b := make([]byte, timestampSize, timestampSize+len(payload))
	binary.LittleEndian.PutUint64(b, uint64(max(timestamp.Microseconds(), 0)))
	return append(b, payload...)
}

// DecodeFrame splits a frame produced by EncodeFrame. The returned payload
// aliases b.
func DecodeFrame(b []byte) (time.Duration, []byte, error) {
	if len(b) < timestampSize {
		return 0, nil, ErrShortFrame
	}
	us := binary.LittleEndian.Uint64(b[:timestampSize])
	return time.Duration(us) * time.Microsecond, b[timestampSize:], nil
}
