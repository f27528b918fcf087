package message

import (
	"errors"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/quic-go/quic-go/quicvarint"
)

const (
	// MaxU53 is the largest value of a 53-bit integer, the widest integer a
	// JavaScript peer can represent exactly.
	MaxU53 = 1<<53 - 1

	// MaxU62 is the largest value a QUIC varint can carry.
	MaxU62 = quicvarint.Max

	// MaxMessageSize bounds the payload of a control message.
	MaxMessageSize = 1 << 16

	// MaxFrameSize bounds the payload of a single frame.
	MaxFrameSize = 1 << 26
)

var (
	ErrVarintOverflow  = errors.New("message: varint overflow")
	ErrMessageTooLong  = errors.New("message: trailing bytes in message")
	ErrMessageTooLarge = errors.New("message: message exceeds size limit")
	ErrInvalidUTF8     = errors.New("message: string is not valid UTF-8")
)

// IsMalformed reports whether err means the peer sent bytes that do not form
// a valid message, as opposed to the stream failing underneath the decoder.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrVarintOverflow) ||
		errors.Is(err, ErrMessageTooLong) ||
		errors.Is(err, ErrMessageTooLarge) ||
		errors.Is(err, ErrInvalidUTF8) ||
		errors.Is(err, ErrInvalidAnnounceStatus)
}

var pool = &bytesPool{
	p: sync.Pool{
		New: func() any {
			b := make([]byte, 0, 1<<7)
			return &b
		},
	},
}

type bytesPool struct {
	p sync.Pool
}

func (bp *bytesPool) Get(n int) *[]byte {
	b := bp.p.Get().(*[]byte)
	if cap(*b) < n {
		*b = make([]byte, 0, n)
	}
	*b = (*b)[:0]
	return b
}

func (bp *bytesPool) Put(b *[]byte) {
	if cap(*b) > MaxMessageSize {
		return
	}
	bp.p.Put(b)
}

func VarintLen(v uint64) int {
	return quicvarint.Len(v)
}

func StringLen(s string) int {
	return VarintLen(uint64(len(s))) + len(s)
}

func BytesLen(b []byte) int {
	return VarintLen(uint64(len(b))) + len(b)
}

func AppendString(b []byte, s string) []byte {
	b = quicvarint.Append(b, uint64(len(s)))
	return append(b, s...)
}

func AppendBytes(b []byte, p []byte) []byte {
	b = quicvarint.Append(b, uint64(len(p)))
	return append(b, p...)
}

// ReadVarint parses a 62-bit varint from the head of b.
func ReadVarint(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, io.ErrUnexpectedEOF
	}
	num, n, err := quicvarint.Parse(b)
	if err != nil {
		return 0, 0, io.ErrUnexpectedEOF
	}
	return num, n, nil
}

// ReadU53 parses a varint and rejects values beyond MaxU53.
func ReadU53(b []byte) (uint64, int, error) {
	num, n, err := ReadVarint(b)
	if err != nil {
		return 0, 0, err
	}
	if num > MaxU53 {
		return 0, 0, ErrVarintOverflow
	}
	return num, n, nil
}

func ReadBytes(b []byte) ([]byte, int, error) {
	num, n, err := ReadVarint(b)
	if err != nil {
		return nil, 0, err
	}
	if uint64(len(b)-n) < num {
		return nil, 0, io.ErrUnexpectedEOF
	}
	end := n + int(num)
	p := make([]byte, num)
	copy(p, b[n:end])
	return p, end, nil
}

func ReadString(b []byte) (string, int, error) {
	num, n, err := ReadVarint(b)
	if err != nil {
		return "", 0, err
	}
	if uint64(len(b)-n) < num {
		return "", 0, io.ErrUnexpectedEOF
	}
	end := n + int(num)
	if !utf8.Valid(b[n:end]) {
		return "", 0, ErrInvalidUTF8
	}
	return string(b[n:end]), end, nil
}

// ReadMessageLength reads the varint length prefix of a message.
// It returns io.EOF only when the stream ends cleanly before the prefix.
func ReadMessageLength(r io.Reader) (uint64, error) {
	return quicvarint.Read(quicvarint.NewReader(r))
}

func checkU53(vs ...uint64) error {
	for _, v := range vs {
		if v > MaxU53 {
			return ErrVarintOverflow
		}
	}
	return nil
}

func checkU62(vs ...uint64) error {
	for _, v := range vs {
		if v > MaxU62 {
			return ErrVarintOverflow
		}
	}
	return nil
}

// writeMessage writes the length prefix and the payload produced by appendTo
// in a single Write call.
func writeMessage(w io.Writer, msgLen int, appendTo func([]byte) []byte) error {
	p := pool.Get(msgLen + VarintLen(uint64(msgLen)))
	defer pool.Put(p)

	b := quicvarint.Append(*p, uint64(msgLen))
	b = appendTo(b)
	*p = b

	_, err := w.Write(b)
	return err
}

// readMessage reads one length-prefixed payload and hands it to parse.
// Bytes left over after parse are reported as ErrMessageTooLong.
func readMessage(r io.Reader, parse func([]byte) (int, error)) error {
	num, err := ReadMessageLength(r)
	if err != nil {
		return err
	}
	if num > MaxMessageSize {
		return ErrMessageTooLarge
	}

	p := pool.Get(int(num))
	defer pool.Put(p)
	b := (*p)[:num]

	if _, err := io.ReadFull(r, b); err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}

	n, err := parse(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return ErrMessageTooLong
	}

	return nil
}
