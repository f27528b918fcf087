package message

import "io"

/*
 * ANNOUNCE_INTEREST Message {
 *   Message Length (varint),
 *   Prefix (string),
 * }
 */
type AnnounceInterestMessage struct {
	Prefix string
}

func (aim AnnounceInterestMessage) Len() int {
	return StringLen(aim.Prefix)
}

func (aim AnnounceInterestMessage) Encode(w io.Writer) error {
	return writeMessage(w, aim.Len(), func(b []byte) []byte {
		return AppendString(b, aim.Prefix)
	})
}

func (aim *AnnounceInterestMessage) Decode(r io.Reader) error {
	return readMessage(r, func(b []byte) (int, error) {
		str, n, err := ReadString(b)
		if err != nil {
			return 0, err
		}
		aim.Prefix = str
		return n, nil
	})
}
