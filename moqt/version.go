package moqt

import "github.com/okdaichi/moqlite/moqt/internal/protocol"

// Version identifies a revision of the MOQ Lite wire protocol.
type Version = protocol.Version

const (
	Lite01 Version = protocol.Lite01
	Lite02 Version = protocol.Lite02

	// DefaultVersion is offered first by clients.
	DefaultVersion Version = protocol.Default
)
