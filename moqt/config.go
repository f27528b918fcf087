package moqt

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okdaichi/moqlite/moqt/internal/protocol"
)

// Config contains configuration options for MOQ connections.
type Config struct {
	// CheckHTTPOrigin validates the HTTP Origin header for WebTransport connections.
	// If nil, all origins are accepted.
	CheckHTTPOrigin func(*http.Request) bool

	// SetupTimeout is the maximum time to wait for the session handshake.
	// If zero, a default timeout of 5 seconds is used.
	SetupTimeout time.Duration

	// InfoInterval is how often the sending bitrate is sampled for SESSION_INFO.
	// Zero or negative disables SESSION_INFO.
	InfoInterval time.Duration

	// Versions lists the protocol versions offered or accepted, most preferred
	// first. If empty, every supported version is used.
	Versions []Version

	// Clock drives the SESSION_INFO sampling. Defaults to the real clock.
	Clock clockwork.Clock

	// Logger receives connection logs. If nil, logs are discarded.
	Logger *slog.Logger
}

func (c *Config) setupTimeout() time.Duration {
	if c != nil && c.SetupTimeout > 0 {
		return c.SetupTimeout
	}
	return 5 * time.Second
}

func (c *Config) checkHTTPOrigin() func(*http.Request) bool {
	if c != nil {
		return c.CheckHTTPOrigin
	}
	return nil
}

func (c *Config) infoInterval() time.Duration {
	if c != nil {
		return c.InfoInterval
	}
	return 0
}

func (c *Config) clock() clockwork.Clock {
	if c != nil && c.Clock != nil {
		return c.Clock
	}
	return clockwork.NewRealClock()
}

func (c *Config) logger() *slog.Logger {
	if c != nil && c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (c *Config) versions() []protocol.Version {
	if c != nil && len(c.Versions) > 0 {
		return c.Versions
	}
	return protocol.Supported
}

// Clone creates a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
