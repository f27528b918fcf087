package moqt

import (
	"log/slog"
	"os"
	"testing"
)

// Silence the default logger; connections in tests log to a discard handler.
func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.DiscardHandler))

	os.Exit(m.Run())
}
