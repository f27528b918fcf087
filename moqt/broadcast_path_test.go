package moqt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcastPath_GetSuffix(t *testing.T) {
	tests := map[string]struct {
		path       BroadcastPath
		prefix     string
		wantSuffix string
		wantOK     bool
	}{
		"nested path": {
			path:       "room/alice",
			prefix:     "room/",
			wantSuffix: "alice",
			wantOK:     true,
		},
		"exact path leaves an empty suffix": {
			path:       "room/alice",
			prefix:     "room/alice",
			wantSuffix: "",
			wantOK:     true,
		},
		"empty prefix matches everything": {
			path:       "room/alice",
			prefix:     "",
			wantSuffix: "room/alice",
			wantOK:     true,
		},
		"different prefix": {
			path:   "room/alice",
			prefix: "other/",
			wantOK: false,
		},
		"prefix longer than path": {
			path:   "room",
			prefix: "room/",
			wantOK: false,
		},
		"raw byte prefix": {
			path:       "lively",
			prefix:     "live",
			wantSuffix: "ly",
			wantOK:     true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			suffix, ok := tt.path.GetSuffix(tt.prefix)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantSuffix, suffix)
			assert.Equal(t, tt.wantOK, tt.path.HasPrefix(tt.prefix))
		})
	}
}

func TestJoin(t *testing.T) {
	assert.Equal(t, BroadcastPath("live/cam1"), Join("live/", "cam1"))
}
