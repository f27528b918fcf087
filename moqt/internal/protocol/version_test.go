package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNegotiate(t *testing.T) {
	tests := map[string]struct {
		offered   []Version
		supported []Version
		want      Version
		ok        bool
	}{
		"client preference wins": {
			offered:   []Version{Lite01, Lite02},
			supported: Supported,
			want:      Lite01,
			ok:        true,
		},
		"skips unknown versions": {
			offered:   []Version{Develop, Lite02},
			supported: Supported,
			want:      Lite02,
			ok:        true,
		},
		"no common version": {
			offered:   []Version{Develop},
			supported: Supported,
			ok:        false,
		},
		"empty offer": {
			offered:   nil,
			supported: Supported,
			ok:        false,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, ok := Negotiate(tt.offered, tt.supported)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
