package moqt

import (
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestConfig_Defaults(t *testing.T) {
	tests := map[string]struct {
		config *Config
	}{
		"nil config": {
			config: nil,
		},
		"zero config": {
			config: &Config{},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, 5*time.Second, tt.config.setupTimeout())
			assert.Zero(t, tt.config.infoInterval())
			assert.Nil(t, tt.config.checkHTTPOrigin())
			assert.Equal(t, []Version{Lite02, Lite01}, tt.config.versions())
			assert.NotNil(t, tt.config.clock())
			assert.NotNil(t, tt.config.logger())
		})
	}
}

func TestConfig_Overrides(t *testing.T) {
	clock := clockwork.NewFakeClock()
	checkOrigin := func(r *http.Request) bool { return r.Header.Get("Origin") == "https://example.com" }

	config := &Config{
		CheckHTTPOrigin: checkOrigin,
		SetupTimeout:    time.Second,
		InfoInterval:    250 * time.Millisecond,
		Versions:        []Version{Lite01},
		Clock:           clock,
	}

	assert.Equal(t, time.Second, config.setupTimeout())
	assert.Equal(t, 250*time.Millisecond, config.infoInterval())
	assert.Equal(t, []Version{Lite01}, config.versions())
	assert.Same(t, clock, config.clock())

	r, _ := http.NewRequest(http.MethodConnect, "https://relay.example.com", nil)
	r.Header.Set("Origin", "https://example.com")
	assert.True(t, config.checkHTTPOrigin()(r))
}

func TestConfig_Clone(t *testing.T) {
	var nilConfig *Config
	assert.Nil(t, nilConfig.Clone())

	original := &Config{
		SetupTimeout: time.Second,
		Versions:     []Version{Lite02},
	}

	clone := original.Clone()
	assert.NotSame(t, original, clone)
	assert.Equal(t, original.SetupTimeout, clone.SetupTimeout)

	clone.SetupTimeout = 2 * time.Second
	assert.Equal(t, time.Second, original.SetupTimeout)
}
