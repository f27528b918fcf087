package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot_Validate(t *testing.T) {
	tests := map[string]struct {
		root    Root
		wantErr bool
	}{
		"empty": {
			root:    Root{},
			wantErr: false,
		},
		"audio and video": {
			root: Root{Tracks: []Track{
				{Name: "video", Codec: "avc1.64001f", Width: 1280, Height: 720},
				{Name: "audio", Codec: "opus", SampleRate: 48000, ChannelConfig: "2"},
			}},
			wantErr: false,
		},
		"unnamed track": {
			root:    Root{Tracks: []Track{{Codec: "opus"}}},
			wantErr: true,
		},
		"reserved name": {
			root:    Root{Tracks: []Track{{Name: string(TrackName)}}},
			wantErr: true,
		},
		"duplicate name": {
			root:    Root{Tracks: []Track{{Name: "video"}, {Name: "video"}}},
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.root.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCatalog)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEncode(t *testing.T) {
	b, err := Encode(Root{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"tracks":[]}`, string(b))

	b, err = Encode(Root{
		Packaging: LOC,
		Tracks: []Track{
			{Name: "video", Priority: 1, Codec: "avc1.64001f", InitData: []byte{0x01, 0x64}},
		},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"version": 1,
		"packaging": "loc",
		"tracks": [{"name": "video", "priority": 1, "codec": "avc1.64001f", "initData": "AWQ="}]
	}`, string(b))
}

func TestDecode(t *testing.T) {
	tests := map[string]struct {
		doc     string
		want    Root
		wantErr bool
	}{
		"minimal": {
			doc:  `{"version":1,"tracks":[{"name":"audio","priority":2,"codec":"opus","samplerate":48000}]}`,
			want: Root{Version: 1, Tracks: []Track{{Name: "audio", Priority: 2, Codec: "opus", SampleRate: 48000}}},
		},
		"unknown fields are ignored": {
			doc:  `{"version":2,"streamingFormat":1,"tracks":[]}`,
			want: Root{Version: 2, Tracks: []Track{}},
		},
		"not JSON": {
			doc:     `catalog`,
			wantErr: true,
		},
		"duplicate track": {
			doc:     `{"tracks":[{"name":"a"},{"name":"a"}]}`,
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := Decode([]byte(tt.doc))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCatalog)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoot_Track(t *testing.T) {
	root := Root{Tracks: []Track{{Name: "video", Width: 1920}, {Name: "audio"}}}

	track, ok := root.Track("video")
	assert.True(t, ok)
	assert.Equal(t, 1920, track.Width)

	_, ok = root.Track("captions")
	assert.False(t, ok)
}
