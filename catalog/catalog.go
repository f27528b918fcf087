// Package catalog describes the tracks of a broadcast in a JSON document that
// is itself carried as a track.
//
// The document lives on the track named TrackName. Every update is written as
// a new group whose only frame is the encoded document, so a late subscriber
// starts from the latest catalog.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okdaichi/moqlite/moqt"
)

// TrackName is the name of the track carrying the catalog.
const TrackName moqt.TrackName = "catalog.json"

// Priority is the priority of the catalog track.
const Priority moqt.TrackPriority = 0

// Version is the catalog format version written by this package.
const Version = 1

var (
	// ErrInvalidCatalog is returned for documents that cannot be decoded or
	// that describe tracks inconsistently.
	ErrInvalidCatalog = errors.New("catalog: invalid catalog")
)

type Packaging string

const (
	CMAF Packaging = "cmaf"
	LOC  Packaging = "loc"
)

// Root is the catalog document.
type Root struct {
	Version   int       `json:"version"`
	Packaging Packaging `json:"packaging,omitempty"`
	Tracks    []Track   `json:"tracks"`
}

// Track describes one media track of the broadcast.
type Track struct {
	Name     string             `json:"name"`
	Priority moqt.TrackPriority `json:"priority"`

	Codec    string `json:"codec,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Bitrate  int    `json:"bitrate,omitempty"`

	// Video
	Width     int `json:"width,omitempty"`
	Height    int `json:"height,omitempty"`
	Framerate int `json:"framerate,omitempty"`

	// Audio
	SampleRate    int    `json:"samplerate,omitempty"`
	ChannelConfig string `json:"channelConfig,omitempty"`

	// InitData is the decoder configuration, base64 in JSON.
	InitData []byte `json:"initData,omitempty"`
}

// Track returns the track named name.
func (r Root) Track(name moqt.TrackName) (Track, bool) {
	for _, track := range r.Tracks {
		if track.Name == string(name) {
			return track, true
		}
	}
	return Track{}, false
}

// Validate checks that every track has a distinct, non-empty name other than
// TrackName.
func (r Root) Validate() error {
	seen := make(map[string]struct{}, len(r.Tracks))
	for i, track := range r.Tracks {
		switch {
		case track.Name == "":
			return fmt.Errorf("%w: track %d has no name", ErrInvalidCatalog, i)
		case track.Name == string(TrackName):
			return fmt.Errorf("%w: track %d uses the reserved name %q", ErrInvalidCatalog, i, TrackName)
		}
		if _, ok := seen[track.Name]; ok {
			return fmt.Errorf("%w: duplicate track %q", ErrInvalidCatalog, track.Name)
		}
		seen[track.Name] = struct{}{}
	}
	return nil
}

// Encode validates r and encodes it as JSON. A zero Version is written as
// Version.
func Encode(r Root) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.Version == 0 {
		r.Version = Version
	}
	if r.Tracks == nil {
		r.Tracks = []Track{}
	}
	return json.Marshal(r)
}

// Decode parses and validates a catalog document.
func Decode(b []byte) (Root, error) {
	var r Root
	if err := json.Unmarshal(b, &r); err != nil {
		return Root{}, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	if err := r.Validate(); err != nil {
		return Root{}, err
	}
	return r, nil
}
