package catalog

import (
	"context"

	"github.com/okdaichi/moqlite/moqt"
)

// CreateTrack adds the catalog track to broadcast.
func CreateTrack(broadcast *moqt.BroadcastProducer) (*moqt.TrackProducer, error) {
	return broadcast.CreateTrack(TrackName, Priority)
}

// Publish writes r as the latest catalog on track.
func Publish(track *moqt.TrackProducer, r Root) error {
	b, err := Encode(r)
	if err != nil {
		return err
	}

	group, err := track.AppendGroup()
	if err != nil {
		return err
	}
	if err := group.WriteFrame(b); err != nil {
		return err
	}
	return group.Close()
}

// Fetch subscribes to the catalog of broadcast and returns the latest
// document.
func Fetch(ctx context.Context, broadcast *moqt.BroadcastConsumer) (Root, error) {
	reader := NewReader(broadcast.Subscribe(TrackName, Priority))
	defer reader.Close()

	return reader.Next(ctx)
}

// Reader decodes successive catalog updates from a track.
type Reader struct {
	track *moqt.TrackConsumer
}

func NewReader(track *moqt.TrackConsumer) *Reader {
	return &Reader{track: track}
}

// Next waits for a catalog newer than the last one returned. It returns
// io.EOF once the track is closed.
func (r *Reader) Next(ctx context.Context) (Root, error) {
	group, err := r.track.NextGroup(ctx)
	if err != nil {
		return Root{}, err
	}
	defer group.Close()

	frame, err := group.ReadFrame(ctx)
	if err != nil {
		return Root{}, err
	}

	return Decode(frame)
}

func (r *Reader) Close() {
	r.track.Close()
}
