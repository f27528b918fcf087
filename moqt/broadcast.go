package moqt

import (
	"maps"
	"sync"

	"github.com/okdaichi/moqlite/moqt/watch"
)

// TrackResolver produces tracks that a consumer requested but the broadcast
// does not hold yet. ResolveTrack runs on its own goroutine and owns the
// track: it should write groups until the track becomes unused, then close
// it, or abort it when the track cannot be served.
type TrackResolver interface {
	ResolveTrack(track *TrackProducer)
}

// TrackResolverFunc adapts a function to TrackResolver.
type TrackResolverFunc func(track *TrackProducer)

func (f TrackResolverFunc) ResolveTrack(track *TrackProducer) {
	f(track)
}

// NewBroadcast creates an empty broadcast. A nil resolver makes requests for
// unknown tracks fail with ErrTrackNotFound.
func NewBroadcast(resolver TrackResolver) *BroadcastProducer {
	return &BroadcastProducer{
		state: &broadcastState{
			tracks:   watch.New[map[TrackName]*TrackProducer](nil),
			resolver: resolver,
		},
	}
}

type broadcastState struct {
	mu sync.Mutex

	// tracks is replaced on every change and never mutated in place.
	tracks   *watch.Producer[map[TrackName]*TrackProducer]
	resolver TrackResolver
}

func (s *broadcastState) insert(track *TrackProducer) (*TrackProducer, error) {
	var prev *TrackProducer
	err := s.tracks.UpdateFunc(func(tracks map[TrackName]*TrackProducer) map[TrackName]*TrackProducer {
		prev = tracks[track.Name()]
		next := maps.Clone(tracks)
		if next == nil {
			next = make(map[TrackName]*TrackProducer, 1)
		}
		next[track.Name()] = track
		return next
	})
	if err != nil {
		return nil, err
	}

	go s.removeWhenDone(track)

	return prev, nil
}

func (s *broadcastState) remove(name TrackName, track *TrackProducer) *TrackProducer {
	var removed *TrackProducer
	_ = s.tracks.UpdateFunc(func(tracks map[TrackName]*TrackProducer) map[TrackName]*TrackProducer {
		current, ok := tracks[name]
		if !ok || (track != nil && current != track) {
			return tracks
		}
		removed = current
		next := maps.Clone(tracks)
		delete(next, name)
		return next
	})
	return removed
}

func (s *broadcastState) removeWhenDone(track *TrackProducer) {
	<-track.Done()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.remove(track.Name(), track)
}

// BroadcastProducer owns the tracks of a broadcast.
type BroadcastProducer struct {
	state *broadcastState
}

// CreateTrack adds a new track, replacing any track with the same name.
func (b *BroadcastProducer) CreateTrack(name TrackName, priority TrackPriority) (*TrackProducer, error) {
	track := NewTrack(name, priority)
	if err := b.InsertTrack(track); err != nil {
		return nil, err
	}
	return track, nil
}

// InsertTrack adds track, closing any track it replaces. Finished tracks are
// dropped from the broadcast automatically.
func (b *BroadcastProducer) InsertTrack(track *TrackProducer) error {
	s := b.state
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.insert(track)
	if err != nil {
		return err
	}
	if prev != nil && prev != track {
		prev.Close()
	}
	return nil
}

// RemoveTrack drops the named track from the broadcast and returns it.
// Consumers already reading it are unaffected.
func (b *BroadcastProducer) RemoveTrack(name TrackName) (*TrackProducer, bool) {
	s := b.state
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.remove(name, nil)
	return removed, removed != nil
}

// Close ends the broadcast and every track in it.
func (b *BroadcastProducer) Close() error {
	return b.finish(func(track *TrackProducer) { track.Close() }, b.state.tracks.Close)
}

// Abort ends the broadcast and every track in it with reason.
func (b *BroadcastProducer) Abort(reason error) error {
	return b.finish(
		func(track *TrackProducer) { track.Abort(reason) },
		func() error { return b.state.tracks.Abort(reason) },
	)
}

func (b *BroadcastProducer) finish(endTrack func(*TrackProducer), endBroadcast func() error) error {
	s := b.state
	s.mu.Lock()
	tracks := s.tracks.Value()
	err := endBroadcast()
	s.mu.Unlock()

	if err != nil {
		return err
	}
	for _, track := range tracks {
		endTrack(track)
	}
	return nil
}

// Done returns a channel closed once the broadcast is closed or aborted.
func (b *BroadcastProducer) Done() <-chan struct{} {
	return b.state.tracks.Done()
}

// Unused returns a channel that is closed while the broadcast has no consumers.
func (b *BroadcastProducer) Unused() <-chan struct{} {
	return b.state.tracks.Unused()
}

// Consumers returns the number of live consumers.
func (b *BroadcastProducer) Consumers() int {
	return b.state.tracks.Consumers()
}

func (b *BroadcastProducer) Consume() *BroadcastConsumer {
	return &BroadcastConsumer{
		state:  b.state,
		tracks: b.state.tracks.Consume(),
	}
}

// BroadcastConsumer requests tracks from a broadcast.
type BroadcastConsumer struct {
	state  *broadcastState
	tracks *watch.Consumer[map[TrackName]*TrackProducer]
}

// Subscribe returns a consumer of the named track. An existing track is
// shared; otherwise the resolver is asked to produce it. The returned track
// is aborted when the broadcast has ended or no resolver can produce it.
// priority only applies to a newly requested track.
func (b *BroadcastConsumer) Subscribe(name TrackName, priority TrackPriority) *TrackConsumer {
	s := b.state
	s.mu.Lock()

	// An ended track stays in the table until removeWhenDone runs; it is
	// replaced so that a retry reaches the resolver again.
	if track, ok := s.tracks.Value()[name]; ok && !isDone(track) {
		s.mu.Unlock()
		return track.Consume()
	}

	track := NewTrack(name, priority)
	consumer := track.Consume()

	if s.resolver == nil {
		s.mu.Unlock()
		track.Abort(ErrTrackNotFound)
		return consumer
	}

	if _, err := s.insert(track); err != nil {
		reason := s.tracks.Err()
		s.mu.Unlock()
		if reason == nil {
			reason = ErrClosed
		}
		track.Abort(reason)
		return consumer
	}

	resolver := s.resolver
	s.mu.Unlock()

	go resolver.ResolveTrack(track)

	return consumer
}

func isDone(track *TrackProducer) bool {
	select {
	case <-track.Done():
		return true
	default:
		return false
	}
}

// Clone creates another consumer of the same broadcast.
func (b *BroadcastConsumer) Clone() *BroadcastConsumer {
	return &BroadcastConsumer{
		state:  b.state,
		tracks: b.tracks.Clone(),
	}
}

// Close releases the consumer. Tracks it subscribed to stay alive until their
// own consumers are closed.
func (b *BroadcastConsumer) Close() {
	b.tracks.Close()
}

// Done returns a channel closed once the broadcast is closed or aborted.
func (b *BroadcastConsumer) Done() <-chan struct{} {
	return b.tracks.Done()
}

// Err returns the abort reason of the broadcast, or nil.
func (b *BroadcastConsumer) Err() error {
	return b.tracks.Err()
}
