package moqt

import (
	"context"
	"sync"

	"github.com/okdaichi/moqlite/moqt/watch"
)

// TrackName identifies a track within a broadcast.
type TrackName string

func (tn TrackName) String() string {
	return string(tn)
}

// TrackPriority orders tracks when bandwidth is scarce. Higher is more important.
type TrackPriority int32

// wire returns the priority as carried in messages. Negative priorities are
// sent as zero.
func (tp TrackPriority) wire() uint64 {
	return uint64(max(tp, 0))
}

// NewTrack creates an open track without groups.
func NewTrack(name TrackName, priority TrackPriority) *TrackProducer {
	return &TrackProducer{
		name:     name,
		priority: priority,
		latest:   watch.New[*GroupProducer](nil),
	}
}

// TrackProducer writes the groups of a track. Only the latest group is
// retained: a new group closes the previous one, and groups older than the
// latest are discarded.
type TrackProducer struct {
	name     TrackName
	priority TrackPriority

	mu     sync.Mutex
	next   GroupSequence
	latest *watch.Producer[*GroupProducer]
}

func (t *TrackProducer) Name() TrackName {
	return t.name
}

func (t *TrackProducer) Priority() TrackPriority {
	return t.priority
}

// AppendGroup starts the group following the latest one.
func (t *TrackProducer) AppendGroup() (*GroupProducer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	group := NewGroup(t.next)
	if err := t.insert(group); err != nil {
		return nil, err
	}
	return group, nil
}

// InsertGroup makes group the latest group of the track.
// A group whose sequence is below the next expected sequence is stale: it is
// closed and dropped, and InsertGroup returns nil.
func (t *TrackProducer) InsertGroup(group *GroupProducer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if group.Sequence() < t.next {
		group.Close()
		return nil
	}

	return t.insert(group)
}

func (t *TrackProducer) insert(group *GroupProducer) error {
	prev := t.latest.Value()

	if err := t.latest.Update(group); err != nil {
		group.Abort(err)
		return err
	}
	t.next = group.Sequence() + 1

	if prev != nil {
		prev.Close()
	}

	return nil
}

// Close ends the track and its latest group.
func (t *TrackProducer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	latest := t.latest.Value()
	if err := t.latest.Close(); err != nil {
		return err
	}
	if latest != nil {
		latest.Close()
	}
	return nil
}

// Abort ends the track and its latest group with reason.
func (t *TrackProducer) Abort(reason error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	latest := t.latest.Value()
	if err := t.latest.Abort(reason); err != nil {
		return err
	}
	if latest != nil {
		latest.Abort(reason)
	}
	return nil
}

// Done returns a channel closed once the track is closed or aborted.
func (t *TrackProducer) Done() <-chan struct{} {
	return t.latest.Done()
}

// Err returns the abort reason, if any.
func (t *TrackProducer) Err() error {
	return t.latest.Err()
}

// Unused returns a channel that is closed while the track has no consumers.
func (t *TrackProducer) Unused() <-chan struct{} {
	return t.latest.Unused()
}

// Consume creates a consumer that starts at the latest group.
func (t *TrackProducer) Consume() *TrackConsumer {
	return &TrackConsumer{
		name:     t.name,
		priority: t.priority,
		latest:   t.latest.Consume(),
	}
}

// TrackFrame is a frame read through TrackConsumer.NextFrame.
type TrackFrame struct {
	Group   GroupSequence
	Index   int
	Payload []byte
}

// Keyframe reports whether the frame starts its group.
func (f TrackFrame) Keyframe() bool {
	return f.Index == 0
}

// TrackConsumer reads the groups of a track in non-decreasing sequence order.
// Use either NextGroup or NextFrame on a consumer, not both.
type TrackConsumer struct {
	name     TrackName
	priority TrackPriority

	latest  *watch.Consumer[*GroupProducer]
	current *GroupConsumer
}

func (t *TrackConsumer) Name() TrackName {
	return t.name
}

func (t *TrackConsumer) Priority() TrackPriority {
	return t.priority
}

// NextGroup waits for a group the consumer has not seen yet. Groups replaced
// before the consumer looked are skipped. It returns io.EOF once the track is
// closed and its last group was returned.
func (t *TrackConsumer) NextGroup(ctx context.Context) (*GroupConsumer, error) {
	group, err := t.latest.Next(ctx, isGroup)
	if err != nil {
		return nil, err
	}
	return group.Consume(), nil
}

func isGroup(g *GroupProducer) bool {
	return g != nil
}

// NextFrame returns the next frame across groups. A newer group takes over as
// soon as it is observed, even if the current group still has unread frames;
// those are skipped. It returns io.EOF once the track is closed and drained.
func (t *TrackConsumer) NextFrame(ctx context.Context) (TrackFrame, error) {
	for {
		next, ok, trackErr := t.latest.TryNext(t.isNewer)
		if ok {
			t.dropCurrent()
			t.current = next.Consume()
		}

		if t.current != nil {
			index := t.current.Index()
			payload, ok, err := t.current.TryReadFrame()
			if ok {
				return TrackFrame{
					Group:   t.current.Sequence(),
					Index:   index,
					Payload: payload,
				}, nil
			}
			if err != nil {
				// The group ended or was aborted; either way its data is done.
				t.dropCurrent()
				continue
			}
		}

		if trackErr != nil && t.current == nil {
			return TrackFrame{}, trackErr
		}

		var trackChanged <-chan struct{}
		if trackErr == nil {
			trackChanged = t.latest.Changed()
		}
		var groupChanged <-chan struct{}
		if t.current != nil {
			groupChanged = t.current.changed()
		}

		select {
		case <-ctx.Done():
			return TrackFrame{}, ctx.Err()
		case <-groupChanged:
		case <-trackChanged:
		}
	}
}

func (t *TrackConsumer) isNewer(g *GroupProducer) bool {
	if g == nil {
		return false
	}
	return t.current == nil || g.Sequence() > t.current.Sequence()
}

func (t *TrackConsumer) dropCurrent() {
	if t.current != nil {
		t.current.Close()
		t.current = nil
	}
}

// Clone creates an independent consumer at the same position.
func (t *TrackConsumer) Clone() *TrackConsumer {
	return &TrackConsumer{
		name:     t.name,
		priority: t.priority,
		latest:   t.latest.Clone(),
	}
}

// Close releases the consumer without affecting other consumers.
func (t *TrackConsumer) Close() {
	t.dropCurrent()
	t.latest.Close()
}

// Done returns a channel closed once the track is closed or aborted.
func (t *TrackConsumer) Done() <-chan struct{} {
	return t.latest.Done()
}

// Err returns the abort reason of the track, or nil.
func (t *TrackConsumer) Err() error {
	return t.latest.Err()
}
