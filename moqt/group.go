package moqt

import (
	"context"

	"github.com/okdaichi/moqlite/moqt/watch"
)

// GroupSequence numbers the groups of a track. Sequences increase
// monotonically within a track.
type GroupSequence uint64

// NewGroup creates an open group.
func NewGroup(seq GroupSequence) *GroupProducer {
	return &GroupProducer{
		sequence: seq,
		frames:   watch.New[[][]byte](nil),
	}
}

// GroupProducer appends frames to a group.
type GroupProducer struct {
	sequence GroupSequence
	frames   *watch.Producer[[][]byte]
}

func (g *GroupProducer) Sequence() GroupSequence {
	return g.sequence
}

// WriteFrame appends frame. The group keeps a reference to frame, which must
// not be modified afterwards.
func (g *GroupProducer) WriteFrame(frame []byte) error {
	// Readers only index below the length of their snapshot, so appending in
	// place never touches memory they can read.
	return g.frames.UpdateFunc(func(frames [][]byte) [][]byte {
		return append(frames, frame)
	})
}

// Close ends the group. Readers still receive every written frame.
func (g *GroupProducer) Close() error {
	return g.frames.Close()
}

// Abort ends the group with reason, which readers receive instead of the
// remaining frames.
func (g *GroupProducer) Abort(reason error) error {
	return g.frames.Abort(reason)
}

// Done returns a channel closed once the group is closed or aborted.
func (g *GroupProducer) Done() <-chan struct{} {
	return g.frames.Done()
}

// Len returns the number of frames written so far.
func (g *GroupProducer) Len() int {
	return len(g.frames.Value())
}

// Consume creates a reader positioned at the first frame.
func (g *GroupProducer) Consume() *GroupConsumer {
	return &GroupConsumer{
		sequence: g.sequence,
		frames:   g.frames.Consume(),
	}
}

// GroupConsumer reads the frames of a group in order.
// It must not be used from several goroutines at once; use Clone instead.
type GroupConsumer struct {
	sequence GroupSequence
	frames   *watch.Consumer[[][]byte]
	index    int
}

func (g *GroupConsumer) Sequence() GroupSequence {
	return g.sequence
}

// ReadFrame returns the next frame, waiting for it to be written.
// It returns io.EOF after the last frame of a closed group.
func (g *GroupConsumer) ReadFrame(ctx context.Context) ([]byte, error) {
	frames, err := g.frames.When(ctx, g.hasFrame)
	if err != nil {
		return nil, err
	}
	return g.advance(frames), nil
}

// TryReadFrame is the non-blocking form of ReadFrame.
func (g *GroupConsumer) TryReadFrame() ([]byte, bool, error) {
	frames, ok, err := g.frames.TryWhen(g.hasFrame)
	if err != nil || !ok {
		return nil, false, err
	}
	return g.advance(frames), true, nil
}

func (g *GroupConsumer) hasFrame(frames [][]byte) bool {
	return len(frames) > g.index
}

func (g *GroupConsumer) advance(frames [][]byte) []byte {
	frame := frames[g.index]
	g.index++
	return frame
}

// Index returns the index of the next frame to be read.
func (g *GroupConsumer) Index() int {
	return g.index
}

// changed is closed once a frame arrives after the last TryReadFrame or the
// group ends.
func (g *GroupConsumer) changed() <-chan struct{} {
	return g.frames.Changed()
}

// Clone creates an independent reader positioned at the first frame.
func (g *GroupConsumer) Clone() *GroupConsumer {
	return &GroupConsumer{
		sequence: g.sequence,
		frames:   g.frames.Clone(),
	}
}

// Close releases the reader without affecting other readers of the group.
func (g *GroupConsumer) Close() {
	g.frames.Close()
}
