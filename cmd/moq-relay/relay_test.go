package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/okdaichi/moqlite/moqt"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ session = (*fakeSession)(nil)

// fakeSession stands in for a connection: broadcasts it announces are
// produced locally and broadcasts the relay publishes to it are recorded.
type fakeSession struct {
	ctx    context.Context
	cancel context.CancelFunc

	announced *moqt.AnnouncedProducer

	mu        sync.Mutex
	upstream  map[moqt.BroadcastPath]*moqt.BroadcastProducer
	published map[moqt.BroadcastPath]*moqt.BroadcastConsumer
}

func newFakeSession() *fakeSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeSession{
		ctx:       ctx,
		cancel:    cancel,
		announced: moqt.NewAnnounced(),
		upstream:  make(map[moqt.BroadcastPath]*moqt.BroadcastProducer),
		published: make(map[moqt.BroadcastPath]*moqt.BroadcastConsumer),
	}
}

func (s *fakeSession) announce(t *testing.T, path moqt.BroadcastPath) *moqt.BroadcastProducer {
	t.Helper()

	broadcast := moqt.NewBroadcast(nil)

	s.mu.Lock()
	s.upstream[path] = broadcast
	s.mu.Unlock()

	require.NoError(t, s.announced.Write(moqt.Announcement{Path: path, Active: true}))
	return broadcast
}

func (s *fakeSession) unannounce(t *testing.T, path moqt.BroadcastPath) {
	t.Helper()
	require.NoError(t, s.announced.Write(moqt.Announcement{Path: path, Active: false}))
}

func (s *fakeSession) lookup(path moqt.BroadcastPath) (*moqt.BroadcastConsumer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.published[path]
	return b, ok
}

func (s *fakeSession) numPublished() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func (s *fakeSession) Publish(path moqt.BroadcastPath, broadcast *moqt.BroadcastConsumer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.published[path]; ok {
		return moqt.ErrDuplicatedBroadcast
	}
	s.published[path] = broadcast
	return nil
}

func (s *fakeSession) Unpublish(path moqt.BroadcastPath) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.published[path]
	if !ok {
		return false
	}
	delete(s.published, path)
	b.Close()
	return true
}

func (s *fakeSession) Consume(path moqt.BroadcastPath) *moqt.BroadcastConsumer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.upstream[path]; ok {
		return b.Consume()
	}
	return moqt.NewBroadcast(nil).Consume()
}

func (s *fakeSession) Announced(prefix string) *moqt.AnnouncedConsumer {
	return s.announced.Consume(prefix)
}

func (s *fakeSession) Context() context.Context {
	return s.ctx
}

// join runs the relay for sess until the test ends or sess is canceled.
func join(t *testing.T, r *relay, sess *fakeSession) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.serve(sess, r.logger)
	}()

	t.Cleanup(func() {
		sess.cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		_, ok := r.sessions[sess]
		return ok
	}, time.Second, 5*time.Millisecond)
}

func hasOrigin(r *relay, path moqt.BroadcastPath, from session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.origins[path]
	return ok && o.from == from
}

func newTestRelay() *relay {
	return newRelay(slog.New(slog.DiscardHandler))
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

const waitFor = 2 * time.Second

func TestRelay_ForwardsAnnouncedBroadcast(t *testing.T) {
	r := newTestRelay()
	origin, viewer := newFakeSession(), newFakeSession()
	join(t, r, origin)
	join(t, r, viewer)

	forwardsBefore := testutil.ToFloat64(forwardsTotal.WithLabelValues("ok"))

	broadcast := origin.announce(t, "live/cam1")
	video, err := broadcast.CreateTrack("video", 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := viewer.lookup("live/cam1")
		return ok
	}, waitFor, 5*time.Millisecond)

	assert.Zero(t, origin.numPublished(), "broadcast must not be echoed to its origin")
	assert.Equal(t, forwardsBefore+1, testutil.ToFloat64(forwardsTotal.WithLabelValues("ok")))

	forwarded, _ := viewer.lookup("live/cam1")
	track := forwarded.Subscribe("video", 1)
	defer track.Close()

	group, err := video.AppendGroup()
	require.NoError(t, err)
	require.NoError(t, group.WriteFrame([]byte("keyframe")))
	require.NoError(t, group.Close())

	ctx := testContext(t)
	gc, err := track.NextGroup(ctx)
	require.NoError(t, err)
	frame, err := gc.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("keyframe"), frame)
	_, err = gc.ReadFrame(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRelay_UnannounceUnpublishes(t *testing.T) {
	r := newTestRelay()
	origin, viewer := newFakeSession(), newFakeSession()
	join(t, r, origin)
	join(t, r, viewer)

	originsBefore := testutil.ToFloat64(originsCurrent)

	origin.announce(t, "live/cam1")
	require.Eventually(t, func() bool {
		_, ok := viewer.lookup("live/cam1")
		return ok
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, originsBefore+1, testutil.ToFloat64(originsCurrent))

	origin.unannounce(t, "live/cam1")
	require.Eventually(t, func() bool {
		_, ok := viewer.lookup("live/cam1")
		return !ok
	}, waitFor, 5*time.Millisecond)
	assert.False(t, hasOrigin(r, "live/cam1", origin))
	assert.Equal(t, originsBefore, testutil.ToFloat64(originsCurrent))
}

func TestRelay_LateJoinerReceivesOrigins(t *testing.T) {
	r := newTestRelay()
	origin := newFakeSession()
	join(t, r, origin)

	origin.announce(t, "live/cam1")
	origin.announce(t, "live/cam2")
	require.Eventually(t, func() bool {
		return hasOrigin(r, "live/cam1", origin) && hasOrigin(r, "live/cam2", origin)
	}, waitFor, 5*time.Millisecond)

	late := newFakeSession()
	join(t, r, late)

	assert.Equal(t, 2, late.numPublished())
	_, ok := late.lookup("live/cam2")
	assert.True(t, ok)
}

func TestRelay_OriginLeaving(t *testing.T) {
	r := newTestRelay()
	origin, viewer := newFakeSession(), newFakeSession()
	join(t, r, origin)
	join(t, r, viewer)

	sessionsBefore := testutil.ToFloat64(sessionsCurrent)

	origin.announce(t, "live/cam1")
	require.Eventually(t, func() bool {
		_, ok := viewer.lookup("live/cam1")
		return ok
	}, waitFor, 5*time.Millisecond)

	origin.cancel()

	require.Eventually(t, func() bool {
		_, ok := viewer.lookup("live/cam1")
		return !ok
	}, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(sessionsCurrent) == sessionsBefore-1
	}, waitFor, 5*time.Millisecond)
	assert.False(t, hasOrigin(r, "live/cam1", origin))
}

func TestRelay_FirstAnnouncerOwnsPath(t *testing.T) {
	r := newTestRelay()
	first, second, viewer := newFakeSession(), newFakeSession(), newFakeSession()
	join(t, r, first)
	join(t, r, second)
	join(t, r, viewer)

	first.announce(t, "live/cam1")
	require.Eventually(t, func() bool {
		return hasOrigin(r, "live/cam1", first)
	}, waitFor, 5*time.Millisecond)

	second.announce(t, "live/cam1")
	second.unannounce(t, "live/cam1")

	// Announcements are handled in order, so cam2 proves cam1 was seen.
	second.announce(t, "live/cam2")
	require.Eventually(t, func() bool {
		return hasOrigin(r, "live/cam2", second)
	}, waitFor, 5*time.Millisecond)

	assert.True(t, hasOrigin(r, "live/cam1", first))
	_, ok := viewer.lookup("live/cam1")
	assert.True(t, ok)
}
