package moqt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/okdaichi/moqlite/moqt/internal/message"
	"github.com/okdaichi/moqlite/moqt/metrics"
	"github.com/okdaichi/moqlite/quic"
)

func newSubscriber(ctx context.Context, conn quic.Connection, logger *slog.Logger) *subscriber {
	return &subscriber{
		ctx:        ctx,
		conn:       conn,
		logger:     logger,
		broadcasts: make(map[BroadcastPath]*BroadcastProducer),
		tracks:     make(map[uint64]*TrackProducer),
	}
}

// subscriber consumes broadcasts published by the peer.
type subscriber struct {
	ctx    context.Context
	conn   quic.Connection
	logger *slog.Logger

	nextID atomic.Uint64

	mu         sync.Mutex
	broadcasts map[BroadcastPath]*BroadcastProducer
	tracks     map[uint64]*TrackProducer

	bytesReceived atomic.Uint64

	// violation closes the connection after a malformed message.
	violation func(error)
}

// announced opens an announce stream for prefix. The returned consumer
// reports paths relative to prefix.
func (s *subscriber) announced(prefix string) *AnnouncedConsumer {
	producer := NewAnnounced()
	consumer := producer.Consume("")

	go s.runAnnounced(prefix, producer)

	return consumer
}

func (s *subscriber) runAnnounced(prefix string, producer *AnnouncedProducer) {
	logger := s.logger.With("prefix", prefix)

	stream, err := s.conn.OpenStreamSync(s.ctx)
	if err != nil {
		logger.Debug("failed to open announce stream",
			"error", err,
		)
		producer.Abort(wrapStreamError(message.StreamTypeSession, false, err))
		return
	}

	logger = logger.With("stream_id", stream.StreamID())

	err = message.StreamTypeAnnounce.Encode(stream)
	if err == nil {
		err = message.AnnounceInterestMessage{Prefix: prefix}.Encode(stream)
	}
	if err != nil {
		logger.Debug("failed to send ANNOUNCE_INTEREST message",
			"error", err,
		)
		cancelStreamWithError(stream, quic.StreamErrorCode(InternalAnnounceErrorCode))
		producer.Abort(wrapStreamError(message.StreamTypeAnnounce, false, err))
		return
	}

	unused := producer.Unused()
	finished := make(chan struct{})
	defer close(finished)

	go func() {
		select {
		case <-unused:
			stream.CancelRead(quic.StreamErrorCode(UninterestedErrorCode))
			stream.Close()
		case <-finished:
		}
	}()

	active := make(map[string]struct{})
	for {
		var am message.AnnounceMessage
		err := am.Decode(stream)
		if err != nil {
			select {
			case <-unused:
				producer.Close()
				return
			default:
			}

			if errors.Is(err, io.EOF) {
				producer.Close()
				stream.Close()
				return
			}

			logger.Debug("announce stream ended",
				"error", err,
			)
			if message.IsMalformed(err) {
				s.violation(err)
			}
			producer.Abort(wrapStreamError(message.StreamTypeAnnounce, false, err))
			return
		}

		suffix := am.BroadcastPathSuffix
		_, known := active[suffix]
		if am.Active() {
			if known {
				logger.Warn("duplicate announcement",
					"suffix", suffix,
				)
			}
			active[suffix] = struct{}{}
		} else {
			if !known {
				logger.Warn("end of unknown announcement",
					"suffix", suffix,
				)
			}
			delete(active, suffix)
		}

		if err := producer.Write(Announcement{Path: BroadcastPath(suffix), Active: am.Active()}); err != nil {
			return
		}
	}
}

// consume returns a consumer of the remote broadcast at path. Consumers of the
// same path share one broadcast, and each track is subscribed at most once.
func (s *subscriber) consume(path BroadcastPath) *BroadcastConsumer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if broadcast, ok := s.broadcasts[path]; ok {
		return broadcast.Consume()
	}

	broadcast := NewBroadcast(TrackResolverFunc(func(track *TrackProducer) {
		s.runSubscribe(path, track)
	}))
	consumer := broadcast.Consume()

	if s.ctx.Err() != nil {
		broadcast.Abort(Cause(s.ctx))
		return consumer
	}

	s.broadcasts[path] = broadcast
	go s.evict(path, broadcast)

	return consumer
}

// evict forgets the broadcast once nobody consumes it, so the next consume
// starts afresh.
func (s *subscriber) evict(path BroadcastPath, broadcast *BroadcastProducer) {
	for {
		select {
		case <-broadcast.Unused():
			s.mu.Lock()
			if broadcast.Consumers() > 0 {
				s.mu.Unlock()
				continue
			}
			// Tracks already subscribed live on until their own consumers
			// are gone.
			s.remove(path, broadcast)
			s.mu.Unlock()
			return
		case <-broadcast.Done():
			s.mu.Lock()
			s.remove(path, broadcast)
			s.mu.Unlock()
			return
		case <-s.ctx.Done():
			s.mu.Lock()
			s.remove(path, broadcast)
			s.mu.Unlock()

			broadcast.Abort(Cause(s.ctx))
			return
		}
	}
}

// remove must be called with s.mu held.
func (s *subscriber) remove(path BroadcastPath, broadcast *BroadcastProducer) {
	if s.broadcasts[path] == broadcast {
		delete(s.broadcasts, path)
	}
}

func (s *subscriber) register(id uint64, track *TrackProducer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[id] = track
}

func (s *subscriber) deregister(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracks, id)
}

func (s *subscriber) track(id uint64) (*TrackProducer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	track, ok := s.tracks[id]
	return track, ok
}

// runSubscribe requests track from the peer and feeds it until the track is
// unused, the peer ends the subscription, or the connection closes.
func (s *subscriber) runSubscribe(path BroadcastPath, track *TrackProducer) {
	id := s.nextID.Add(1) - 1

	logger := s.logger.With(
		"subscribe_id", id,
		"broadcast_path", path,
		"track_name", track.Name(),
	)

	s.register(id, track)
	defer s.deregister(id)

	stream, err := s.conn.OpenStreamSync(s.ctx)
	if err != nil {
		logger.Debug("failed to open subscribe stream",
			"error", err,
		)
		track.Abort(wrapStreamError(message.StreamTypeSession, false, err))
		return
	}

	err = message.StreamTypeSubscribe.Encode(stream)
	if err == nil {
		err = message.SubscribeMessage{
			SubscribeID:   id,
			BroadcastPath: string(path),
			TrackName:     string(track.Name()),
			TrackPriority: track.Priority().wire(),
		}.Encode(stream)
	}
	if err != nil {
		logger.Debug("failed to send SUBSCRIBE message",
			"error", err,
		)
		cancelStreamWithError(stream, quic.StreamErrorCode(InternalSubscribeErrorCode))
		track.Abort(wrapStreamError(message.StreamTypeSubscribe, false, err))
		return
	}

	metrics.SubscriptionsCurrent.WithLabelValues(metrics.RoleSubscriber).Inc()
	defer metrics.SubscriptionsCurrent.WithLabelValues(metrics.RoleSubscriber).Dec()

	logger.Debug("subscribing")

	done := make(chan error, 1)
	go func() {
		var som message.SubscribeOkMessage
		if err := som.Decode(stream); err != nil {
			done <- err
			return
		}
		logger.Debug("subscribed",
			"priority", som.TrackPriority,
		)

		_, err := io.Copy(io.Discard, stream)
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil || errors.Is(err, io.EOF) {
			logger.Debug("subscription ended by publisher")
			stream.Close()
			track.Close()
			return
		}

		reason := wrapStreamError(message.StreamTypeSubscribe, false, err)
		logger.Debug("subscription failed",
			"reason", reason,
		)
		stream.CancelWrite(quic.StreamErrorCode(subscribeErrorCodeOf(reason)))
		track.Abort(reason)
	case <-track.Unused():
		logger.Debug("unsubscribing")
		stream.CancelRead(quic.StreamErrorCode(SubscribeCanceledErrorCode))
		stream.Close()
		track.Close()
	case <-track.Done():
		logger.Debug("track ended locally")
		cancelStreamWithError(stream, quic.StreamErrorCode(SubscribeCanceledErrorCode))
	case <-s.ctx.Done():
		track.Abort(Cause(s.ctx))
	}
}

// runGroup receives a group stream opened by the peer.
func (s *subscriber) runGroup(stream quic.ReceiveStream, logger *slog.Logger) {
	var gm message.GroupMessage
	if err := gm.Decode(stream); err != nil {
		logger.Warn("failed to decode GROUP message",
			"error", err,
		)
		if message.IsMalformed(err) {
			s.violation(err)
			return
		}
		stream.CancelRead(quic.StreamErrorCode(InternalGroupErrorCode))
		return
	}

	logger = logger.With(
		"subscribe_id", gm.SubscribeID,
		"group_sequence", gm.GroupSequence,
	)

	track, ok := s.track(gm.SubscribeID)
	if !ok {
		logger.Debug("received group for unknown subscription")
		stream.CancelRead(quic.StreamErrorCode(InvalidSubscribeIDErrorCode))
		metrics.GroupsTotal.WithLabelValues(metrics.DirectionReceived, metrics.ResultRejected).Inc()
		return
	}

	group := NewGroup(GroupSequence(gm.GroupSequence))
	if err := track.InsertGroup(group); err != nil {
		stream.CancelRead(quic.StreamErrorCode(ExpiredGroupErrorCode))
		metrics.GroupsTotal.WithLabelValues(metrics.DirectionReceived, metrics.ResultRejected).Inc()
		return
	}

	// A group closed before its stream ends was superseded by a newer one.
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-group.Done():
			stream.CancelRead(quic.StreamErrorCode(ExpiredGroupErrorCode))
		case <-finished:
		}
	}()

	for {
		var fm message.FrameMessage
		err := fm.Decode(stream)
		if err != nil {
			select {
			case <-group.Done():
				logger.Debug("group expired")
				metrics.GroupsTotal.WithLabelValues(metrics.DirectionReceived, metrics.ResultExpired).Inc()
				return
			default:
			}

			if errors.Is(err, io.EOF) {
				group.Close()
				metrics.GroupsTotal.WithLabelValues(metrics.DirectionReceived, metrics.ResultOK).Inc()
				return
			}

			reason := wrapStreamError(message.StreamTypeGroup, true, err)
			logger.Debug("group aborted",
				"reason", reason,
			)
			group.Abort(reason)
			metrics.GroupsTotal.WithLabelValues(metrics.DirectionReceived, metrics.ResultError).Inc()
			return
		}

		s.bytesReceived.Add(uint64(len(fm.Payload)))
		metrics.FrameBytesTotal.WithLabelValues(metrics.DirectionReceived).Add(float64(len(fm.Payload)))

		if err := group.WriteFrame(fm.Payload); err != nil {
			metrics.GroupsTotal.WithLabelValues(metrics.DirectionReceived, metrics.ResultExpired).Inc()
			return
		}
	}
}
