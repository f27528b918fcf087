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

// errSubscriberGone is the cause used when a subscriber finishes its side of
// a subscribe stream.
var errSubscriberGone = errors.New("moqt: subscriber canceled")

func newPublisher(ctx context.Context, conn quic.Connection, logger *slog.Logger) *publisher {
	return &publisher{
		ctx:        ctx,
		conn:       conn,
		logger:     logger,
		broadcasts: make(map[BroadcastPath]*publishedBroadcast),
		announced:  NewAnnounced(),
	}
}

// publisher serves the broadcasts published on a connection.
type publisher struct {
	ctx    context.Context
	conn   quic.Connection
	logger *slog.Logger

	mu         sync.Mutex
	broadcasts map[BroadcastPath]*publishedBroadcast

	// announced is the log of every publish and unpublish on this connection.
	announced *AnnouncedProducer

	bytesSent atomic.Uint64

	// violation closes the connection after a malformed message.
	violation func(error)
}

type publishedBroadcast struct {
	consumer *BroadcastConsumer
	stop     chan struct{}
}

func (p *publisher) publish(path BroadcastPath, broadcast *BroadcastConsumer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		broadcast.Close()
		return ErrClosedConnection
	}

	if _, ok := p.broadcasts[path]; ok {
		return ErrDuplicatedBroadcast
	}

	if err := p.announced.Write(Announcement{Path: path, Active: true}); err != nil {
		broadcast.Close()
		return ErrClosedConnection
	}
	metrics.AnnouncementsTotal.WithLabelValues(metrics.StatusActive).Inc()

	pb := &publishedBroadcast{
		consumer: broadcast,
		stop:     make(chan struct{}),
	}
	p.broadcasts[path] = pb

	p.logger.Debug("published broadcast",
		"broadcast_path", path,
	)

	go p.supervise(path, pb)

	return nil
}

func (p *publisher) unpublish(path BroadcastPath) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	pb, ok := p.broadcasts[path]
	if !ok {
		return false
	}

	select {
	case <-pb.stop:
		return false
	default:
		close(pb.stop)
	}
	return true
}

// supervise withdraws the broadcast once it ends, is unpublished, or the
// connection closes.
func (p *publisher) supervise(path BroadcastPath, pb *publishedBroadcast) {
	select {
	case <-pb.consumer.Done():
	case <-pb.stop:
	case <-p.ctx.Done():
	}

	p.mu.Lock()
	if p.broadcasts[path] == pb {
		delete(p.broadcasts, path)
		if err := p.announced.Write(Announcement{Path: path, Active: false}); err == nil {
			metrics.AnnouncementsTotal.WithLabelValues(metrics.StatusEnded).Inc()
		}
	}
	p.mu.Unlock()

	pb.consumer.Close()

	p.logger.Debug("unpublished broadcast",
		"broadcast_path", path,
	)
}

// lookup returns a consumer of the broadcast published at path, or nil.
func (p *publisher) lookup(path BroadcastPath) *BroadcastConsumer {
	p.mu.Lock()
	defer p.mu.Unlock()

	pb, ok := p.broadcasts[path]
	if !ok {
		return nil
	}
	return pb.consumer.Clone()
}

func (p *publisher) close() {
	p.announced.Close()
}

// runAnnounce serves an announce stream opened by the peer.
func (p *publisher) runAnnounce(stream quic.Stream, logger *slog.Logger) {
	var aim message.AnnounceInterestMessage
	if err := aim.Decode(stream); err != nil {
		logger.Warn("failed to decode ANNOUNCE_INTEREST message",
			"error", err,
		)
		if message.IsMalformed(err) {
			p.violation(err)
			return
		}
		cancelStreamWithError(stream, quic.StreamErrorCode(InternalAnnounceErrorCode))
		return
	}

	logger = logger.With("prefix", aim.Prefix)
	logger.Debug("accepted announce stream")

	ctx, cancel := context.WithCancelCause(p.ctx)
	defer cancel(nil)

	// The peer sends nothing after the interest; finishing its side means it
	// lost interest.
	go func() {
		_, err := io.Copy(io.Discard, stream)
		if err == nil {
			err = io.EOF
		}
		cancel(err)
	}()

	anns := p.announced.Consume(aim.Prefix)
	defer anns.Close()

	for {
		ann, err := anns.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(context.Cause(ctx), io.EOF):
				stream.Close()
			case p.ctx.Err() != nil:
				// The connection is gone.
			default:
				logger.Debug("announce stream canceled",
					"reason", context.Cause(ctx),
				)
				cancelStreamWithError(stream, quic.StreamErrorCode(InternalAnnounceErrorCode))
			}
			return
		}

		status := message.ENDED
		if ann.Active {
			status = message.ACTIVE
		}

		err = message.AnnounceMessage{
			AnnounceStatus:      status,
			BroadcastPathSuffix: string(ann.Path),
		}.Encode(stream)
		if err != nil {
			logger.Debug("failed to write ANNOUNCE message",
				"error", err,
			)
			stream.CancelRead(quic.StreamErrorCode(InternalAnnounceErrorCode))
			return
		}

		logger.Debug("announced",
			"suffix", ann.Path,
			"active", ann.Active,
		)
	}
}

// runSubscribe serves a subscribe stream opened by the peer.
func (p *publisher) runSubscribe(stream quic.Stream, logger *slog.Logger) {
	var sm message.SubscribeMessage
	if err := sm.Decode(stream); err != nil {
		logger.Warn("failed to decode SUBSCRIBE message",
			"error", err,
		)
		if message.IsMalformed(err) {
			p.violation(err)
			return
		}
		cancelStreamWithError(stream, quic.StreamErrorCode(InternalSubscribeErrorCode))
		return
	}

	logger = logger.With(
		"subscribe_id", sm.SubscribeID,
		"broadcast_path", sm.BroadcastPath,
		"track_name", sm.TrackName,
	)

	broadcast := p.lookup(BroadcastPath(sm.BroadcastPath))
	if broadcast == nil {
		logger.Debug("rejected subscription for unknown broadcast")
		cancelStreamWithError(stream, quic.StreamErrorCode(TrackNotFoundErrorCode))
		return
	}
	defer broadcast.Close()

	track := broadcast.Subscribe(TrackName(sm.TrackName), TrackPriority(min(sm.TrackPriority, uint64(1<<31-1))))
	defer track.Close()

	metrics.SubscriptionsCurrent.WithLabelValues(metrics.RolePublisher).Inc()
	defer metrics.SubscriptionsCurrent.WithLabelValues(metrics.RolePublisher).Dec()

	logger.Debug("accepted subscription",
		"priority", sm.TrackPriority,
	)

	var priority atomic.Uint64
	priority.Store(sm.TrackPriority)

	ctx, cancel := context.WithCancelCause(p.ctx)
	defer cancel(nil)

	go func() {
		for {
			var sum message.SubscribeUpdateMessage
			if err := sum.Decode(stream); err != nil {
				if errors.Is(err, io.EOF) {
					err = errSubscriberGone
				}
				cancel(err)
				return
			}
			priority.Store(sum.TrackPriority)
			logger.Debug("updated subscription",
				"priority", sum.TrackPriority,
			)
		}
	}()

	var (
		groups sync.WaitGroup
		okSent bool
		err    error
	)
	for {
		var group *GroupConsumer
		group, err = track.NextGroup(ctx)
		if err != nil {
			break
		}

		if !okSent {
			err = message.SubscribeOkMessage{TrackPriority: priority.Load()}.Encode(stream)
			if err != nil {
				group.Close()
				break
			}
			okSent = true
		}

		groups.Go(func() {
			p.serveGroup(ctx, sm.SubscribeID, group, logger)
		})
	}

	groups.Wait()

	switch cause := context.Cause(ctx); {
	case errors.Is(err, io.EOF):
		logger.Debug("track ended")
		stream.Close()
	case errors.Is(cause, errSubscriberGone):
		logger.Debug("subscription canceled by subscriber")
		stream.Close()
	case p.ctx.Err() != nil:
	default:
		if cause != nil {
			err = cause
		}
		code := subscribeErrorCodeOf(err)
		logger.Debug("subscription aborted",
			"reason", err,
			"code", code,
		)
		cancelStreamWithError(stream, quic.StreamErrorCode(code))
	}
}

// serveGroup sends group on its own unidirectional stream.
func (p *publisher) serveGroup(ctx context.Context, id uint64, group *GroupConsumer, logger *slog.Logger) {
	defer group.Close()

	logger = logger.With("group_sequence", group.Sequence())

	stream, err := p.conn.OpenUniStreamSync(ctx)
	if err != nil {
		logger.Debug("failed to open group stream",
			"error", err,
		)
		metrics.GroupsTotal.WithLabelValues(metrics.DirectionSent, metrics.ResultError).Inc()
		return
	}

	// A blocked write must not outlive the subscription.
	stop := context.AfterFunc(ctx, func() {
		stream.CancelWrite(quic.StreamErrorCode(SubscribeCanceledGroupCode))
	})
	defer stop()

	err = message.StreamTypeGroup.Encode(stream)
	if err == nil {
		err = message.GroupMessage{
			SubscribeID:   id,
			GroupSequence: uint64(group.Sequence()),
		}.Encode(stream)
	}

	for err == nil {
		var frame []byte
		frame, err = group.ReadFrame(ctx)
		if err != nil {
			break
		}

		err = message.FrameMessage{Payload: frame}.Encode(stream)
		if err == nil {
			p.bytesSent.Add(uint64(len(frame)))
			metrics.FrameBytesTotal.WithLabelValues(metrics.DirectionSent).Add(float64(len(frame)))
		}
	}

	var strErr *quic.StreamError
	switch {
	case errors.Is(err, io.EOF):
		stream.Close()
		metrics.GroupsTotal.WithLabelValues(metrics.DirectionSent, metrics.ResultOK).Inc()
		logger.Debug("sent group")
	case errors.As(err, &strErr) && strErr.Remote:
		// The subscriber stopped reading, usually because the group expired.
		metrics.GroupsTotal.WithLabelValues(metrics.DirectionSent, metrics.ResultExpired).Inc()
		logger.Debug("group stream stopped by subscriber",
			"code", GroupErrorCode(strErr.ErrorCode),
		)
	case ctx.Err() != nil:
		metrics.GroupsTotal.WithLabelValues(metrics.DirectionSent, metrics.ResultError).Inc()
	default:
		code := groupErrorCodeOf(err)
		stream.CancelWrite(quic.StreamErrorCode(code))
		metrics.GroupsTotal.WithLabelValues(metrics.DirectionSent, metrics.ResultError).Inc()
		logger.Debug("group aborted",
			"reason", err,
			"code", code,
		)
	}
}

func cancelStreamWithError(stream quic.Stream, code quic.StreamErrorCode) {
	stream.CancelRead(code)
	stream.CancelWrite(code)
}
