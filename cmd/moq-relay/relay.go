package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/okdaichi/moqlite/moqt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moqrelay_sessions_current",
		Help: "Sessions joined to the relay",
	})

	originsCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moqrelay_origins_current",
		Help: "Broadcasts announced to the relay and forwarded to other sessions",
	})

	forwardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moqrelay_forwards_total",
		Help: "Broadcasts published to downstream sessions by result",
	}, []string{"result"})
)

// session is the part of *moqt.Connection the relay uses.
type session interface {
	Publish(path moqt.BroadcastPath, broadcast *moqt.BroadcastConsumer) error
	Unpublish(path moqt.BroadcastPath) bool
	Consume(path moqt.BroadcastPath) *moqt.BroadcastConsumer
	Announced(prefix string) *moqt.AnnouncedConsumer
	Context() context.Context
}

var _ session = (*moqt.Connection)(nil)

var _ moqt.ConnectionHandler = (*relay)(nil)

func newRelay(logger *slog.Logger) *relay {
	return &relay{
		logger:   logger,
		sessions: make(map[session]*slog.Logger),
		origins:  make(map[moqt.BroadcastPath]origin),
	}
}

// relay republishes every broadcast announced by a session to every other
// session. The first session to announce a path owns it until it ends the
// broadcast or disconnects.
type relay struct {
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[session]*slog.Logger
	origins  map[moqt.BroadcastPath]origin
}

type origin struct {
	from      session
	broadcast *moqt.BroadcastConsumer
}

func (r *relay) ServeMOQ(conn *moqt.Connection) {
	r.serve(conn, r.logger.With("remote_address", conn.RemoteAddr()))
}

// serve returns once the session's context ends.
func (r *relay) serve(sess session, logger *slog.Logger) {
	r.join(sess, logger)
	defer r.leave(sess)

	announced := sess.Announced("")
	defer announced.Close()

	ctx := sess.Context()
	for {
		ann, err := announced.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Debug("stopped reading announcements",
					"error", err,
				)
			}
			break
		}

		if ann.Active {
			r.addOrigin(sess, ann.Path)
		} else {
			r.removeOrigin(sess, ann.Path)
		}
	}

	<-ctx.Done()
}

func (r *relay) join(sess session, logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[sess] = logger
	sessionsCurrent.Inc()

	for path, o := range r.origins {
		if o.from != sess {
			r.forward(sess, path, o.broadcast)
		}
	}

	logger.Info("session joined relay",
		"origins", len(r.origins),
	)
}

func (r *relay) leave(sess session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := r.sessions[sess]
	delete(r.sessions, sess)
	sessionsCurrent.Dec()

	for path, o := range r.origins {
		if o.from == sess {
			r.drop(path, o)
		}
	}

	logger.Info("session left relay")
}

func (r *relay) addOrigin(sess session, path moqt.BroadcastPath) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := r.sessions[sess].With("broadcast_path", path)

	if _, ok := r.origins[path]; ok {
		logger.Warn("ignoring broadcast already announced by another session")
		return
	}

	o := origin{
		from:      sess,
		broadcast: sess.Consume(path),
	}
	r.origins[path] = o
	originsCurrent.Inc()

	for other := range r.sessions {
		if other != sess {
			r.forward(other, path, o.broadcast)
		}
	}

	logger.Info("added origin")
}

func (r *relay) removeOrigin(sess session, path moqt.BroadcastPath) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.origins[path]
	if !ok || o.from != sess {
		return
	}
	r.drop(path, o)

	r.sessions[sess].Info("removed origin",
		"broadcast_path", path,
	)
}

// drop must be called with r.mu held.
func (r *relay) drop(path moqt.BroadcastPath, o origin) {
	delete(r.origins, path)
	originsCurrent.Dec()

	for other := range r.sessions {
		if other != o.from {
			other.Unpublish(path)
		}
	}

	o.broadcast.Close()
}

// forward must be called with r.mu held.
func (r *relay) forward(to session, path moqt.BroadcastPath, broadcast *moqt.BroadcastConsumer) {
	clone := broadcast.Clone()
	if err := to.Publish(path, clone); err != nil {
		clone.Close()
		forwardsTotal.WithLabelValues("error").Inc()
		r.sessions[to].Debug("failed to forward broadcast",
			"broadcast_path", path,
			"error", err,
		)
		return
	}
	forwardsTotal.WithLabelValues("ok").Inc()
}
