// Package metrics exposes Prometheus collectors for moqt connections.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection Metrics
var (
	// ConnectionsCurrent tracks established connections by transport (quic/webtransport)
	ConnectionsCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moqt_connections_current",
			Help: "Current established connections by transport",
		},
		[]string{"transport"},
	)

	// HandshakesTotal tracks session handshakes by role and result
	HandshakesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moqt_handshakes_total",
			Help: "Total session handshakes by role and result",
		},
		[]string{"role", "result"},
	)

	// RemoteBitrate tracks the most recent bitrate reported by peers, in bits per second
	RemoteBitrate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moqt_remote_bitrate_bps",
			Help:    "Bitrate reported by peers in SESSION_INFO messages",
			Buckets: prometheus.ExponentialBuckets(64_000, 2, 12),
		},
	)
)

// Publishing Metrics
var (
	// AnnouncementsTotal tracks announcements written by the local publisher
	AnnouncementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moqt_announcements_total",
			Help: "Total announcements by status (active/ended)",
		},
		[]string{"status"},
	)

	// SubscriptionsCurrent tracks live subscriptions by role (publisher/subscriber)
	SubscriptionsCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moqt_subscriptions_current",
			Help: "Current subscriptions by role",
		},
		[]string{"role"},
	)

	// GroupsTotal tracks group streams by direction and result
	GroupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moqt_groups_total",
			Help: "Total group streams by direction (sent/received) and result",
		},
		[]string{"direction", "result"},
	)

	// FrameBytesTotal tracks frame payload bytes by direction
	FrameBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moqt_frame_bytes_total",
			Help: "Total frame payload bytes by direction (sent/received)",
		},
		[]string{"direction"},
	)
)

// Label values shared by the collectors above.
const (
	RolePublisher  = "publisher"
	RoleSubscriber = "subscriber"
	RoleClient     = "client"
	RoleServer     = "server"

	DirectionSent     = "sent"
	DirectionReceived = "received"

	StatusActive = "active"
	StatusEnded  = "ended"

	ResultOK       = "ok"
	ResultError    = "error"
	ResultExpired  = "expired"
	ResultRejected = "rejected"
)
