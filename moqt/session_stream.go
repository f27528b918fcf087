package moqt

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okdaichi/moqlite/moqt/bitrate"
	"github.com/okdaichi/moqlite/moqt/internal/message"
	"github.com/okdaichi/moqlite/moqt/metrics"
	"github.com/okdaichi/moqlite/quic"
)

const (
	infoAlpha     = 0.3
	infoThreshold = 0.25
)

func newSessionStream(stream quic.Stream, logger *slog.Logger) *sessionStream {
	return &sessionStream{
		stream: stream,
		logger: logger,
	}
}

// sessionStream carries SESSION_INFO after the handshake.
type sessionStream struct {
	stream quic.Stream
	logger *slog.Logger

	mu           sync.Mutex
	localBitrate uint64

	remoteBitrate atomic.Uint64
}

// readInfo records every SESSION_INFO the peer sends. It returns when the
// stream ends, with io.EOF for a graceful end.
func (ss *sessionStream) readInfo() error {
	for {
		var sim message.SessionInfoMessage
		if err := sim.Decode(ss.stream); err != nil {
			return err
		}

		ss.remoteBitrate.Store(sim.Bitrate)
		metrics.RemoteBitrate.Observe(float64(sim.Bitrate))

		ss.logger.Debug("received session info",
			"bitrate", sim.Bitrate,
		)
	}
}

func (ss *sessionStream) writeInfo(bitrate uint64) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if err := (message.SessionInfoMessage{Bitrate: bitrate}).Encode(ss.stream); err != nil {
		return err
	}
	ss.localBitrate = bitrate

	return nil
}

// reportBitrate samples sent every interval and writes SESSION_INFO whenever
// the sending rate shifts.
func (ss *sessionStream) reportBitrate(ctx context.Context, clock clockwork.Clock, interval time.Duration, sent func() uint64) {
	var meter bitrate.Meter
	meter.Sample(sent(), clock.Now())

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	detector := bitrate.NewEWMAShiftDetector(infoAlpha, infoThreshold, 0)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.Chan():
			rate, ok := meter.Sample(sent(), now)
			if !ok || !detector.Detect(rate) {
				continue
			}

			bps := uint64(min(rate, math.MaxInt64))
			bps = min(bps, message.MaxU53)
			if err := ss.writeInfo(bps); err != nil {
				ss.logger.Debug("failed to write session info",
					"error", err,
				)
				return
			}
			ss.logger.Debug("sent session info",
				"bitrate", bps,
			)
		}
	}
}
