// Package livestream serves an event log to viewers as a resumable push
// stream over SSE or WebSocket.
package livestream

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ronalddlopez/housecat/internal/domain"
	"github.com/ronalddlopez/housecat/internal/eventlog"
)

// Stream defaults.
const (
	DefaultInterval       = time.Second
	DefaultReplayLimit    = 50
	DefaultPollLimit      = 20
	DefaultKeepaliveEvery = 15
	DefaultMaxIdle        = 300
)

// ErrIdleTimeout ends a stream that saw no new entries for MaxIdle intervals.
var ErrIdleTimeout = errors.New("live stream idle timeout")

// Sink receives the frames of one stream.
type Sink interface {
	Send(event domain.Event) error
	Keepalive() error
}

// Streamer tails an event log for one viewer at a time.
type Streamer struct {
	Log            eventlog.Log
	Interval       time.Duration
	ReplayLimit    int
	PollLimit      int
	KeepaliveEvery int
	MaxIdle        int
	Logger         *zap.Logger
}

// NewStreamer creates a streamer with the default limits.
func NewStreamer(log eventlog.Log, interval time.Duration, logger *zap.Logger) *Streamer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Streamer{
		Log:            log,
		Interval:       interval,
		ReplayLimit:    DefaultReplayLimit,
		PollLimit:      DefaultPollLimit,
		KeepaliveEvery: DefaultKeepaliveEvery,
		MaxIdle:        DefaultMaxIdle,
		Logger:         logger,
	}
}

// Stream replays entries after cursor, then polls for new ones until the
// viewer disconnects (ctx done, nil), a send fails (that error) or the log
// stays silent for MaxIdle intervals (ErrIdleTimeout). Read errors count as
// an idle interval.
func (s *Streamer) Stream(ctx context.Context, logID, cursor string, sink Sink) error {
	logger := s.logger().With(zap.String("test_id", logID))

	events, err := s.Log.ReadRange(ctx, logID, cursor, s.ReplayLimit)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("live stream replay failed", zap.Error(err))
	}
	for _, e := range events {
		if err := sink.Send(e); err != nil {
			return err
		}
		cursor = e.ID
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	idle := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		events, err := s.Log.ReadRange(ctx, logID, cursor, s.PollLimit)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("live stream poll failed", zap.Error(err))
			events = nil
		}

		if len(events) > 0 {
			for _, e := range events {
				if err := sink.Send(e); err != nil {
					return err
				}
				cursor = e.ID
			}
			idle = 0
			continue
		}

		idle++
		if s.MaxIdle > 0 && idle >= s.MaxIdle {
			logger.Debug("live stream idle, closing", zap.String("cursor", cursor))
			return ErrIdleTimeout
		}
		if s.KeepaliveEvery > 0 && idle%s.KeepaliveEvery == 0 {
			if err := sink.Keepalive(); err != nil {
				return err
			}
		}
	}
}

func (s *Streamer) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
