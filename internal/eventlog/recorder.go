package eventlog

import (
	"context"

	"go.uber.org/zap"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// Recorder writes events for one run and never fails its caller: append
// errors are logged and reported to OnError. A Recorder with a nil Log or an
// empty log id is a no-op.
type Recorder struct {
	log     Log
	logID   string
	logger  *zap.Logger
	OnError func(err error)
}

// NewRecorder returns a Recorder for logID.
func NewRecorder(log Log, logID string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{log: log, logID: logID, logger: logger}
}

// Enabled reports whether events are actually stored.
func (r *Recorder) Enabled() bool {
	return r != nil && r.log != nil && r.logID != ""
}

// Reset clears the run's log.
func (r *Recorder) Reset(ctx context.Context) {
	if !r.Enabled() {
		return
	}
	if err := r.log.Clear(ctx, r.logID); err != nil {
		r.fail(err, zap.String("op", "clear"))
	}
}

// Record appends an event.
func (r *Recorder) Record(ctx context.Context, eventType domain.EventType, message string, fields ...Field) {
	if !r.Enabled() {
		return
	}
	if _, err := r.log.Append(ctx, r.logID, eventType, message, fields...); err != nil {
		r.fail(err, zap.String("op", "append"), zap.String("event_type", string(eventType)))
	}
}

func (r *Recorder) fail(err error, fields ...zap.Field) {
	fields = append(fields, zap.String("log_id", r.logID), zap.Error(err))
	r.logger.Warn("event log write failed", fields...)
	if r.OnError != nil {
		r.OnError(err)
	}
}
