package eventlog

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ronalddlopez/housecat/internal/domain"
)

var streamIDPattern = regexp.MustCompile(`^\d+(-\d+)?$`)

// Redis stores each run's log in a Redis stream keyed events:<logID>.
// Stream ids are time based, so entries appended after a Clear still sort
// after any cursor issued before it.
type Redis struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedis creates a Redis-backed Log.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, now: time.Now}
}

var _ Log = (*Redis)(nil)

func (r *Redis) Append(ctx context.Context, logID string, eventType domain.EventType, message string, fields ...Field) (domain.Event, error) {
	data := BuildData(eventType, message, r.now(), fields)

	values := make([]any, 0, data.Len()*2)
	for pair := data.Oldest(); pair != nil; pair = pair.Next() {
		values = append(values, pair.Key, pair.Value)
	}

	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: Key(logID),
		Values: values,
	}).Result()
	if err != nil {
		return domain.Event{}, fmt.Errorf("failed to append event: %w", err)
	}
	return domain.Event{ID: id, Data: data}, nil
}

func (r *Redis) Clear(ctx context.Context, logID string) error {
	if err := r.client.Del(ctx, Key(logID)).Err(); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}
	return nil
}

func (r *Redis) ReadRange(ctx context.Context, logID, afterID string, limit int) ([]domain.Event, error) {
	start := "-"
	exclusive := false
	if streamIDPattern.MatchString(afterID) {
		start = afterID
		exclusive = true
	}

	count := int64(limit)
	if exclusive && limit > 0 {
		// The cursor entry itself may come back first.
		count++
	}

	var msgs []redis.XMessage
	var err error
	if limit > 0 {
		msgs, err = r.client.XRangeN(ctx, Key(logID), start, "+", count).Result()
	} else {
		msgs, err = r.client.XRange(ctx, Key(logID), start, "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	out := make([]domain.Event, 0, len(msgs))
	for _, msg := range msgs {
		if exclusive && msg.ID == afterID {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		values := make(map[string]string, len(msg.Values))
		for k, v := range msg.Values {
			values[k] = fmt.Sprint(v)
		}
		out = append(out, domain.Event{ID: msg.ID, Data: domain.EventDataFromMap(values)})
	}
	return out, nil
}
