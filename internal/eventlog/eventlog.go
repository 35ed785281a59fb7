// Package eventlog provides the append-only per-run event log.
package eventlog

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// Log is an append-only, per-run ordered log of events. Entry ids are opaque
// strings that strictly increase within a log, including across Clear.
type Log interface {
	// Append stores an event and returns it with its assigned entry id.
	Append(ctx context.Context, logID string, eventType domain.EventType, message string, fields ...Field) (domain.Event, error)
	// Clear removes every entry of the log.
	Clear(ctx context.Context, logID string) error
	// ReadRange returns up to limit entries strictly after afterID in
	// ascending order. An empty or unparseable afterID reads from the start.
	ReadRange(ctx context.Context, logID, afterID string, limit int) ([]domain.Event, error)
}

// Field is one extra key/value on an event. Values are always strings.
type Field struct {
	Key   string
	Value string
}

// String returns a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int returns an integer field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: strconv.Itoa(value)}
}

// Int64 returns an integer field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: strconv.FormatInt(value, 10)}
}

// Bool returns a boolean field rendered as "true"/"false".
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: strconv.FormatBool(value)}
}

// JSON returns a field holding the JSON encoding of value.
func JSON(key string, value any) Field {
	b, err := json.Marshal(value)
	if err != nil {
		return Field{Key: key, Value: ""}
	}
	return Field{Key: key, Value: string(b)}
}

// BuildData assembles the flat data record stored for an event. Fields never
// overwrite the reserved type, message and timestamp keys.
func BuildData(eventType domain.EventType, message string, ts time.Time, fields []Field) *orderedmap.OrderedMap[string, string] {
	data := domain.NewEventData(eventType, message, ts)
	for _, f := range fields {
		switch f.Key {
		case domain.EventKeyType, domain.EventKeyMessage, domain.EventKeyTimestamp:
			continue
		}
		data.Set(f.Key, f.Value)
	}
	return data
}

// Key returns the storage key of a run's log.
func Key(logID string) string {
	return "events:" + logID
}
