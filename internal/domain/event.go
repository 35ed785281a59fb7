package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Reserved event data keys.
const (
	EventKeyType      = "type"
	EventKeyMessage   = "message"
	EventKeyTimestamp = "timestamp"
)

// Event is one event log entry. Data holds the flat
// {type, message, timestamp, ...fields} record with every value stringified.
type Event struct {
	ID   string                                 `json:"id"`
	Data *orderedmap.OrderedMap[string, string] `json:"data"`
}

// NewEventData builds the flat data record for an event.
func NewEventData(eventType EventType, message string, ts time.Time) *orderedmap.OrderedMap[string, string] {
	data := orderedmap.New[string, string]()
	data.Set(EventKeyType, string(eventType))
	data.Set(EventKeyMessage, message)
	data.Set(EventKeyTimestamp, ts.UTC().Format(time.RFC3339Nano))
	return data
}

// Get returns a data value or "".
func (e Event) Get(key string) string {
	if e.Data == nil {
		return ""
	}
	v, _ := e.Data.Get(key)
	return v
}

// Type returns the event type.
func (e Event) Type() EventType {
	return EventType(e.Get(EventKeyType))
}

// Message returns the event message.
func (e Event) Message() string {
	return e.Get(EventKeyMessage)
}

// DataJSON serializes the data record.
func (e Event) DataJSON() ([]byte, error) {
	if e.Data == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e.Data)
}

// ParseEventData decodes a serialized data record, preserving key order.
func ParseEventData(raw []byte) (*orderedmap.OrderedMap[string, string], error) {
	data := orderedmap.New[string, string]()
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("failed to parse event data: %w", err)
	}
	return data, nil
}

// EventDataFromMap rebuilds a data record from an unordered map: reserved
// keys first, the rest sorted.
func EventDataFromMap(m map[string]string) *orderedmap.OrderedMap[string, string] {
	data := orderedmap.New[string, string]()
	for _, k := range []string{EventKeyType, EventKeyMessage, EventKeyTimestamp} {
		if v, ok := m[k]; ok {
			data.Set(k, v)
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case EventKeyType, EventKeyMessage, EventKeyTimestamp:
			continue
		}
		rest = append(rest, k)
	}
	sort.Strings(rest)
	for _, k := range rest {
		data.Set(k, m[k])
	}
	return data
}
