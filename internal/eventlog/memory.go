package eventlog

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// Memory is an in-process Log. Sequence counters survive Clear so cursors
// handed out before a clear never skip entries of the fresh log.
type Memory struct {
	mu   sync.RWMutex
	logs map[string]*memoryLog
	now  func() time.Time
}

type memoryLog struct {
	seq     uint64
	entries []domain.Event
}

// NewMemory creates an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{
		logs: make(map[string]*memoryLog),
		now:  time.Now,
	}
}

var _ Log = (*Memory)(nil)

func (m *Memory) Append(_ context.Context, logID string, eventType domain.EventType, message string, fields ...Field) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.logs[logID]
	if !ok {
		l = &memoryLog{}
		m.logs[logID] = l
	}
	l.seq++
	event := domain.Event{
		ID:   strconv.FormatUint(l.seq, 10),
		Data: BuildData(eventType, message, m.now(), fields),
	}
	l.entries = append(l.entries, event)
	return event, nil
}

func (m *Memory) Clear(_ context.Context, logID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.logs[logID]; ok {
		l.entries = nil
	}
	return nil
}

func (m *Memory) ReadRange(_ context.Context, logID, afterID string, limit int) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.logs[logID]
	if !ok {
		return []domain.Event{}, nil
	}
	after, err := strconv.ParseUint(afterID, 10, 64)
	if err != nil {
		after = 0
	}

	out := []domain.Event{}
	for _, e := range l.entries {
		if limit > 0 && len(out) >= limit {
			break
		}
		id, _ := strconv.ParseUint(e.ID, 10, 64)
		if id > after {
			out = append(out, e)
		}
	}
	return out, nil
}
