package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ronalddlopez/housecat/internal/domain"
	"github.com/ronalddlopez/housecat/internal/eventlog"
)

var _ eventlog.Log = (*SQLiteStore)(nil)

// Append stores an event. Entry ids come from an AUTOINCREMENT sequence and
// are never reused, even after Clear.
func (s *SQLiteStore) Append(ctx context.Context, logID string, eventType domain.EventType, message string, fields ...eventlog.Field) (domain.Event, error) {
	data := eventlog.BuildData(eventType, message, s.now(), fields)
	raw, err := data.MarshalJSON()
	if err != nil {
		return domain.Event{}, fmt.Errorf("failed to encode event: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (log_id, data) VALUES (?, ?)`,
		logID, string(raw))
	if err != nil {
		return domain.Event{}, fmt.Errorf("failed to append event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return domain.Event{}, fmt.Errorf("failed to read event id: %w", err)
	}
	return domain.Event{ID: strconv.FormatInt(seq, 10), Data: data}, nil
}

// Clear removes every event of a log.
func (s *SQLiteStore) Clear(ctx context.Context, logID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE log_id = ?`, logID); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}
	return nil
}

// ReadRange returns events strictly after afterID in ascending order.
func (s *SQLiteStore) ReadRange(ctx context.Context, logID, afterID string, limit int) ([]domain.Event, error) {
	after, err := strconv.ParseInt(afterID, 10, 64)
	if err != nil || after < 0 {
		after = 0
	}

	query := `SELECT seq, data FROM events WHERE log_id = ? AND seq > ? ORDER BY seq ASC`
	args := []interface{}{logID, after}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var seq int64
		var raw string
		if err := rows.Scan(&seq, &raw); err != nil {
			return nil, err
		}
		data, err := domain.ParseEventData([]byte(raw))
		if err != nil {
			return nil, err
		}
		events = append(events, domain.Event{ID: strconv.FormatInt(seq, 10), Data: data})
	}
	return events, rows.Err()
}
