package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ronalddlopez/housecat/internal/domain"
)

const runColumns = `run_id, test_id, passed, duration_ms, steps_passed, steps_total, details,
	step_results, error, triggered_by, started_at, completed_at, plan, raw_result, streaming_url`

// InsertRun stores a run record.
func (s *SQLiteStore) InsertRun(ctx context.Context, run *domain.RunRecord) error {
	stepResults := run.StepResults
	if stepResults == nil {
		stepResults = []domain.StepResult{}
	}
	steps, err := json.Marshal(stepResults)
	if err != nil {
		return fmt.Errorf("failed to encode step results: %w", err)
	}
	var plan sql.NullString
	if run.Plan != nil {
		b, err := json.Marshal(run.Plan)
		if err != nil {
			return fmt.Errorf("failed to encode plan: %w", err)
		}
		plan = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.TestID, run.Passed, run.DurationMs, run.StepsPassed, run.StepsTotal, run.Details,
		string(steps), nullString(run.Error), string(run.TriggeredBy),
		toMillis(run.StartedAt), toMillis(run.CompletedAt),
		plan, nullString(run.RawResult), nullString(run.StreamingURL))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// GetRun returns one run of a test, or ErrNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, testID, runID string) (*domain.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE test_id = ? AND run_id = ?`, testID, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs of a test, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, testID string, limit, offset int) ([]domain.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE test_id = ?
		ORDER BY completed_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		testID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// CountRuns returns the number of stored runs of a test.
func (s *SQLiteStore) CountRuns(ctx context.Context, testID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE test_id = ?`, testID).Scan(&n)
	return n, err
}

// RunCounts returns the total and passed run counts of a test for runs
// completed at or after since.
func (s *SQLiteStore) RunCounts(ctx context.Context, testID string, since time.Time) (total, passed int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(passed), 0) FROM runs WHERE test_id = ? AND completed_at >= ?`,
		testID, toMillis(since)).Scan(&total, &passed)
	return total, passed, err
}

// FailureStreak counts consecutive failed runs from the newest one.
func (s *SQLiteStore) FailureStreak(ctx context.Context, testID string) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT passed FROM runs WHERE test_id = ? ORDER BY completed_at DESC, rowid DESC`, testID)
	if err != nil {
		return 0, fmt.Errorf("failed to read runs: %w", err)
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var passed bool
		if err := rows.Scan(&passed); err != nil {
			return 0, err
		}
		if passed {
			break
		}
		streak++
	}
	return streak, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*domain.RunRecord, error) {
	var (
		run                  domain.RunRecord
		steps                string
		triggeredBy          string
		startedAt, completed int64
		errText, plan, raw   sql.NullString
		streamingURL         sql.NullString
	)
	err := row.Scan(&run.RunID, &run.TestID, &run.Passed, &run.DurationMs, &run.StepsPassed, &run.StepsTotal,
		&run.Details, &steps, &errText, &triggeredBy, &startedAt, &completed, &plan, &raw, &streamingURL)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(steps), &run.StepResults); err != nil {
		return nil, fmt.Errorf("failed to decode step results of run %s: %w", run.RunID, err)
	}
	if plan.Valid {
		var p domain.TestPlan
		if err := json.Unmarshal([]byte(plan.String), &p); err != nil {
			return nil, fmt.Errorf("failed to decode plan of run %s: %w", run.RunID, err)
		}
		run.Plan = &p
	}
	run.Error = stringPtr(errText)
	run.RawResult = stringPtr(raw)
	run.StreamingURL = stringPtr(streamingURL)
	run.TriggeredBy = domain.TriggeredBy(triggeredBy)
	run.StartedAt = fromMillis(startedAt)
	run.CompletedAt = fromMillis(completed)
	return &run, nil
}

// InsertTiming stores a duration sample.
func (s *SQLiteStore) InsertTiming(ctx context.Context, testID string, sample domain.TimingSample) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO timing (test_id, run_id, ts, duration_ms) VALUES (?, ?, ?, ?)`,
		testID, sample.RunID, toMillis(sample.Timestamp), sample.DurationMs)
	if err != nil {
		return fmt.Errorf("failed to insert timing: %w", err)
	}
	return nil
}

// ListTiming returns the most recent duration samples of a test and the
// total sample count.
func (s *SQLiteStore) ListTiming(ctx context.Context, testID string, limit int) ([]domain.TimingSample, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM timing WHERE test_id = ?`, testID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, ts, duration_ms FROM timing WHERE test_id = ? ORDER BY ts DESC, id DESC LIMIT ?`,
		testID, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list timing: %w", err)
	}
	defer rows.Close()

	samples := []domain.TimingSample{}
	for rows.Next() {
		var sample domain.TimingSample
		var ts int64
		if err := rows.Scan(&sample.RunID, &ts, &sample.DurationMs); err != nil {
			return nil, 0, err
		}
		sample.Timestamp = fromMillis(ts)
		samples = append(samples, sample)
	}
	return samples, total, rows.Err()
}

// PrependIncident stores an incident as the newest of its test and keeps
// only the newest keep incidents. keep <= 0 disables trimming.
func (s *SQLiteStore) PrependIncident(ctx context.Context, incident domain.Incident, keep int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO incidents (test_id, run_id, error, details, started_at, alert_sent) VALUES (?, ?, ?, ?, ?, ?)`,
		incident.TestID, incident.RunID, incident.Error, incident.Details, toMillis(incident.StartedAt), incident.AlertSent)
	if err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}
	if keep > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM incidents WHERE test_id = ? AND id NOT IN (
				SELECT id FROM incidents WHERE test_id = ? ORDER BY id DESC LIMIT ?
			)`, incident.TestID, incident.TestID, keep)
		if err != nil {
			return fmt.Errorf("failed to trim incidents: %w", err)
		}
	}
	return tx.Commit()
}

// ListIncidents returns the newest incidents of a test and the total count.
func (s *SQLiteStore) ListIncidents(ctx context.Context, testID string, limit int) ([]domain.Incident, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents WHERE test_id = ?`, testID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, test_id, error, details, started_at, alert_sent FROM incidents
		WHERE test_id = ? ORDER BY id DESC LIMIT ?`, testID, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	incidents := []domain.Incident{}
	for rows.Next() {
		var inc domain.Incident
		var startedAt int64
		if err := rows.Scan(&inc.RunID, &inc.TestID, &inc.Error, &inc.Details, &startedAt, &inc.AlertSent); err != nil {
			return nil, 0, err
		}
		inc.StartedAt = fromMillis(startedAt)
		incidents = append(incidents, inc)
	}
	return incidents, total, rows.Err()
}

// MarkIncidentAlerted flags the incident of a run as alerted.
func (s *SQLiteStore) MarkIncidentAlerted(ctx context.Context, testID, runID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE incidents SET alert_sent = 1 WHERE test_id = ? AND run_id = ?`, testID, runID)
	if err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertSnapshot records the latest outcome of a suite.
func (s *SQLiteStore) UpsertSnapshot(ctx context.Context, snap domain.SuiteSnapshot) error {
	var lastRunAt sql.NullInt64
	if snap.LastRunAt != nil {
		lastRunAt = sql.NullInt64{Int64: toMillis(*snap.LastRunAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suite_status (test_id, last_result, last_run_at) VALUES (?, ?, ?)
		ON CONFLICT(test_id) DO UPDATE SET
			last_result = excluded.last_result,
			last_run_at = COALESCE(excluded.last_run_at, suite_status.last_run_at)`,
		snap.TestID, string(snap.LastResult), lastRunAt)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the snapshot of a suite. A suite that never ran is
// pending.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, testID string) (domain.SuiteSnapshot, error) {
	snap := domain.SuiteSnapshot{TestID: testID, LastResult: domain.LastResultPending}
	var lastResult string
	var lastRunAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_result, last_run_at FROM suite_status WHERE test_id = ?`, testID).Scan(&lastResult, &lastRunAt)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return snap, err
	}
	snap.LastResult = domain.LastResult(lastResult)
	if lastRunAt.Valid {
		t := fromMillis(lastRunAt.Int64)
		snap.LastRunAt = &t
	}
	return snap, nil
}

// ListSnapshots returns every stored snapshot keyed by test id.
func (s *SQLiteStore) ListSnapshots(ctx context.Context) (map[string]domain.SuiteSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT test_id, last_result, last_run_at FROM suite_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.SuiteSnapshot)
	for rows.Next() {
		var snap domain.SuiteSnapshot
		var lastResult string
		var lastRunAt sql.NullInt64
		if err := rows.Scan(&snap.TestID, &lastResult, &lastRunAt); err != nil {
			return nil, err
		}
		snap.LastResult = domain.LastResult(lastResult)
		if lastRunAt.Valid {
			t := fromMillis(lastRunAt.Int64)
			snap.LastRunAt = &t
		}
		out[snap.TestID] = snap
	}
	return out, rows.Err()
}
