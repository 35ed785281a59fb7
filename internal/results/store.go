// Package results implements run history, timing, uptime, incidents and the
// dashboard on top of the repository.
package results

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// Query bounds.
const (
	DefaultRunsLimit      = 20
	MaxRunsLimit          = 100
	DefaultTimingLimit    = 50
	MaxTimingLimit        = 200
	DefaultUptimeHours    = 24
	MaxUptimeHours        = 720
	DefaultIncidentsLimit = 10
	MaxIncidentsLimit     = 50

	DefaultIncidentRetention = 100
)

// Repository is the persistence the result store needs.
type Repository interface {
	InsertRun(ctx context.Context, run *domain.RunRecord) error
	GetRun(ctx context.Context, testID, runID string) (*domain.RunRecord, error)
	ListRuns(ctx context.Context, testID string, limit, offset int) ([]domain.RunRecord, error)
	CountRuns(ctx context.Context, testID string) (int, error)
	RunCounts(ctx context.Context, testID string, since time.Time) (total, passed int, err error)
	FailureStreak(ctx context.Context, testID string) (int, error)
	InsertTiming(ctx context.Context, testID string, sample domain.TimingSample) error
	ListTiming(ctx context.Context, testID string, limit int) ([]domain.TimingSample, int, error)
	PrependIncident(ctx context.Context, incident domain.Incident, keep int) error
	ListIncidents(ctx context.Context, testID string, limit int) ([]domain.Incident, int, error)
	MarkIncidentAlerted(ctx context.Context, testID, runID string) error
	UpsertSnapshot(ctx context.Context, snap domain.SuiteSnapshot) error
	GetSnapshot(ctx context.Context, testID string) (domain.SuiteSnapshot, error)
	ListSnapshots(ctx context.Context) (map[string]domain.SuiteSnapshot, error)
}

// Store records completed runs and answers history queries.
type Store struct {
	repo          Repository
	incidentLimit int
	now           func() time.Time
	newID         func() string
}

// New creates a Store. incidentLimit bounds the per-test incident list;
// zero or less uses DefaultIncidentRetention.
func New(repo Repository, incidentLimit int) *Store {
	if incidentLimit <= 0 {
		incidentLimit = DefaultIncidentRetention
	}
	return &Store{
		repo:          repo,
		incidentLimit: incidentLimit,
		now:           time.Now,
		newID:         shortID,
	}
}

func shortID() string {
	return uuid.NewString()[:8]
}

// StoreRun persists a completed run: the run record, a timing sample, the
// suite snapshot and, on failure, a new incident. Every write is attempted;
// failures are joined into the returned error alongside the record.
func (s *Store) StoreRun(ctx context.Context, testID string, result domain.TestResult, plan *domain.TestPlan, browser *domain.BrowserResult, triggeredBy domain.TriggeredBy) (domain.RunRecord, error) {
	now := s.now().UTC()
	record := domain.RunRecord{
		RunID:       s.newID(),
		TestID:      testID,
		Passed:      result.Passed,
		DurationMs:  result.DurationMs,
		StepsPassed: result.StepsPassed,
		StepsTotal:  result.StepsTotal,
		Details:     result.Details,
		StepResults: result.StepResults,
		Error:       result.Error,
		TriggeredBy: triggeredBy,
		StartedAt:   now.Add(-time.Duration(result.DurationMs) * time.Millisecond),
		CompletedAt: now,
		Plan:        plan,
	}
	if record.StepResults == nil {
		record.StepResults = []domain.StepResult{}
	}
	if browser != nil {
		record.RawResult = browser.RawResult
		record.StreamingURL = browser.StreamingURL
	}

	var errs []error
	if err := s.repo.InsertRun(ctx, &record); err != nil {
		errs = append(errs, err)
	}
	if err := s.repo.InsertTiming(ctx, testID, domain.TimingSample{
		RunID:      record.RunID,
		Timestamp:  now,
		DurationMs: record.DurationMs,
	}); err != nil {
		errs = append(errs, err)
	}

	lastResult := domain.LastResultPassed
	if !result.Passed {
		lastResult = domain.LastResultFailed
	}
	if err := s.repo.UpsertSnapshot(ctx, domain.SuiteSnapshot{
		TestID:     testID,
		LastResult: lastResult,
		LastRunAt:  &now,
	}); err != nil {
		errs = append(errs, err)
	}

	if !result.Passed {
		incidentErr := domain.Deref(result.Error)
		if incidentErr == "" {
			incidentErr = result.Details
		}
		if err := s.repo.PrependIncident(ctx, domain.Incident{
			RunID:     record.RunID,
			TestID:    testID,
			Error:     incidentErr,
			Details:   result.Details,
			StartedAt: now,
		}, s.incidentLimit); err != nil {
			errs = append(errs, err)
		}
	}

	return record, errors.Join(errs...)
}

// MarkErrored records that the latest run of a suite failed to complete.
func (s *Store) MarkErrored(ctx context.Context, testID string) error {
	now := s.now()
	return s.repo.UpsertSnapshot(ctx, domain.SuiteSnapshot{TestID: testID, LastResult: domain.LastResultError, LastRunAt: &now})
}

// RunPage is one page of run history.
type RunPage struct {
	TestID  string             `json:"test_id"`
	Results []domain.RunRecord `json:"results"`
	Total   int                `json:"total"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

// ListRuns returns run history, newest first.
func (s *Store) ListRuns(ctx context.Context, testID string, limit, offset int) (RunPage, error) {
	limit = Clamp(limit, 1, MaxRunsLimit)
	if offset < 0 {
		offset = 0
	}
	page := RunPage{TestID: testID, Limit: limit, Offset: offset, Results: []domain.RunRecord{}}

	total, err := s.repo.CountRuns(ctx, testID)
	if err != nil {
		return page, fmt.Errorf("failed to count runs: %w", err)
	}
	runs, err := s.repo.ListRuns(ctx, testID, limit, offset)
	if err != nil {
		return page, err
	}
	page.Total = total
	page.Results = runs
	return page, nil
}

// GetRun returns one run. A missing run yields repository.ErrNotFound.
func (s *Store) GetRun(ctx context.Context, testID, runID string) (*domain.RunRecord, error) {
	return s.repo.GetRun(ctx, testID, runID)
}

// TimingPoint is one entry of the timing series.
type TimingPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
}

// TimingSeries is the recent duration history of a test.
type TimingSeries struct {
	TestID string        `json:"test_id"`
	Timing []TimingPoint `json:"timing"`
	Total  int           `json:"total"`
}

// Timing returns the most recent duration samples, newest first.
func (s *Store) Timing(ctx context.Context, testID string, limit int) (TimingSeries, error) {
	limit = Clamp(limit, 1, MaxTimingLimit)
	series := TimingSeries{TestID: testID, Timing: []TimingPoint{}}

	samples, total, err := s.repo.ListTiming(ctx, testID, limit)
	if err != nil {
		return series, err
	}
	for _, sample := range samples {
		series.Timing = append(series.Timing, TimingPoint{Timestamp: sample.Timestamp, DurationMs: sample.DurationMs})
	}
	series.Total = total
	return series, nil
}

// UptimeReport summarizes pass rate over a window.
type UptimeReport struct {
	TestID      string  `json:"test_id"`
	UptimePct   float64 `json:"uptime_pct"`
	TotalRuns   int     `json:"total_runs"`
	PassedRuns  int     `json:"passed_runs"`
	FailedRuns  int     `json:"failed_runs"`
	WindowHours int     `json:"window_hours"`
}

// Uptime returns the pass rate of runs completed within the last hours.
func (s *Store) Uptime(ctx context.Context, testID string, hours int) (UptimeReport, error) {
	hours = Clamp(hours, 1, MaxUptimeHours)
	report := UptimeReport{TestID: testID, WindowHours: hours, UptimePct: 100.0}

	since := s.now().Add(-time.Duration(hours) * time.Hour)
	total, passed, err := s.repo.RunCounts(ctx, testID, since)
	if err != nil {
		return report, fmt.Errorf("failed to count runs: %w", err)
	}
	report.TotalRuns = total
	report.PassedRuns = passed
	report.FailedRuns = total - passed
	report.UptimePct = UptimePct(passed, total)
	return report, nil
}

// UptimePct is the pass percentage rounded to one decimal, 100.0 when no
// runs exist.
func UptimePct(passed, total int) float64 {
	if total <= 0 {
		return 100.0
	}
	return math.Round(float64(passed)/float64(total)*1000) / 10
}

// IncidentList is the newest incidents of a test.
type IncidentList struct {
	TestID    string            `json:"test_id"`
	Incidents []domain.Incident `json:"incidents"`
	Total     int               `json:"total"`
}

// Incidents returns the newest incidents, newest first.
func (s *Store) Incidents(ctx context.Context, testID string, limit int) (IncidentList, error) {
	limit = Clamp(limit, 1, MaxIncidentsLimit)
	list := IncidentList{TestID: testID, Incidents: []domain.Incident{}}

	incidents, total, err := s.repo.ListIncidents(ctx, testID, limit)
	if err != nil {
		return list, err
	}
	list.Incidents = incidents
	list.Total = total
	return list, nil
}

// MarkIncidentAlerted flags the incident of runID as alerted.
func (s *Store) MarkIncidentAlerted(ctx context.Context, testID, runID string) error {
	return s.repo.MarkIncidentAlerted(ctx, testID, runID)
}

// FailureStreak counts consecutive failed runs ending at the newest run.
func (s *Store) FailureStreak(ctx context.Context, testID string) (int, error) {
	return s.repo.FailureStreak(ctx, testID)
}

// Snapshot returns the last status of a suite.
func (s *Store) Snapshot(ctx context.Context, testID string) (domain.SuiteSnapshot, error) {
	return s.repo.GetSnapshot(ctx, testID)
}

// Snapshots returns every known suite snapshot keyed by test id.
func (s *Store) Snapshots(ctx context.Context) (map[string]domain.SuiteSnapshot, error) {
	return s.repo.ListSnapshots(ctx)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
