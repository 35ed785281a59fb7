package results

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ronalddlopez/housecat/internal/domain"
	"github.com/ronalddlopez/housecat/internal/scheduler"
)

const recentRunsLimit = 5

// RecentRun is one dashboard row.
type RecentRun struct {
	TestID      string            `json:"test_id"`
	TestName    string            `json:"test_name"`
	TestURL     string            `json:"test_url"`
	LastResult  domain.LastResult `json:"last_result"`
	LastRunAt   *time.Time        `json:"last_run_at"`
	StepsPassed int               `json:"steps_passed"`
	StepsTotal  int               `json:"steps_total"`
	DurationMs  int64             `json:"duration_ms"`
}

// NextRun estimates when the next scheduled run happens.
type NextRun struct {
	IntervalSeconds  int64      `json:"interval_seconds"`
	SecondsUntilNext int64      `json:"seconds_until_next"`
	LastRunAt        *time.Time `json:"last_run_at"`
}

// Dashboard is the cross-suite summary.
type Dashboard struct {
	TotalTests  int         `json:"total_tests"`
	ActiveTests int         `json:"active_tests"`
	PausedTests int         `json:"paused_tests"`
	Passing     int         `json:"passing"`
	Failing     int         `json:"failing"`
	Pending     int         `json:"pending"`
	Errored     int         `json:"errored"`
	RecentRuns  []RecentRun `json:"recent_runs"`
	NextRun     *NextRun    `json:"next_run,omitempty"`
}

// Dashboard summarizes the given suites with their stored snapshots.
func (s *Store) Dashboard(ctx context.Context, suites []domain.TestSuite) (Dashboard, error) {
	now := s.now().UTC()
	dash := Dashboard{TotalTests: len(suites), RecentRuns: []RecentRun{}}

	snapshots, err := s.repo.ListSnapshots(ctx)
	if err != nil {
		return dash, fmt.Errorf("failed to load snapshots: %w", err)
	}

	var (
		recent   []RecentRun
		shortest time.Duration
		newest   *time.Time
	)
	for _, snap := range snapshots {
		if snap.LastRunAt != nil && (newest == nil || snap.LastRunAt.After(*newest)) {
			newest = snap.LastRunAt
		}
	}
	for _, suite := range suites {
		snap, ok := snapshots[suite.ID]
		if !ok {
			snap = domain.SuiteSnapshot{TestID: suite.ID, LastResult: domain.LastResultPending}
		}

		switch suite.Status {
		case domain.SuiteStatusPaused:
			dash.PausedTests++
		default:
			dash.ActiveTests++
		}
		switch snap.LastResult {
		case domain.LastResultPassed:
			dash.Passing++
		case domain.LastResultFailed:
			dash.Failing++
		case domain.LastResultError:
			dash.Errored++
		default:
			dash.Pending++
		}

		if snap.LastRunAt != nil {
			recent = append(recent, RecentRun{
				TestID:     suite.ID,
				TestName:   suite.Name,
				TestURL:    suite.URL,
				LastResult: snap.LastResult,
				LastRunAt:  snap.LastRunAt,
			})
		}

		if suite.Status == domain.SuiteStatusPaused {
			continue
		}
		interval, err := scheduler.Interval(suite.Schedule, now)
		if err != nil {
			continue
		}
		if shortest == 0 || interval < shortest {
			shortest = interval
		}
	}

	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].LastRunAt.After(*recent[j].LastRunAt)
	})
	if len(recent) > recentRunsLimit {
		recent = recent[:recentRunsLimit]
	}
	// An errored attempt stores no run record, so its row keeps zero counts
	// rather than showing an older run's.
	for i := range recent {
		if recent[i].LastResult == domain.LastResultError {
			continue
		}
		runs, err := s.repo.ListRuns(ctx, recent[i].TestID, 1, 0)
		if err != nil || len(runs) == 0 {
			continue
		}
		recent[i].StepsPassed = runs[0].StepsPassed
		recent[i].StepsTotal = runs[0].StepsTotal
		recent[i].DurationMs = runs[0].DurationMs
	}
	if recent != nil {
		dash.RecentRuns = recent
	}

	if shortest > 0 {
		next := &NextRun{IntervalSeconds: int64(shortest / time.Second), LastRunAt: newest}
		if newest != nil {
			remaining := shortest - now.Sub(*newest)
			if remaining > 0 {
				next.SecondsUntilNext = int64(remaining / time.Second)
			}
		}
		dash.NextRun = next
	}
	return dash, nil
}
