package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ronalddlopez/housecat/internal/adapter/agents"
	"github.com/ronalddlopez/housecat/internal/adapter/automation"
	"github.com/ronalddlopez/housecat/internal/adapter/llm"
	"github.com/ronalddlopez/housecat/internal/alert"
	"github.com/ronalddlopez/housecat/internal/config"
	"github.com/ronalddlopez/housecat/internal/domain"
	"github.com/ronalddlopez/housecat/internal/pipeline"
	"github.com/ronalddlopez/housecat/internal/repository"
	"github.com/ronalddlopez/housecat/internal/results"
	"github.com/ronalddlopez/housecat/internal/testutil"
)

type failingAutomation struct{}

func (failingAutomation) Run(context.Context, pipeline.AutomationRequest) (pipeline.AutomationResult, error) {
	return pipeline.AutomationResult{Success: false, Error: "login button not found"}, nil
}

type brokenPlanner struct{}

func (brokenPlanner) Plan(context.Context, string, string) (*domain.TestPlan, error) {
	return nil, errors.New("llm gateway unavailable")
}

// cancellingPlanner plans normally, then cancels the trigger's context as if
// the caller hung up mid-run.
type cancellingPlanner struct {
	inner  pipeline.Planner
	cancel context.CancelFunc
}

func (p cancellingPlanner) Plan(ctx context.Context, url, goal string) (*domain.TestPlan, error) {
	plan, err := p.inner.Plan(ctx, url, goal)
	p.cancel()
	return plan, err
}

type recordingAlerts struct {
	mu    sync.Mutex
	runs  []domain.RunRecord
	fails bool
}

func (a *recordingAlerts) Send(_ context.Context, url string, _ domain.TestSuite, run domain.RunRecord) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs = append(a.runs, run)
	return !a.fails && url != ""
}

type recordingPublisher struct {
	runs []domain.RunRecord
}

func (p *recordingPublisher) PublishRun(_ context.Context, run domain.RunRecord) error {
	p.runs = append(p.runs, run)
	return nil
}

type failingArchiver struct{}

func (failingArchiver) Archive(context.Context, domain.RunRecord) (string, error) {
	return "", errors.New("bucket missing")
}

type countingMetrics struct {
	runs   map[string]int
	alerts int
}

func (m *countingMetrics) ObserveRun(status string, _ domain.TriggeredBy) {
	if m.runs == nil {
		m.runs = map[string]int{}
	}
	m.runs[status]++
}

func (m *countingMetrics) ObserveAlert(bool) { m.alerts++ }

var testSuites = []domain.TestSuite{
	{ID: "login", Name: "Login", URL: "https://example.com", Goal: "Open the page and log in as {{user}}",
		Status: domain.SuiteStatusActive, AlertWebhook: "https://hooks.example.com/x", AlertAfter: 1,
		Variables: []domain.Variable{{Name: "user", Value: "alice"}}},
	{ID: "paused", URL: "https://example.com", Goal: "Open the page", Status: domain.SuiteStatusPaused, AlertAfter: 1},
	{ID: "quiet", URL: "https://example.com", Goal: "Open the page", Status: domain.SuiteStatusActive, AlertAfter: 2,
		AlertWebhook: "https://hooks.example.com/q"},
}

type fixture struct {
	svc       *Service
	repo      *repository.SQLiteStore
	alerts    *recordingAlerts
	publisher *recordingPublisher
	metrics   *countingMetrics
}

func newFixture(t *testing.T, planner pipeline.Planner, auto pipeline.Automation) *fixture {
	t.Helper()
	repo := testutil.NewStore(t)
	mock := llm.NewMockClient()
	if planner == nil {
		planner = agents.NewPlanner(mock)
	}
	if auto == nil {
		auto = automation.NewMockClient()
	}
	orch := pipeline.NewOrchestrator(
		planner,
		pipeline.NewStepExecutor(auto, pipeline.ModeSession, nil),
		agents.NewEvaluator(mock),
		pipeline.WithEventLog(repo),
	)
	policy, err := alert.NewEngine(context.Background(), alert.DefaultPolicy)
	require.NoError(t, err)

	f := &fixture{
		repo:      repo,
		alerts:    &recordingAlerts{},
		publisher: &recordingPublisher{},
		metrics:   &countingMetrics{},
	}
	f.svc = New(Deps{
		Store:     results.New(repo, results.DefaultIncidentRetention),
		Suites:    config.NewRegistry(testSuites),
		Pipeline:  orch,
		EventLog:  repo,
		Alerts:    f.alerts,
		Policy:    policy,
		Publisher: f.publisher,
		Archiver:  failingArchiver{},
		Metrics:   f.metrics,
		Logger:    zap.NewNop(),
	})
	return f
}

func TestRunSuitePassed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)

	res, err := f.svc.RunSuite(ctx, "login", domain.TriggeredByManual)
	require.NoError(t, err)
	require.NotNil(t, res.Run)
	assert.True(t, res.Run.Passed)
	assert.False(t, res.Alerted)
	assert.Equal(t, domain.TriggeredByManual, res.Run.TriggeredBy)
	assert.Len(t, res.Run.RunID, 8)

	stored, err := f.svc.Store().GetRun(ctx, "login", res.Run.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Run.StepsTotal, stored.StepsTotal)

	snap, err := f.svc.Store().Snapshot(ctx, "login")
	require.NoError(t, err)
	assert.Equal(t, domain.LastResultPassed, snap.LastResult)

	events, err := f.repo.ReadRange(ctx, "login", "", 100)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventTypePlanStart, events[0].Type())
	assert.Equal(t, domain.EventTypeEvalComplete, events[len(events)-1].Type())

	assert.Len(t, f.publisher.runs, 1)
	assert.Empty(t, f.alerts.runs)
	assert.Equal(t, 1, f.metrics.runs["passed"])
}

func TestRunSuiteFailedAlerts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, failingAutomation{})

	res, err := f.svc.RunSuite(ctx, "login", domain.TriggeredByScheduler)
	require.NoError(t, err)
	assert.False(t, res.Run.Passed)
	assert.True(t, res.Alerted)
	require.Len(t, f.alerts.runs, 1)
	assert.Equal(t, res.Run.RunID, f.alerts.runs[0].RunID)

	incidents, err := f.svc.Store().Incidents(ctx, "login", 10)
	require.NoError(t, err)
	require.Len(t, incidents.Incidents, 1)
	assert.True(t, incidents.Incidents[0].AlertSent)
	assert.Equal(t, "login button not found", incidents.Incidents[0].Error)
	assert.Equal(t, 1, f.metrics.runs["failed"])
	assert.Equal(t, 1, f.metrics.alerts)
}

func TestRunSuiteAlertAfterStreak(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, failingAutomation{})

	res, err := f.svc.RunSuite(ctx, "quiet", domain.TriggeredByScheduler)
	require.NoError(t, err)
	assert.False(t, res.Alerted)

	res, err = f.svc.RunSuite(ctx, "quiet", domain.TriggeredByScheduler)
	require.NoError(t, err)
	assert.True(t, res.Alerted)
	assert.Len(t, f.alerts.runs, 1)
}

func TestRunSuiteFailedDeliveryKeepsIncidentUnalerted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, failingAutomation{})
	f.alerts.fails = true

	res, err := f.svc.RunSuite(ctx, "login", domain.TriggeredByManual)
	require.NoError(t, err)
	assert.False(t, res.Alerted)

	incidents, err := f.svc.Store().Incidents(ctx, "login", 10)
	require.NoError(t, err)
	require.Len(t, incidents.Incidents, 1)
	assert.False(t, incidents.Incidents[0].AlertSent)
}

func TestRunSuitePausedAndUnknown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)

	res, err := f.svc.RunSuite(ctx, "paused", domain.TriggeredByScheduler)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, "test is paused", res.Reason)

	// Manual runs of a paused suite still execute.
	res, err = f.svc.RunSuite(ctx, "paused", domain.TriggeredByManual)
	require.NoError(t, err)
	assert.False(t, res.Skipped)

	_, err = f.svc.RunSuite(ctx, "nope", domain.TriggeredByManual)
	assert.ErrorIs(t, err, ErrSuiteNotFound)
}

func TestRunSuitePipelineError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, brokenPlanner{}, nil)

	_, err := f.svc.RunSuite(ctx, "login", domain.TriggeredByManual)
	var perr *pipeline.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.PhasePlanning, perr.Phase)

	snap, err := f.svc.Store().Snapshot(ctx, "login")
	require.NoError(t, err)
	assert.Equal(t, domain.LastResultError, snap.LastResult)

	page, err := f.svc.Store().ListRuns(ctx, "login", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	events, err := f.repo.ReadRange(ctx, "login", "", 100)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, domain.EventTypeError, last.Type())
	assert.Equal(t, "Pipeline error: llm gateway unavailable", last.Message())
	assert.Equal(t, 1, f.metrics.runs["error"])
}

func TestRunSuiteSurvivesTriggerDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, cancellingPlanner{inner: agents.NewPlanner(llm.NewMockClient()), cancel: cancel}, nil)

	res, err := f.svc.RunSuite(ctx, "login", domain.TriggeredByManual)
	require.NoError(t, err)
	require.NotNil(t, res.Run)
	assert.Error(t, ctx.Err())
	assert.True(t, res.Run.Passed)

	bg := context.Background()
	page, err := f.svc.Store().ListRuns(bg, "login", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	snap, err := f.svc.Store().Snapshot(bg, "login")
	require.NoError(t, err)
	assert.Equal(t, domain.LastResultPassed, snap.LastResult)
}

func TestRunSuiteTimeout(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.svc.timeout = 20 * time.Millisecond
	f.svc.pipeline = ctxPipeline{}

	_, err := f.svc.RunSuite(context.Background(), "login", domain.TriggeredByManual)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type ctxPipeline struct{}

func (ctxPipeline) Run(ctx context.Context, _ pipeline.RunInput) (*pipeline.Outcome, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type blockingPipeline struct {
	started chan struct{}
	release chan struct{}
	inner   Pipeline
}

func (p *blockingPipeline) Run(ctx context.Context, in pipeline.RunInput) (*pipeline.Outcome, error) {
	close(p.started)
	<-p.release
	return p.inner.Run(ctx, in)
}

func TestRunSuiteRejectsConcurrentRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	blocking := &blockingPipeline{started: make(chan struct{}), release: make(chan struct{}), inner: f.svc.pipeline}
	f.svc.pipeline = blocking

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.RunSuite(ctx, "login", domain.TriggeredByManual)
		done <- err
	}()
	<-blocking.started

	_, err := f.svc.RunSuite(ctx, "login", domain.TriggeredByManual)
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(blocking.release)
	require.NoError(t, <-done)
}

func TestRunAdHoc(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)

	out, err := f.svc.RunAdHoc(ctx, "https://example.com", "Open the page and check {{thing}}",
		[]domain.Variable{{Name: "thing", Value: "the title"}})
	require.NoError(t, err)
	assert.True(t, out.Result.Passed)
	assert.NotEmpty(t, out.Plan.Steps)

	snaps, err := f.svc.Store().Snapshots(ctx)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}
