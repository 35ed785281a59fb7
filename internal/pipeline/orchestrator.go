// Package pipeline runs one end-to-end website check: plan, execute in a
// browser session, evaluate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ronalddlopez/housecat/internal/domain"
	"github.com/ronalddlopez/housecat/internal/eventlog"
)

const stepDetailsLimit = 120

// Hooks receives run measurements.
type Hooks interface {
	PhaseCompleted(phase domain.Phase, d time.Duration)
	StepCompleted(passed bool)
}

type nopHooks struct{}

func (nopHooks) PhaseCompleted(domain.Phase, time.Duration) {}
func (nopHooks) StepCompleted(bool)                         {}

// RunInput identifies one run. An empty TestID runs without an event log.
type RunInput struct {
	TestID    string
	URL       string
	Goal      string
	Variables []domain.Variable
}

// Outcome is everything a successful run produced.
type Outcome struct {
	Plan    domain.TestPlan      `json:"plan"`
	Browser domain.BrowserResult `json:"browser_result"`
	Result  domain.TestResult    `json:"result"`
}

// Orchestrator sequences the planner, the step executor and the evaluator.
type Orchestrator struct {
	planner   Planner
	executor  *StepExecutor
	evaluator Evaluator
	log       eventlog.Log
	logger    *zap.Logger
	hooks     Hooks
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEventLog records run progress into log.
func WithEventLog(log eventlog.Log) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHooks sets the measurement hooks.
func WithHooks(hooks Hooks) Option {
	return func(o *Orchestrator) {
		if hooks != nil {
			o.hooks = hooks
		}
	}
}

// WithClock overrides the clock used for durations.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(planner Planner, executor *StepExecutor, evaluator Evaluator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		planner:   planner,
		executor:  executor,
		evaluator: evaluator,
		logger:    zap.NewNop(),
		hooks:     nopHooks{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type run struct {
	o       *Orchestrator
	in      RunInput
	rec     *eventlog.Recorder
	logger  *zap.Logger
	phase   domain.Phase
	started time.Time
	phaseAt time.Time
}

// Run executes one check. Event log failures never abort the run. A planner
// or evaluator failure is recorded as an error event and returned as *Error.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (*Outcome, error) {
	logger := o.logger.With(zap.String("test_id", in.TestID), zap.String("url", in.URL))
	r := &run{
		o:       o,
		in:      in,
		rec:     eventlog.NewRecorder(o.log, in.TestID, logger),
		logger:  logger,
		phase:   domain.PhaseInit,
		started: o.now(),
	}
	r.phaseAt = r.started
	r.rec.Reset(ctx)

	plan, err := r.plan(ctx)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	browser, err := r.execute(ctx, *plan)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	result, err := r.evaluate(ctx, *plan, browser)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	return &Outcome{Plan: *plan, Browser: browser, Result: *result}, nil
}

func (r *run) advance(next domain.Phase) {
	now := r.o.now()
	r.o.hooks.PhaseCompleted(r.phase, now.Sub(r.phaseAt))
	r.logger.Info("phase", zap.String("phase", string(next)), zap.String("from", string(r.phase)))
	r.phase = next
	r.phaseAt = now
}

func (r *run) plan(ctx context.Context) (*domain.TestPlan, error) {
	r.advance(domain.PhasePlanning)
	r.rec.Record(ctx, domain.EventTypePlanStart, "Planning test for "+r.in.URL)

	goal := ResolveVariables(r.in.Goal, r.in.Variables)
	plan, err := r.o.planner.Plan(ctx, r.in.URL, goal)
	if err != nil {
		return nil, err
	}
	if plan == nil || len(plan.Steps) == 0 {
		return nil, errors.New("planner returned no steps")
	}
	plan.Normalize()
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	type stepSummary struct {
		StepNumber  int    `json:"step_number"`
		Description string `json:"description"`
	}
	summary := make([]stepSummary, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		summary = append(summary, stepSummary{StepNumber: s.StepNumber, Description: s.Description})
	}
	r.rec.Record(ctx, domain.EventTypePlanComplete, fmt.Sprintf("Plan created: %d steps", plan.TotalSteps),
		eventlog.Int("step_count", plan.TotalSteps),
		eventlog.JSON("steps", summary))

	r.advance(domain.PhasePlanned)
	return plan, nil
}

func (r *run) execute(ctx context.Context, plan domain.TestPlan) (domain.BrowserResult, error) {
	r.advance(domain.PhaseExecuting)
	r.rec.Record(ctx, domain.EventTypeBrowserStart, "Executing test with browser automation")

	obs := Observer{
		OnPreview: func(link string) {
			r.rec.Record(ctx, domain.EventTypeBrowserPreview, "Live preview available",
				eventlog.String("streaming_url", link))
		},
		OnStepStart: func(step domain.TestStep) {
			r.rec.Record(ctx, domain.EventTypeStepStart,
				fmt.Sprintf("Step %d: %s", step.StepNumber, step.Description),
				eventlog.Int("step_number", step.StepNumber))
		},
		OnStep: func(se domain.StepExecution) {
			r.o.hooks.StepCompleted(se.Passed)
			status := "failed"
			if se.Passed {
				status = "passed"
			}
			r.rec.Record(ctx, domain.EventTypeStepComplete,
				fmt.Sprintf("Step %d: %s - %s", se.StepNumber, status, truncate(se.Details, stepDetailsLimit)),
				eventlog.Int("step_number", se.StepNumber),
				eventlog.Bool("passed", se.Passed))
		},
	}

	browser, err := r.o.executor.Execute(ctx, r.in.URL, plan, obs)
	if err != nil {
		return browser, err
	}
	r.rec.Record(ctx, domain.EventTypeBrowserComplete,
		fmt.Sprintf("Browser execution finished: %d steps", len(browser.StepExecutions)))

	r.advance(domain.PhaseExecuted)
	return browser, nil
}

func (r *run) evaluate(ctx context.Context, plan domain.TestPlan, browser domain.BrowserResult) (*domain.TestResult, error) {
	r.advance(domain.PhaseEvaluating)
	r.rec.Record(ctx, domain.EventTypeEvalStart, "Evaluating results")

	result, err := r.o.evaluator.Evaluate(ctx, EvaluationRequest{
		URL:     r.in.URL,
		Goal:    r.in.Goal,
		Plan:    plan,
		Browser: EvaluatorView(browser),
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("evaluator returned no result")
	}

	normalizeResult(result, plan, browser)
	result.DurationMs = r.o.now().Sub(r.started).Milliseconds()

	status := "FAILED"
	if result.Passed {
		status = "PASSED"
	}
	r.rec.Record(ctx, domain.EventTypeEvalComplete,
		fmt.Sprintf("Test %s - %d/%d steps", status, result.StepsPassed, result.StepsTotal),
		eventlog.Bool("passed", result.Passed),
		eventlog.Int64("duration_ms", result.DurationMs))

	r.advance(domain.PhaseDone)
	return result, nil
}

func (r *run) fail(ctx context.Context, err error) error {
	failed := r.phase
	r.rec.Record(ctx, domain.EventTypeError, "Pipeline error: "+err.Error())
	r.logger.Error("pipeline failed", zap.String("phase", string(failed)), zap.Error(err))
	r.advance(domain.PhaseErrored)
	return &Error{Phase: failed, Err: err}
}

// normalizeResult makes the evaluator's verdict consistent with the plan
// and the browser evidence.
func normalizeResult(result *domain.TestResult, plan domain.TestPlan, browser domain.BrowserResult) {
	result.StepsTotal = plan.TotalSteps
	if result.StepsPassed < 0 {
		result.StepsPassed = 0
	}
	if result.StepsPassed > result.StepsTotal {
		result.StepsPassed = result.StepsTotal
	}
	if len(result.StepResults) == 0 {
		result.StepResults = browser.StepResults
	}
	if browser.Error != nil {
		result.Passed = false
		if domain.Deref(result.Error) == "" {
			errText := *browser.Error
			result.Error = &errText
		}
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
