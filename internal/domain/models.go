package domain

import (
	"fmt"
	"sort"
	"time"
)

// Variable is a named value substituted into a templated goal.
type Variable struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// TestStep is one planned action.
type TestStep struct {
	StepNumber      int    `json:"step_number"`
	Description     string `json:"description"`
	SuccessCriteria string `json:"success_criteria"`
	Instruction     string `json:"instruction,omitempty"`
}

// TestPlan is the full plan for one run.
type TestPlan struct {
	Instruction string     `json:"instruction"`
	Steps       []TestStep `json:"steps"`
	TotalSteps  int        `json:"total_steps"`
}

// Normalize orders steps by their planned number, renumbers them 1..N and
// sets TotalSteps to the step count.
func (p *TestPlan) Normalize() {
	sort.SliceStable(p.Steps, func(i, j int) bool {
		return p.Steps[i].StepNumber < p.Steps[j].StepNumber
	})
	for i := range p.Steps {
		p.Steps[i].StepNumber = i + 1
	}
	p.TotalSteps = len(p.Steps)
}

// Validate checks that step numbers form the contiguous range 1..N and that
// TotalSteps matches.
func (p *TestPlan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	if p.TotalSteps != len(p.Steps) {
		return fmt.Errorf("total_steps %d does not match %d steps", p.TotalSteps, len(p.Steps))
	}
	for i, s := range p.Steps {
		if s.StepNumber != i+1 {
			return fmt.Errorf("step %d has step_number %d", i+1, s.StepNumber)
		}
	}
	return nil
}

// StepExecution is the observed outcome of one step.
type StepExecution struct {
	StepNumber   int            `json:"step_number"`
	Description  string         `json:"description"`
	Instruction  string         `json:"instruction,omitempty"`
	Raw          *string        `json:"raw"`
	Data         map[string]any `json:"data"`
	Passed       bool           `json:"passed"`
	Details      string         `json:"details"`
	Error        *string        `json:"error"`
	StreamingURL string         `json:"streaming_url,omitempty"`

	// Element is this step's own entry of a per-step breakdown in Data.
	Element map[string]any `json:"-"`
}

// Result returns the slim public view of the execution.
func (se StepExecution) Result() StepResult {
	return StepResult{
		StepNumber: se.StepNumber,
		Passed:     se.Passed,
		Details:    se.Details,
	}
}

// StepResult is the slim public view of a StepExecution.
type StepResult struct {
	StepNumber int    `json:"step_number"`
	Passed     bool   `json:"passed"`
	Details    string `json:"details"`
	RetryCount int    `json:"retry_count"`
}

// BrowserResult aggregates all step executions of a run.
type BrowserResult struct {
	Success        bool            `json:"success"`
	StepResults    []StepResult    `json:"step_results"`
	StepExecutions []StepExecution `json:"step_executions"`
	RawResult      *string         `json:"raw_result"`
	StreamingURL   *string         `json:"streaming_url"`
	Error          *string         `json:"error"`
}

// TestResult is the final verdict of a run.
type TestResult struct {
	Passed      bool         `json:"passed"`
	DurationMs  int64        `json:"duration_ms"`
	StepsPassed int          `json:"steps_passed"`
	StepsTotal  int          `json:"steps_total"`
	Details     string       `json:"details"`
	StepResults []StepResult `json:"step_results"`
	Error       *string      `json:"error"`
}

// RunRecord is a persisted run history item.
type RunRecord struct {
	RunID        string       `json:"run_id"`
	TestID       string       `json:"test_id"`
	Passed       bool         `json:"passed"`
	DurationMs   int64        `json:"duration_ms"`
	StepsPassed  int          `json:"steps_passed"`
	StepsTotal   int          `json:"steps_total"`
	Details      string       `json:"details"`
	StepResults  []StepResult `json:"step_results"`
	Error        *string      `json:"error"`
	TriggeredBy  TriggeredBy  `json:"triggered_by"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  time.Time    `json:"completed_at"`
	Plan         *TestPlan    `json:"plan,omitempty"`
	RawResult    *string      `json:"raw_result"`
	StreamingURL *string      `json:"streaming_url"`
}

// Incident is a failure record.
type Incident struct {
	RunID     string    `json:"run_id"`
	TestID    string    `json:"test_id"`
	Error     string    `json:"error"`
	Details   string    `json:"details"`
	StartedAt time.Time `json:"started_at"`
	AlertSent bool      `json:"alert_sent"`
}

// TimingSample is one duration measurement of a run.
type TimingSample struct {
	RunID      string    `json:"run_id"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
}

// TestSuite is a scheduled test definition from the suite registry.
type TestSuite struct {
	ID           string      `json:"id" yaml:"id"`
	Name         string      `json:"name" yaml:"name"`
	URL          string      `json:"url" yaml:"url"`
	Goal         string      `json:"goal" yaml:"goal"`
	Schedule     string      `json:"schedule" yaml:"schedule"`
	Status       SuiteStatus `json:"status" yaml:"status"`
	AlertWebhook string      `json:"alert_webhook" yaml:"alert_webhook"`
	AlertAfter   int         `json:"alert_after" yaml:"alert_after"`
	Variables    []Variable  `json:"variables,omitempty" yaml:"variables"`
}

// SuiteSnapshot is the "last status" of a suite.
type SuiteSnapshot struct {
	TestID     string     `json:"test_id"`
	LastResult LastResult `json:"last_result"`
	LastRunAt  *time.Time `json:"last_run_at"`
}

// Ptr returns a pointer to s, or nil when s is empty.
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
