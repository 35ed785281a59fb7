// Package domain defines the core domain models for housecat.
package domain

// Phase is a stage of the test run pipeline.
type Phase string

const (
	PhaseInit       Phase = "INIT"
	PhasePlanning   Phase = "PLANNING"
	PhasePlanned    Phase = "PLANNED"
	PhaseExecuting  Phase = "EXECUTING"
	PhaseExecuted   Phase = "EXECUTED"
	PhaseEvaluating Phase = "EVALUATING"
	PhaseDone       Phase = "DONE"
	PhaseErrored    Phase = "ERRORED"
)

// EventType represents the type of an event log entry.
type EventType string

const (
	EventTypePlanStart       EventType = "plan_start"
	EventTypePlanComplete    EventType = "plan_complete"
	EventTypeBrowserStart    EventType = "browser_start"
	EventTypeBrowserPreview  EventType = "browser_preview"
	EventTypeStepStart       EventType = "step_start"
	EventTypeStepComplete    EventType = "step_complete"
	EventTypeBrowserComplete EventType = "browser_complete"
	EventTypeEvalStart       EventType = "eval_start"
	EventTypeEvalComplete    EventType = "eval_complete"
	EventTypeError           EventType = "error"
)

// SuiteStatus is the scheduling status of a test suite.
type SuiteStatus string

const (
	SuiteStatusActive SuiteStatus = "active"
	SuiteStatusPaused SuiteStatus = "paused"
)

// LastResult is the snapshot of a suite's most recent outcome.
type LastResult string

const (
	LastResultPending LastResult = "pending"
	LastResultPassed  LastResult = "passed"
	LastResultFailed  LastResult = "failed"
	LastResultError   LastResult = "error"
)

// TriggeredBy records what started a run.
type TriggeredBy string

const (
	TriggeredByManual    TriggeredBy = "manual"
	TriggeredByScheduler TriggeredBy = "scheduler"
	TriggeredByAPI       TriggeredBy = "api"
)
