package pipeline

import (
	"context"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// Planner turns a goal into an ordered test plan.
type Planner interface {
	Plan(ctx context.Context, url, goal string) (*domain.TestPlan, error)
}

// Evaluator produces the final verdict of a run.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (*domain.TestResult, error)
}

// Automation drives a remote browser session through one instruction.
// A returned error means the call itself failed; the executor degrades it
// to a failed result.
type Automation interface {
	Run(ctx context.Context, req AutomationRequest) (AutomationResult, error)
}

// AutomationRequest is one browser automation call.
type AutomationRequest struct {
	URL  string
	Goal string

	// OnStreamingURL is called as soon as the live preview link is known.
	OnStreamingURL func(link string)
}

// AutomationResult is the outcome of one automation call.
type AutomationResult struct {
	Success      bool
	Data         map[string]any
	Raw          *string
	StreamingURL string
	Error        string
	Steps        []ObservedStep
}

// ObservedStep is one progress frame reported by the automation service.
type ObservedStep struct {
	Message string `json:"message"`
	Purpose string `json:"purpose"`
	Action  string `json:"action"`
}

// EvaluationRequest is what the evaluator sees. Goal is the templated goal,
// before variable substitution.
type EvaluationRequest struct {
	URL     string          `json:"url"`
	Goal    string          `json:"goal"`
	Plan    domain.TestPlan `json:"plan"`
	Browser EvaluatorInput  `json:"browser_result"`
}
