// Package llm provides the chat completion client used by the planner and
// the evaluator.
package llm

import "context"

// Purpose tags a request with the agent that sends it.
type Purpose string

const (
	PurposePlan     Purpose = "plan"
	PurposeEvaluate Purpose = "evaluate"
)

// CompletionRequest is one system+user prompt exchange.
type CompletionRequest struct {
	Purpose Purpose
	System  string
	User    string
	// JSON asks the model for a JSON object response.
	JSON bool
}

// LLMClient defines the interface for LLM API operations.
type LLMClient interface {
	// Complete returns the assistant message content.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

var _ LLMClient = (*Client)(nil)
