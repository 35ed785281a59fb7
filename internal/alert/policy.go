// Package alert decides whether a completed run should page its owners.
package alert

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// Decision is the outcome of the alert policy.
type Decision string

const (
	DecisionAlert    Decision = "alert"
	DecisionSuppress Decision = "suppress"
)

// Input is the document the policy is evaluated against.
type Input struct {
	Test          TestInput   `json:"test"`
	Result        ResultInput `json:"result"`
	FailureStreak int         `json:"failure_streak"`
}

// TestInput describes the suite of the run.
type TestInput struct {
	ID           string `json:"id"`
	AlertWebhook string `json:"alert_webhook"`
	AlertAfter   int    `json:"alert_after"`
}

// ResultInput describes the run outcome.
type ResultInput struct {
	Passed bool   `json:"passed"`
	Error  string `json:"error"`
}

// NewInput builds a policy input for a stored run.
func NewInput(suite domain.TestSuite, run domain.RunRecord, streak int) Input {
	return Input{
		Test: TestInput{
			ID:           suite.ID,
			AlertWebhook: suite.AlertWebhook,
			AlertAfter:   suite.AlertAfter,
		},
		Result: ResultInput{
			Passed: run.Passed,
			Error:  domain.Deref(run.Error),
		},
		FailureStreak: streak,
	}
}

// Engine evaluates the alert policy.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares the given policy module.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.housecat.alert.decision"),
		rego.Module("housecat_alert.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the policy from path, or the default policy when
// path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alert policy: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Decide evaluates the policy. A policy producing no value means alert.
func (e *Engine) Decide(ctx context.Context, in Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAlert, nil
	}

	s, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("unexpected policy result %T", results[0].Expressions[0].Value)
	}
	switch d := Decision(s); d {
	case DecisionAlert, DecisionSuppress:
		return d, nil
	default:
		return "", fmt.Errorf("unknown policy decision %q", s)
	}
}

// DefaultPolicy alerts on every failed run of a suite with a webhook once
// the failure streak reaches alert_after.
const DefaultPolicy = `
package housecat.alert

default decision = "alert"

decision = "suppress" {
	input.result.passed
}

decision = "suppress" {
	input.test.alert_webhook == ""
}

decision = "suppress" {
	input.failure_streak < input.test.alert_after
}
`
