// Package agents implements the planner and evaluator on top of an LLM.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/ronalddlopez/housecat/internal/adapter/llm"
	"github.com/ronalddlopez/housecat/internal/domain"
	"github.com/ronalddlopez/housecat/internal/pipeline"
)

// Planner asks the LLM for a test plan.
type Planner struct {
	client llm.LLMClient
}

// NewPlanner creates a Planner.
func NewPlanner(client llm.LLMClient) *Planner {
	return &Planner{client: client}
}

var _ pipeline.Planner = (*Planner)(nil)

// Plan returns the plan for goal on url.
func (p *Planner) Plan(ctx context.Context, url, goal string) (*domain.TestPlan, error) {
	content, err := p.client.Complete(ctx, llm.CompletionRequest{
		Purpose: llm.PurposePlan,
		System:  plannerPrompt,
		User:    fmt.Sprintf("Test URL: %s\nTest Goal: %s", url, goal),
		JSON:    true,
	})
	if err != nil {
		return nil, err
	}

	var plan domain.TestPlan
	if err := decodeJSON(content, &plan); err != nil {
		return nil, errors.Wrap(err, "planner response")
	}
	plan.TotalSteps = len(plan.Steps)
	return &plan, nil
}

// Evaluator asks the LLM for the final verdict.
type Evaluator struct {
	client llm.LLMClient
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(client llm.LLMClient) *Evaluator {
	return &Evaluator{client: client}
}

var _ pipeline.Evaluator = (*Evaluator)(nil)

// Evaluate returns the verdict for a run.
func (e *Evaluator) Evaluate(ctx context.Context, req pipeline.EvaluationRequest) (*domain.TestResult, error) {
	prompt, err := evaluationPrompt(req)
	if err != nil {
		return nil, err
	}
	content, err := e.client.Complete(ctx, llm.CompletionRequest{
		Purpose: llm.PurposeEvaluate,
		System:  evaluatorPrompt,
		User:    prompt,
		JSON:    true,
	})
	if err != nil {
		return nil, err
	}

	var result domain.TestResult
	if err := decodeJSON(content, &result); err != nil {
		return nil, errors.Wrap(err, "evaluator response")
	}
	if result.StepResults == nil {
		result.StepResults = []domain.StepResult{}
	}
	return &result, nil
}

func evaluationPrompt(req pipeline.EvaluationRequest) (string, error) {
	browser, err := json.MarshalIndent(req.Browser, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to encode browser result")
	}
	steps, err := json.MarshalIndent(req.Plan.Steps, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to encode plan")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Test URL: %s\nTest Goal: %s\n\n", req.URL, req.Goal)
	fmt.Fprintf(&b, "Planned Steps:\n%s\n\n", steps)
	fmt.Fprintf(&b, "%s\n%s\n\n", llm.BrowserResultMarker, browser)
	b.WriteString("Evaluate whether this test passed or failed based on the original goal.")
	return b.String(), nil
}

// decodeJSON decodes a model response, tolerating markdown code fences and
// prose around the object.
func decodeJSON(content string, v any) error {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return errors.Errorf("no JSON object in %q", truncate(content, 120))
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return errors.Wrap(err, "invalid JSON")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
