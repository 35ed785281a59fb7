package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// MockClient answers plan and evaluate requests with deterministic JSON.
type MockClient struct{}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

var _ LLMClient = (*MockClient)(nil)

// BrowserResultMarker precedes the browser result JSON in evaluator
// prompts.
const BrowserResultMarker = "Browser Execution Result:"

const maxMockPlan = 8

var (
	goalLine  = regexp.MustCompile(`(?m)^Test Goal:\s*(.*)$`)
	goalSplit = regexp.MustCompile(`(?i)\s*(?:,?\s+then\s+|\.\s+|;\s*|\n+)\s*`)
)

// Complete returns a mock response for the request's purpose.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch req.Purpose {
	case PurposePlan:
		return m.plan(req.User), nil
	case PurposeEvaluate:
		return m.evaluate(req.User)
	default:
		return fmt.Sprintf("[MOCK] Received your message: %q.", truncate(req.User, 100)), nil
	}
}

func (m *MockClient) plan(prompt string) string {
	goal := prompt
	if match := goalLine.FindStringSubmatch(prompt); match != nil {
		goal = match[1]
	}

	var parts []string
	for _, p := range goalSplit.Split(goal, -1) {
		if p = strings.TrimSpace(strings.TrimSuffix(p, ".")); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		parts = []string{"Open the page"}
	}
	if len(parts) > maxMockPlan {
		parts = parts[:maxMockPlan]
	}

	type step struct {
		StepNumber      int    `json:"step_number"`
		Description     string `json:"description"`
		SuccessCriteria string `json:"success_criteria"`
	}
	steps := make([]step, 0, len(parts))
	var instruction strings.Builder
	for i, p := range parts {
		steps = append(steps, step{StepNumber: i + 1, Description: p, SuccessCriteria: "[MOCK] " + p + " succeeds"})
		fmt.Fprintf(&instruction, "STEP %d: %s\n", i+1, p)
	}
	instruction.WriteString("Return valid JSON only.")

	out, _ := json.Marshal(map[string]any{
		"instruction": instruction.String(),
		"steps":       steps,
		"total_steps": len(steps),
	})
	return string(out)
}

func (m *MockClient) evaluate(prompt string) (string, error) {
	if i := strings.Index(prompt, BrowserResultMarker); i >= 0 {
		prompt = prompt[i+len(BrowserResultMarker):]
	}
	start := strings.Index(prompt, "{")
	if start < 0 {
		return "", fmt.Errorf("mock evaluator: prompt carries no browser result")
	}
	var browser struct {
		Success     bool `json:"success"`
		StepResults []struct {
			StepNumber int    `json:"step_number"`
			Passed     bool   `json:"passed"`
			Details    string `json:"details"`
		} `json:"step_results"`
		Error *string `json:"error"`
	}
	if err := json.NewDecoder(strings.NewReader(prompt[start:])).Decode(&browser); err != nil {
		return "", fmt.Errorf("mock evaluator: %w", err)
	}

	passed := 0
	for _, sr := range browser.StepResults {
		if sr.Passed {
			passed++
		}
	}
	details := fmt.Sprintf("[MOCK] %d of %d steps passed.", passed, len(browser.StepResults))
	out, _ := json.Marshal(map[string]any{
		"passed":       browser.Success,
		"steps_passed": passed,
		"steps_total":  len(browser.StepResults),
		"details":      details,
		"step_results": browser.StepResults,
		"error":        browser.Error,
	})
	return string(out), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
