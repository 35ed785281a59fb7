package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// CombinedRunDetails is the details text of a step whose outcome is only
// known from the verdict of the whole run.
const CombinedRunDetails = "Step executed as part of combined run"

// stepCollectionKeys are the payload keys checked, in order, for a per-step
// breakdown.
var stepCollectionKeys = []string{"step_results", "steps", "results"}

// evaluatorKeys are the payload keys forwarded to the evaluator.
var evaluatorKeys = []string{"success", "verification", "action_performed", "message", "error"}

// CompletionKind tells how much structure an automation payload carries.
type CompletionKind int

const (
	// CompletionCombined is a single verdict for the whole run.
	CompletionCombined CompletionKind = iota
	// CompletionStepwise carries one element per planned step.
	CompletionStepwise
)

func (k CompletionKind) String() string {
	if k == CompletionStepwise {
		return "stepwise"
	}
	return "combined"
}

// Completion is the classified form of an automation result.
type Completion struct {
	Kind CompletionKind

	// Elements holds the per-step breakdown when Kind is CompletionStepwise.
	Elements []map[string]any

	// Success is the combined verdict: service success and, when the payload
	// carries a boolean success, that flag too.
	Success bool

	// Error is the top-level error reported by the service.
	Error string
}

// Classify inspects an automation result once so reconciliation never has
// to probe the payload again.
func Classify(result AutomationResult) Completion {
	c := Completion{
		Kind:    CompletionCombined,
		Success: result.Success,
		Error:   result.Error,
	}
	if v, ok := result.Data["success"].(bool); ok {
		c.Success = c.Success && v
	}
	if elements, ok := stepCollection(result.Data); ok {
		c.Kind = CompletionStepwise
		c.Elements = elements
	}
	return c
}

func stepCollection(data map[string]any) ([]map[string]any, bool) {
	for _, key := range stepCollectionKeys {
		items, ok := data[key].([]any)
		if !ok {
			continue
		}
		elements := make([]map[string]any, len(items))
		for i, item := range items {
			if m, ok := item.(map[string]any); ok {
				elements[i] = m
			} else {
				elements[i] = map[string]any{}
			}
		}
		return elements, true
	}
	return nil, false
}

// Reconcile maps one automation result onto the steps of a plan. For each
// step in order: a matching element of a per-step breakdown decides it;
// otherwise a top-level error fails it; otherwise it inherits the combined
// verdict.
func Reconcile(plan domain.TestPlan, result AutomationResult) []domain.StepExecution {
	completion := Classify(result)
	executions := make([]domain.StepExecution, 0, len(plan.Steps))

	for i, step := range plan.Steps {
		se := domain.StepExecution{
			StepNumber:   step.StepNumber,
			Description:  step.Description,
			Instruction:  step.Instruction,
			Raw:          result.Raw,
			Data:         result.Data,
			StreamingURL: result.StreamingURL,
		}

		switch {
		case completion.Kind == CompletionStepwise && i < len(completion.Elements):
			element := completion.Elements[i]
			se.Element = element
			se.Passed = elementPassed(element)
			se.Details = elementDetails(element)
			if errText := text(element["error"]); errText != "" {
				se.Error = &errText
				if se.Details == "" {
					se.Details = errText
				}
			}
		case completion.Error != "":
			errText := completion.Error
			se.Passed = false
			se.Details = errText
			se.Error = &errText
		default:
			se.Passed = completion.Success
			se.Details = CombinedRunDetails
		}

		executions = append(executions, se)
	}
	return executions
}

func elementPassed(element map[string]any) bool {
	if v, ok := element["success"]; ok {
		b, _ := v.(bool)
		return b
	}
	b, _ := element["passed"].(bool)
	return b
}

func elementDetails(element map[string]any) string {
	for _, key := range []string{"verification", "action_performed", "message", "details"} {
		if s := text(element[key]); s != "" {
			return s
		}
	}
	return ""
}

// text renders a payload value as details text. Lists are joined with ", ".
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := text(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// BuildBrowserResult aggregates step executions. Success holds only when
// every step passed.
func BuildBrowserResult(executions []domain.StepExecution, automationErr string) domain.BrowserResult {
	br := domain.BrowserResult{
		Success:        len(executions) > 0,
		StepResults:    make([]domain.StepResult, 0, len(executions)),
		StepExecutions: executions,
		Error:          domain.Ptr(automationErr),
	}
	if br.StepExecutions == nil {
		br.StepExecutions = []domain.StepExecution{}
	}

	type rawEntry struct {
		Step int            `json:"step"`
		Raw  *string        `json:"raw"`
		Data map[string]any `json:"data"`
	}
	raws := make([]rawEntry, 0, len(executions))
	for _, se := range executions {
		if !se.Passed {
			br.Success = false
		}
		br.StepResults = append(br.StepResults, se.Result())
		raws = append(raws, rawEntry{Step: se.StepNumber, Raw: se.Raw, Data: se.Data})
		if se.StreamingURL != "" {
			link := se.StreamingURL
			br.StreamingURL = &link
		}
	}
	if b, err := json.Marshal(raws); err == nil {
		raw := string(b)
		br.RawResult = &raw
	}
	return br
}

// EvaluatedStep is the trimmed view of one step execution.
type EvaluatedStep struct {
	StepNumber  int            `json:"step_number"`
	Description string         `json:"description"`
	Passed      bool           `json:"passed"`
	Details     string         `json:"details"`
	Error       *string        `json:"error"`
	Data        map[string]any `json:"data"`
}

// EvaluatorInput is the browser result as sent to the evaluator: raw
// payloads dropped and structured data trimmed to a few known keys.
type EvaluatorInput struct {
	Success        bool                `json:"success"`
	StepResults    []domain.StepResult `json:"step_results"`
	StepExecutions []EvaluatedStep     `json:"step_executions"`
	StreamingURL   *string             `json:"streaming_url"`
	Error          *string             `json:"error"`
}

// EvaluatorView trims a browser result for the evaluator prompt. A step of
// a stepwise payload sees only its own element.
func EvaluatorView(br domain.BrowserResult) EvaluatorInput {
	view := EvaluatorInput{
		Success:        br.Success,
		StepResults:    br.StepResults,
		StepExecutions: make([]EvaluatedStep, 0, len(br.StepExecutions)),
		StreamingURL:   br.StreamingURL,
		Error:          br.Error,
	}
	for _, se := range br.StepExecutions {
		source := se.Data
		if se.Element != nil {
			source = se.Element
		}
		view.StepExecutions = append(view.StepExecutions, EvaluatedStep{
			StepNumber:  se.StepNumber,
			Description: se.Description,
			Passed:      se.Passed,
			Details:     se.Details,
			Error:       se.Error,
			Data:        trimPayload(source),
		})
	}
	return view
}

func trimPayload(data map[string]any) map[string]any {
	trimmed := make(map[string]any)
	for _, key := range evaluatorKeys {
		if v, ok := data[key]; ok {
			trimmed[key] = v
		}
	}
	return trimmed
}
