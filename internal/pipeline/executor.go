package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// ExecutionMode selects how a plan is driven through the automation service.
type ExecutionMode string

const (
	// ModeSession runs the whole plan in one continuous session and
	// reconciles the combined result onto the steps.
	ModeSession ExecutionMode = "session"
	// ModePerStep runs every step in its own session.
	ModePerStep ExecutionMode = "per_step"
)

// ParseExecutionMode maps a config value to a mode, defaulting to session.
func ParseExecutionMode(s string) ExecutionMode {
	if ExecutionMode(s) == ModePerStep {
		return ModePerStep
	}
	return ModeSession
}

// Observer receives progress while a plan executes. Any callback may be
// nil. OnStepStart fires only in per-step mode, where steps run one by one.
type Observer struct {
	OnPreview   func(link string)
	OnStepStart func(step domain.TestStep)
	OnStep      func(se domain.StepExecution)
}

func (o Observer) preview(link string) {
	if o.OnPreview != nil && link != "" {
		o.OnPreview(link)
	}
}

func (o Observer) stepStart(step domain.TestStep) {
	if o.OnStepStart != nil {
		o.OnStepStart(step)
	}
}

func (o Observer) step(se domain.StepExecution) {
	if o.OnStep != nil {
		o.OnStep(se)
	}
}

// StepExecutor turns a plan into step executions.
type StepExecutor struct {
	automation Automation
	mode       ExecutionMode
	logger     *zap.Logger
}

// NewStepExecutor creates a StepExecutor.
func NewStepExecutor(automation Automation, mode ExecutionMode, logger *zap.Logger) *StepExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mode == "" {
		mode = ModeSession
	}
	return &StepExecutor{automation: automation, mode: mode, logger: logger}
}

// Mode returns the execution mode.
func (e *StepExecutor) Mode() ExecutionMode {
	return e.mode
}

// Execute drives plan against url. Automation failures never surface as
// errors; they fail the affected steps instead. An error means the plan
// itself cannot be executed.
func (e *StepExecutor) Execute(ctx context.Context, url string, plan domain.TestPlan, obs Observer) (domain.BrowserResult, error) {
	if len(plan.Steps) == 0 {
		return domain.BrowserResult{}, fmt.Errorf("plan has no steps")
	}
	if e.mode == ModePerStep {
		return e.executePerStep(ctx, url, plan, obs), nil
	}
	return e.executeSession(ctx, url, plan, obs), nil
}

func (e *StepExecutor) executeSession(ctx context.Context, url string, plan domain.TestPlan, obs Observer) domain.BrowserResult {
	instruction := plan.Instruction
	if instruction == "" {
		instruction = combinedInstruction(plan)
	}

	result := e.call(ctx, url, instruction, obs)
	executions := Reconcile(plan, result)
	for _, se := range executions {
		obs.step(se)
	}
	return BuildBrowserResult(executions, result.Error)
}

func (e *StepExecutor) executePerStep(ctx context.Context, url string, plan domain.TestPlan, obs Observer) domain.BrowserResult {
	executions := make([]domain.StepExecution, 0, len(plan.Steps))
	lastErr := ""
	for _, step := range plan.Steps {
		instruction := step.Instruction
		if instruction == "" {
			instruction = step.Description
		}

		obs.stepStart(step)
		result := e.call(ctx, url, instruction, obs)
		single := domain.TestPlan{Steps: []domain.TestStep{step}, TotalSteps: 1}
		se := Reconcile(single, result)[0]
		obs.step(se)
		executions = append(executions, se)
		if result.Error != "" {
			lastErr = result.Error
		}
	}
	return BuildBrowserResult(executions, lastErr)
}

// call runs one automation request and degrades transport failures into a
// failed result.
func (e *StepExecutor) call(ctx context.Context, url, goal string, obs Observer) AutomationResult {
	result, err := e.automation.Run(ctx, AutomationRequest{
		URL:            url,
		Goal:           goal,
		OnStreamingURL: obs.preview,
	})
	if err != nil {
		e.logger.Warn("automation call failed", zap.String("url", url), zap.Error(err))
		if result.Error == "" {
			result.Error = err.Error()
		}
		result.Success = false
		result.StreamingURL = ""
	}
	return result
}

// combinedInstruction renders a plan as one numbered instruction when the
// planner did not provide one.
func combinedInstruction(plan domain.TestPlan) string {
	var b strings.Builder
	for _, step := range plan.Steps {
		line := step.Instruction
		if line == "" {
			line = step.Description
		}
		if step.SuccessCriteria != "" {
			line += " (verify: " + step.SuccessCriteria + ")"
		}
		fmt.Fprintf(&b, "%d. %s\n", step.StepNumber, line)
	}
	b.WriteString("Report a step_results array with one entry per step: success, verification, action_performed.")
	return b.String()
}
