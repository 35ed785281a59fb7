package pipeline

import (
	"context"
	"sync"

	"github.com/ronalddlopez/housecat/internal/domain"
)

type fakePlanner struct {
	mu    sync.Mutex
	goals []string
	plan  *domain.TestPlan
	err   error
}

func (p *fakePlanner) Plan(_ context.Context, _ string, goal string) (*domain.TestPlan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.goals = append(p.goals, goal)
	if p.err != nil {
		return nil, p.err
	}
	plan := *p.plan
	plan.Steps = append([]domain.TestStep(nil), p.plan.Steps...)
	return &plan, nil
}

type fakeAutomation struct {
	mu       sync.Mutex
	requests []AutomationRequest
	respond  func(req AutomationRequest) (AutomationResult, error)
}

func (a *fakeAutomation) Run(_ context.Context, req AutomationRequest) (AutomationResult, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()
	result, err := a.respond(req)
	if result.StreamingURL != "" && req.OnStreamingURL != nil {
		req.OnStreamingURL(result.StreamingURL)
	}
	return result, err
}

type fakeEvaluator struct {
	requests []EvaluationRequest
	result   func(req EvaluationRequest) *domain.TestResult
	err      error
}

func (e *fakeEvaluator) Evaluate(_ context.Context, req EvaluationRequest) (*domain.TestResult, error) {
	e.requests = append(e.requests, req)
	if e.err != nil {
		return nil, e.err
	}
	return e.result(req), nil
}

// verdictFromBrowser mirrors what a well-behaved evaluator returns.
func verdictFromBrowser(req EvaluationRequest) *domain.TestResult {
	passed := 0
	for _, sr := range req.Browser.StepResults {
		if sr.Passed {
			passed++
		}
	}
	return &domain.TestResult{
		Passed:      req.Browser.Success,
		StepsPassed: passed,
		StepsTotal:  len(req.Browser.StepResults),
		Details:     "evaluated",
		StepResults: req.Browser.StepResults,
	}
}
