package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronalddlopez/housecat/internal/domain"
)

func twoStepPlan() domain.TestPlan {
	return domain.TestPlan{
		Instruction: "open the page, then log in",
		Steps: []domain.TestStep{
			{StepNumber: 1, Description: "Open the page", SuccessCriteria: "page loads"},
			{StepNumber: 2, Description: "Log in", SuccessCriteria: "dashboard visible"},
		},
		TotalSteps: 2,
	}
}

func TestReconcileStepwise(t *testing.T) {
	raw := `{"step_results":[...]}`
	result := AutomationResult{
		Success: true,
		Raw:     &raw,
		Data: map[string]any{
			"step_results": []any{
				map[string]any{"success": true, "verification": []any{"form visible", "button enabled"}},
				map[string]any{"success": false, "error": "X"},
			},
		},
	}

	got := Reconcile(twoStepPlan(), result)
	require.Len(t, got, 2)

	type view struct {
		StepNumber int
		Passed     bool
		Details    string
		Error      string
	}
	var views []view
	for _, se := range got {
		views = append(views, view{se.StepNumber, se.Passed, se.Details, domain.Deref(se.Error)})
	}
	want := []view{
		{1, true, "form visible, button enabled", ""},
		{2, false, "X", "X"},
	}
	if diff := cmp.Diff(want, views); diff != "" {
		t.Fatalf("reconcile mismatch (-want +got):\n%s", diff)
	}
	for _, se := range got {
		assert.Same(t, &raw, se.Raw)
		assert.NotNil(t, se.Data)
	}
}

func TestReconcileDetailsPriority(t *testing.T) {
	plan := domain.TestPlan{Steps: []domain.TestStep{{StepNumber: 1}, {StepNumber: 2}, {StepNumber: 3}, {StepNumber: 4}}, TotalSteps: 4}
	result := AutomationResult{
		Success: true,
		Data: map[string]any{
			"steps": []any{
				map[string]any{"success": true, "verification": "v", "action_performed": "a", "message": "m"},
				map[string]any{"passed": true, "action_performed": "a", "message": "m"},
				map[string]any{"success": "yes", "message": "m", "error": "e"},
				"not an object",
			},
		},
	}

	got := Reconcile(plan, result)
	require.Len(t, got, 4)
	assert.Equal(t, "v", got[0].Details)
	assert.True(t, got[1].Passed)
	assert.Equal(t, "a", got[1].Details)
	assert.False(t, got[2].Passed)
	assert.Equal(t, "m", got[2].Details)
	assert.Equal(t, "e", domain.Deref(got[2].Error))
	assert.False(t, got[3].Passed)
	assert.Equal(t, "", got[3].Details)
}

func TestReconcileShortCollectionFallsBack(t *testing.T) {
	result := AutomationResult{
		Success: true,
		Data: map[string]any{
			"results": []any{map[string]any{"success": true, "message": "opened"}},
			"success": true,
		},
	}

	got := Reconcile(twoStepPlan(), result)
	require.Len(t, got, 2)
	assert.Equal(t, "opened", got[0].Details)
	assert.True(t, got[1].Passed)
	assert.Equal(t, CombinedRunDetails, got[1].Details)
}

func TestReconcileTopLevelError(t *testing.T) {
	got := Reconcile(twoStepPlan(), AutomationResult{Success: false, Error: "timeout"})
	require.Len(t, got, 2)
	for _, se := range got {
		assert.False(t, se.Passed)
		assert.Equal(t, "timeout", se.Details)
		assert.Equal(t, "timeout", domain.Deref(se.Error))
	}
}

func TestReconcileCombinedVerdict(t *testing.T) {
	passing := Reconcile(twoStepPlan(), AutomationResult{Success: true, Data: map[string]any{"raw_text": "done"}})
	for _, se := range passing {
		assert.True(t, se.Passed)
		assert.Equal(t, CombinedRunDetails, se.Details)
		assert.Nil(t, se.Error)
	}

	payloadFailed := Reconcile(twoStepPlan(), AutomationResult{Success: true, Data: map[string]any{"success": false}})
	for _, se := range payloadFailed {
		assert.False(t, se.Passed)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, CompletionCombined, Classify(AutomationResult{Success: true}).Kind)
	assert.Equal(t, CompletionCombined, Classify(AutomationResult{Data: map[string]any{"step_results": "nope"}}).Kind)

	c := Classify(AutomationResult{Success: true, Data: map[string]any{"steps": []any{}, "results": []any{map[string]any{}}}})
	assert.Equal(t, CompletionStepwise, c.Kind)
	assert.Empty(t, c.Elements)
	assert.Equal(t, "stepwise", c.Kind.String())
}

func TestBuildBrowserResult(t *testing.T) {
	raw := "payload"
	executions := []domain.StepExecution{
		{StepNumber: 1, Passed: true, Details: "ok", Raw: &raw, StreamingURL: "https://live/1"},
		{StepNumber: 2, Passed: false, Details: "bad", Raw: &raw},
	}

	br := BuildBrowserResult(executions, "")
	assert.False(t, br.Success)
	require.Len(t, br.StepResults, len(br.StepExecutions))
	for i, sr := range br.StepResults {
		assert.Equal(t, i+1, sr.StepNumber)
		assert.Equal(t, executions[i].Passed, sr.Passed)
	}
	assert.Equal(t, "https://live/1", domain.Deref(br.StreamingURL))
	assert.Nil(t, br.Error)
	assert.JSONEq(t, `[{"step":1,"raw":"payload","data":null},{"step":2,"raw":"payload","data":null}]`, domain.Deref(br.RawResult))

	executions[1].Passed = true
	assert.True(t, BuildBrowserResult(executions, "").Success)
	assert.Equal(t, "boom", domain.Deref(BuildBrowserResult(executions, "boom").Error))
}

func TestEvaluatorViewTrimsPayload(t *testing.T) {
	raw := "huge raw payload"
	result := AutomationResult{
		Success: true,
		Raw:     &raw,
		Data: map[string]any{
			"step_results": []any{
				map[string]any{"success": true, "verification": "ok", "screenshot": "base64..."},
				map[string]any{"success": false, "message": "nope", "html": "<html>"},
			},
			"extracted": "lots of text",
		},
	}
	br := BuildBrowserResult(Reconcile(twoStepPlan(), result), "")

	view := EvaluatorView(br)
	require.Len(t, view.StepExecutions, 2)
	want := []map[string]any{
		{"success": true, "verification": "ok"},
		{"success": false, "message": "nope"},
	}
	for i, step := range view.StepExecutions {
		if diff := cmp.Diff(want[i], step.Data); diff != "" {
			t.Fatalf("step %d data mismatch (-want +got):\n%s", i+1, diff)
		}
	}

	combined := EvaluatorView(BuildBrowserResult(Reconcile(twoStepPlan(), AutomationResult{
		Success: true,
		Data:    map[string]any{"success": true, "message": "all done", "page_text": "..."},
	}), ""))
	assert.Equal(t, map[string]any{"success": true, "message": "all done"}, combined.StepExecutions[0].Data)
}
