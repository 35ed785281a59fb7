package automation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ronalddlopez/housecat/internal/pipeline"
)

var numberedLine = regexp.MustCompile(`(?mi)^\s*(?:step\s+)?(\d+)[.):]\s+(.+)$`)

// MockClient pretends every instruction succeeds. It reports one step per
// numbered line of the goal, or a single step otherwise.
type MockClient struct {
	PreviewBase string
}

// NewMockClient creates a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{PreviewBase: "https://preview.invalid/mock"}
}

var _ pipeline.Automation = (*MockClient)(nil)

// Run returns a stepwise success payload.
func (m *MockClient) Run(ctx context.Context, req pipeline.AutomationRequest) (pipeline.AutomationResult, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.AutomationResult{}, err
	}

	link := m.PreviewBase + "?url=" + req.URL
	if req.OnStreamingURL != nil {
		req.OnStreamingURL(link)
	}

	lines := numberedLine.FindAllStringSubmatch(req.Goal, -1)
	if len(lines) == 0 {
		lines = [][]string{{"", "1", strings.TrimSpace(req.Goal)}}
	}
	steps := make([]any, 0, len(lines))
	for _, l := range lines {
		steps = append(steps, map[string]any{
			"success":          true,
			"action_performed": "[MOCK] " + l[2],
			"verification":     fmt.Sprintf("[MOCK] step %s verified", l[1]),
		})
	}

	raw := fmt.Sprintf(`{"mock":true,"steps":%d}`, len(steps))
	return pipeline.AutomationResult{
		Success:      true,
		StreamingURL: link,
		Raw:          &raw,
		Data:         map[string]any{"success": true, "step_results": steps},
	}, nil
}
