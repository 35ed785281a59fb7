package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronalddlopez/housecat/internal/pipeline"
)

func newSSEServer(t *testing.T, status int, frames ...string) (*httptest.Server, http.Header, *runRequest) {
	t.Helper()
	gotHeaders := http.Header{}
	gotBody := &runRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range r.Header {
			gotHeaders[k] = v
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		_ = json.Unmarshal(body, gotBody)

		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprint(w, strings.Repeat("x", 300))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
	}))
	t.Cleanup(server.Close)
	return server, gotHeaders, gotBody
}

func run(t *testing.T, server *httptest.Server, onLink func(string)) pipeline.AutomationResult {
	t.Helper()
	client := NewClient(server.URL, "secret", time.Second, nil)
	result, err := client.Run(context.Background(), pipeline.AutomationRequest{
		URL:            "https://example.com",
		Goal:           "1. open",
		OnStreamingURL: onLink,
	})
	require.NoError(t, err)
	return result
}

func TestClientRunCompleteWithStringResult(t *testing.T) {
	server, gotHeaders, gotBody := newSSEServer(t, http.StatusOK,
		`{"type":"STREAMING_URL","streamingUrl":"https://live/abc"}`,
		`{"type":"STEP","message":"clicking","purpose":"login","action":"click"}`,
		`not json at all`,
		`{"type":"COMPLETE","resultJson":"{\"success\":true,\"step_results\":[{\"success\":true}]}"}`,
	)

	var links []string
	result := run(t, server, func(link string) { links = append(links, link) })

	assert.Equal(t, "secret", gotHeaders.Get("X-API-Key"))
	assert.Equal(t, "https://example.com", gotBody.URL)
	assert.Equal(t, "1. open", gotBody.Goal)

	assert.True(t, result.Success)
	assert.Empty(t, result.Error)
	assert.Equal(t, []string{"https://live/abc"}, links)
	assert.Equal(t, "https://live/abc", result.StreamingURL)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "click", result.Steps[0].Action)
	assert.Equal(t, true, result.Data["success"])
	require.NotNil(t, result.Raw)
	assert.JSONEq(t, `{"success":true,"step_results":[{"success":true}]}`, *result.Raw)
}

func TestClientRunCompleteWithObjectResult(t *testing.T) {
	server, _, _ := newSSEServer(t, http.StatusOK,
		`{"type":"COMPLETE","resultJson":{"success":false,"message":"not found"}}`,
	)

	result := run(t, server, nil)
	assert.True(t, result.Success)
	assert.Equal(t, false, result.Data["success"])
	assert.JSONEq(t, `{"success":false,"message":"not found"}`, *result.Raw)
}

func TestClientRunCompleteWithPlainText(t *testing.T) {
	server, _, _ := newSSEServer(t, http.StatusOK,
		`{"type":"COMPLETE","resultJson":"All good"}`,
	)

	result := run(t, server, nil)
	assert.True(t, result.Success)
	assert.Equal(t, map[string]any{"raw_text": "All good"}, result.Data)
	assert.Equal(t, "All good", *result.Raw)
}

func TestClientRunErrorFrame(t *testing.T) {
	server, _, _ := newSSEServer(t, http.StatusOK,
		`{"type":"STREAMING_URL","streamingUrl":"https://live/abc"}`,
		`{"type":"ERROR","message":"timeout"}`,
		`{"type":"COMPLETE","resultJson":"{}"}`,
	)

	result := run(t, server, nil)
	assert.False(t, result.Success)
	assert.Equal(t, "timeout", result.Error)
	assert.Equal(t, "https://live/abc", result.StreamingURL)
	assert.Nil(t, result.Data)
}

func TestClientRunWithoutComplete(t *testing.T) {
	server, _, _ := newSSEServer(t, http.StatusOK,
		`{"type":"STEP","message":"thinking"}`,
		`{"type":"COMPLETE","resultJson":null}`,
	)

	result := run(t, server, nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "without a COMPLETE event")
}

func TestClientRunHTTPError(t *testing.T) {
	server, _, _ := newSSEServer(t, http.StatusBadGateway)

	result := run(t, server, nil)
	assert.False(t, result.Success)
	assert.True(t, strings.HasPrefix(result.Error, "automation HTTP 502: "))
	assert.Len(t, result.Error, len("automation HTTP 502: ")+errorBodyLimit)
}

func TestClientRunTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, "", time.Second, nil)
	_, err := client.Run(context.Background(), pipeline.AutomationRequest{URL: "https://example.com", Goal: "x"})
	assert.Error(t, err)
}

func TestMockClient(t *testing.T) {
	var link string
	result, err := NewMockClient().Run(context.Background(), pipeline.AutomationRequest{
		URL:            "https://example.com",
		Goal:           "1. Open the page\n2. Log in\nReport results",
		OnStreamingURL: func(l string) { link = l },
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, link)

	steps, ok := result.Data["step_results"].([]any)
	require.True(t, ok)
	assert.Len(t, steps, 2)

	executions := pipeline.Reconcile(pipelinePlan(2), result)
	for _, se := range executions {
		assert.True(t, se.Passed)
	}
}
