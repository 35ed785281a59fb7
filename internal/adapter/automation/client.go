// Package automation is the client of the remote browser automation service.
package automation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ronalddlopez/housecat/internal/pipeline"
)

// Frame types sent by the automation service.
const (
	FrameStreamingURL = "STREAMING_URL"
	FrameStep         = "STEP"
	FrameComplete     = "COMPLETE"
	FrameError        = "ERROR"
)

const (
	errorBodyLimit = 200
	maxFrameSize   = 4 << 20
)

// Frame is one decoded SSE data line.
type Frame struct {
	Type         string          `json:"type"`
	StreamingURL string          `json:"streamingUrl,omitempty"`
	Message      string          `json:"message,omitempty"`
	Purpose      string          `json:"purpose,omitempty"`
	Action       string          `json:"action,omitempty"`
	ResultJSON   json.RawMessage `json:"resultJson,omitempty"`
}

type runRequest struct {
	URL  string `json:"url"`
	Goal string `json:"goal"`
}

// Client calls the automation run-sse endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	logger     *zap.Logger
}

// NewClient creates a Client. timeout bounds a whole automation call.
func NewClient(endpoint, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
		logger:     logger,
	}
}

var _ pipeline.Automation = (*Client)(nil)

// Run posts {url, goal} and consumes the frame stream. Service-reported
// failures come back as a failed result; a returned error means the call
// could not be made or the stream broke.
func (c *Client) Run(ctx context.Context, req pipeline.AutomationRequest) (pipeline.AutomationResult, error) {
	body, err := json.Marshal(runRequest{URL: req.URL, Goal: req.Goal})
	if err != nil {
		return pipeline.AutomationResult{}, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return pipeline.AutomationResult{}, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pipeline.AutomationResult{}, errors.Wrap(err, "automation request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return pipeline.AutomationResult{
			Success: false,
			Error:   fmt.Sprintf("automation HTTP %d: %s", resp.StatusCode, truncate(string(bodyBytes), errorBodyLimit)),
		}, nil
	}

	acc := &accumulator{onStreamingURL: req.OnStreamingURL, logger: c.logger}
	if err := parseSSE(resp.Body, acc.handle); err != nil && !errors.Is(err, errStop) {
		result := acc.result()
		return result, errors.Wrap(err, "automation stream failed")
	}
	return acc.result(), nil
}

var errStop = errors.New("stop")

// accumulator folds frames into a result.
type accumulator struct {
	onStreamingURL func(string)
	logger         *zap.Logger

	streamingURL string
	steps        []pipeline.ObservedStep
	completed    bool
	data         map[string]any
	raw          *string
	errText      string
	failed       bool
}

func (a *accumulator) handle(data string) error {
	var frame Frame
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		return nil
	}

	switch frame.Type {
	case FrameStreamingURL:
		if frame.StreamingURL == "" {
			return nil
		}
		a.streamingURL = frame.StreamingURL
		if a.onStreamingURL != nil {
			a.onStreamingURL(frame.StreamingURL)
		}
	case FrameStep:
		a.steps = append(a.steps, pipeline.ObservedStep{
			Message: frame.Message,
			Purpose: frame.Purpose,
			Action:  frame.Action,
		})
	case FrameComplete:
		a.complete(frame.ResultJSON)
	case FrameError:
		a.failed = true
		a.errText = frame.Message
		if a.errText == "" {
			a.errText = "Unknown automation error"
		}
		return errStop
	}
	return nil
}

// complete decodes resultJson, which is either a JSON document encoded as a
// string or an inline object.
func (a *accumulator) complete(payload json.RawMessage) {
	if len(payload) == 0 || string(payload) == "null" {
		return
	}

	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		a.completed = true
		a.raw = &s
		var data map[string]any
		if err := json.Unmarshal([]byte(s), &data); err != nil || data == nil {
			data = map[string]any{"raw_text": s}
		}
		a.data = data
		return
	}

	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		a.logger.Debug("ignoring non-object resultJson", zap.ByteString("payload", payload))
		return
	}
	raw := string(payload)
	a.completed = true
	a.raw = &raw
	a.data = data
}

func (a *accumulator) result() pipeline.AutomationResult {
	result := pipeline.AutomationResult{
		StreamingURL: a.streamingURL,
		Steps:        a.steps,
	}
	switch {
	case a.failed:
		result.Error = a.errText
	case !a.completed:
		result.Error = "automation stream ended without a COMPLETE event"
	default:
		result.Success = true
		result.Data = a.data
		result.Raw = a.raw
	}
	return result
}

// parseSSE calls handler with the payload of every data line. The service
// sends one JSON frame per data line.
func parseSSE(reader io.Reader, handler func(data string) error) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			// Blank separators, comments and other fields.
			continue
		}
		if err := handler(strings.TrimSpace(strings.TrimPrefix(line, "data:"))); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
