// Package webhook delivers failure alerts to suite webhooks.
package webhook

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// EventTestFailed is the only alert event.
const EventTestFailed = "test_failed"

// DefaultTimeout bounds one delivery.
const DefaultTimeout = 10 * time.Second

// Envelope is the JSON body posted to a webhook.
type Envelope struct {
	Event     string         `json:"event"`
	Test      EnvelopeTest   `json:"test"`
	Result    EnvelopeResult `json:"result"`
	Timestamp string         `json:"timestamp"`
}

// EnvelopeTest identifies the failing suite.
type EnvelopeTest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// EnvelopeResult summarizes the failing run.
type EnvelopeResult struct {
	RunID       string  `json:"run_id"`
	Passed      bool    `json:"passed"`
	StepsPassed int     `json:"steps_passed"`
	StepsTotal  int     `json:"steps_total"`
	Details     string  `json:"details"`
	Error       *string `json:"error"`
}

// NewEnvelope builds the alert body for a run.
func NewEnvelope(suite domain.TestSuite, run domain.RunRecord, now time.Time) Envelope {
	return Envelope{
		Event: EventTestFailed,
		Test: EnvelopeTest{
			ID:   suite.ID,
			Name: suite.Name,
			URL:  suite.URL,
		},
		Result: EnvelopeResult{
			RunID:       run.RunID,
			Passed:      run.Passed,
			StepsPassed: run.StepsPassed,
			StepsTotal:  run.StepsTotal,
			Details:     run.Details,
			Error:       run.Error,
		},
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}

// Sender posts envelopes. Deliveries are not retried.
type Sender struct {
	client *resty.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewSender creates a Sender.
func NewSender(timeout time.Duration, logger *zap.Logger) *Sender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Sender{client: client, logger: logger, now: time.Now}
}

// Send delivers the alert for run to url. It reports whether the webhook
// answered with a status below 400; failures are logged, never returned.
func (s *Sender) Send(ctx context.Context, url string, suite domain.TestSuite, run domain.RunRecord) bool {
	if url == "" {
		return false
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(NewEnvelope(suite, run, s.now())).
		Post(url)
	if err != nil {
		s.logger.Warn("alert webhook failed",
			zap.String("test_id", suite.ID), zap.String("run_id", run.RunID), zap.Error(err))
		return false
	}
	if resp.StatusCode() >= 400 {
		s.logger.Warn("alert webhook rejected",
			zap.String("test_id", suite.ID), zap.String("run_id", run.RunID), zap.Int("status", resp.StatusCode()))
		return false
	}
	return true
}
