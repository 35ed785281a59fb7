package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronalddlopez/housecat/internal/domain"
)

const hookURL = "https://hooks.example.com/housecat"

var (
	testSuite = domain.TestSuite{ID: "login", Name: "Login flow", URL: "https://example.com/login"}
	testRun   = domain.RunRecord{
		RunID: "1a2b3c4d", TestID: "login", Passed: false, StepsPassed: 1, StepsTotal: 3,
		Details: "The dashboard never loaded.", Error: domain.Ptr("timeout"),
	}
	fixedNow = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
)

func newTestSender(t *testing.T) *Sender {
	t.Helper()
	s := NewSender(time.Second, nil)
	s.now = func() time.Time { return fixedNow }
	httpmock.ActivateNonDefault(s.client.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return s
}

func TestEnvelopeGolden(t *testing.T) {
	body, err := json.MarshalIndent(NewEnvelope(testSuite, testRun, fixedNow), "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "envelope", body)
}

func TestSendSuccess(t *testing.T) {
	s := newTestSender(t)

	var got Envelope
	httpmock.RegisterResponder(http.MethodPost, hookURL, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		raw, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &got))
		return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
	})

	assert.True(t, s.Send(context.Background(), hookURL, testSuite, testRun))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Equal(t, EventTestFailed, got.Event)
	assert.Equal(t, "1a2b3c4d", got.Result.RunID)
	assert.Equal(t, "timeout", domain.Deref(got.Result.Error))
}

func TestSendRejected(t *testing.T) {
	s := newTestSender(t)
	httpmock.RegisterResponder(http.MethodPost, hookURL, httpmock.NewStringResponder(http.StatusBadRequest, "nope"))

	assert.False(t, s.Send(context.Background(), hookURL, testSuite, testRun))
}

func TestSendTransportError(t *testing.T) {
	s := newTestSender(t)
	httpmock.RegisterResponder(http.MethodPost, hookURL, httpmock.NewErrorResponder(errors.New("connection refused")))

	assert.False(t, s.Send(context.Background(), hookURL, testSuite, testRun))
}

func TestSendWithoutURL(t *testing.T) {
	s := newTestSender(t)
	assert.False(t, s.Send(context.Background(), "", testSuite, testRun))
	assert.Zero(t, httpmock.GetTotalCallCount())
}
