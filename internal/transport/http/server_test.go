package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ronalddlopez/housecat/internal/adapter/agents"
	"github.com/ronalddlopez/housecat/internal/adapter/automation"
	"github.com/ronalddlopez/housecat/internal/adapter/llm"
	"github.com/ronalddlopez/housecat/internal/config"
	"github.com/ronalddlopez/housecat/internal/domain"
	"github.com/ronalddlopez/housecat/internal/livestream"
	"github.com/ronalddlopez/housecat/internal/metrics"
	"github.com/ronalddlopez/housecat/internal/pipeline"
	"github.com/ronalddlopez/housecat/internal/results"
	"github.com/ronalddlopez/housecat/internal/service"
	"github.com/ronalddlopez/housecat/internal/testutil"
)

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	repo := testutil.NewStore(t)
	mock := llm.NewMockClient()
	collector := metrics.NewCollector()

	orch := pipeline.NewOrchestrator(
		agents.NewPlanner(mock),
		pipeline.NewStepExecutor(automation.NewMockClient(), pipeline.ModeSession, nil),
		agents.NewEvaluator(mock),
		pipeline.WithEventLog(repo),
		pipeline.WithHooks(collector),
	)
	svc := service.New(service.Deps{
		Store: results.New(repo, results.DefaultIncidentRetention),
		Suites: config.NewRegistry([]domain.TestSuite{
			{ID: "login", Name: "Login", URL: "https://example.com", Goal: "Open the page and log in",
				Schedule: "*/15 * * * *", Status: domain.SuiteStatusActive, AlertAfter: 1},
			{ID: "paused", Name: "Paused", URL: "https://example.com", Goal: "Open the page",
				Schedule: "0 * * * *", Status: domain.SuiteStatusPaused, AlertAfter: 1},
		}),
		Pipeline: orch,
		EventLog: repo,
		Metrics:  collector,
	})

	streamer := livestream.NewStreamer(repo, 10*time.Millisecond, nil)
	streamer.MaxIdle = 1

	return NewServer(Options{
		Service: svc,
		Live:    livestream.NewHandler(streamer, collector, nil),
		Metrics: collector.Handler(),
		Health: HealthConfig{
			PublicURL: "http://localhost:8080",
			Dependencies: map[string]Pinger{
				"database": repo,
			},
			Keys: map[string]bool{"automation": true, "llm": true},
		},
		Logger: zap.NewNop(),
	})
}

func do(t *testing.T, e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	e := newTestServer(t)

	rec := do(t, e, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "connected", body["database"])
	assert.Equal(t, "key_set", body["llm"])
	assert.Equal(t, "all_green", body["overallStatus"])
	assert.Equal(t, "http://localhost:8080", body["publicUrl"])
}

func TestHealthIssues(t *testing.T) {
	h := NewHandler(nil, nil, HealthConfig{
		Dependencies: map[string]Pinger{
			"event_log": PingFunc(func(context.Context) error { return errors.New("connection refused") }),
		},
		Keys: map[string]bool{"automation": false},
	})
	e := echo.New()
	rec := httptest.NewRecorder()
	require.NoError(t, h.Health(e.NewContext(httptest.NewRequest(http.MethodGet, "/api/health", nil), rec)))

	body := decode(t, rec)
	assert.Equal(t, "error: connection refused", body["event_log"])
	assert.Equal(t, "missing", body["automation"])
	assert.Equal(t, "issues_detected", body["overallStatus"])
}

func TestCallbackFlow(t *testing.T) {
	e := newTestServer(t)

	rec := do(t, e, http.MethodPost, "/api/callback/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/callback/paused", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "skipped", decode(t, rec)["status"])

	rec = do(t, e, http.MethodPost, "/api/callback/login", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, true, body["passed"])
	runID, _ := body["run_id"].(string)
	require.Len(t, runID, 8)

	rec = do(t, e, http.MethodGet, "/api/tests/login/results?limit=1000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode(t, rec)
	assert.Equal(t, float64(1), page["total"])
	assert.Equal(t, float64(results.MaxRunsLimit), page["limit"])

	rec = do(t, e, http.MethodGet, "/api/tests/login/results/"+runID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "scheduler", decode(t, rec)["triggered_by"])

	rec = do(t, e, http.MethodGet, "/api/tests/login/results/deadbeef", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodGet, "/api/tests/login/uptime?hours=0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	uptime := decode(t, rec)
	assert.Equal(t, float64(100), uptime["uptime_pct"])
	assert.Equal(t, float64(1), uptime["window_hours"])

	rec = do(t, e, http.MethodGet, "/api/tests/login/timing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["total"])

	rec = do(t, e, http.MethodGet, "/api/tests/login/incidents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["total"])

	rec = do(t, e, http.MethodGet, "/api/tests/login/events?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	events, _ := decode(t, rec)["events"].([]interface{})
	assert.Len(t, events, 2)

	rec = do(t, e, http.MethodGet, "/api/tests/login", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "passed", decode(t, rec)["last_result"])

	rec = do(t, e, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode(t, rec)
	assert.Equal(t, float64(2), dash["total_tests"])
	assert.Equal(t, float64(1), dash["passing"])
	assert.Equal(t, float64(1), dash["pending"])

	rec = do(t, e, http.MethodGet, "/api/tests/login/live", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "id: ")

	rec = do(t, e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `housecat_runs_total{status="passed",triggered_by="scheduler"} 1`)
	assert.Contains(t, rec.Body.String(), `housecat_runs_total{status="skipped",triggered_by="scheduler"} 1`)
}

func TestManualRun(t *testing.T) {
	e := newTestServer(t)

	rec := do(t, e, http.MethodPost, "/api/tests/paused/run", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Contains(t, body, "plan")
	assert.Contains(t, body, "browser_result")
	assert.Contains(t, body, "run_id")

	rec = do(t, e, http.MethodPost, "/api/tests/nope/run", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunAdHoc(t *testing.T) {
	e := newTestServer(t)

	rec := do(t, e, http.MethodPost, "/api/run-test", `{"url":"https://example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/run-test", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/run-test",
		`{"url":"https://example.com","goal":"Search for {{q}}","variables":[{"name":"q","value":"cats"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	result, _ := decode(t, rec)["result"].(map[string]interface{})
	assert.Equal(t, true, result["passed"])
}

func TestListTests(t *testing.T) {
	e := newTestServer(t)

	rec := do(t, e, http.MethodGet, "/api/tests", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tests, _ := decode(t, rec)["tests"].([]interface{})
	require.Len(t, tests, 2)
	first, _ := tests[0].(map[string]interface{})
	assert.Equal(t, "login", first["id"])
	assert.Equal(t, "pending", first["last_result"])
}
