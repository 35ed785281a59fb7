package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ronalddlopez/housecat/internal/domain"
	"github.com/ronalddlopez/housecat/internal/service"
)

// TestView is a registered suite with its last status.
type TestView struct {
	domain.TestSuite
	LastResult domain.LastResult `json:"last_result"`
	LastRunAt  *time.Time        `json:"last_run_at"`
}

func (h *Handler) view(suite domain.TestSuite, snap domain.SuiteSnapshot) TestView {
	v := TestView{TestSuite: suite, LastResult: snap.LastResult, LastRunAt: snap.LastRunAt}
	if v.LastResult == "" {
		v.LastResult = domain.LastResultPending
	}
	return v
}

// ListTests lists registered suites.
// GET /api/tests
func (h *Handler) ListTests(c echo.Context) error {
	ctx := c.Request().Context()

	snaps, err := h.service.Store().Snapshots(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}

	suites := h.service.Suites().List()
	tests := make([]TestView, len(suites))
	for i, s := range suites {
		tests[i] = h.view(s, snaps[s.ID])
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tests": tests,
	})
}

// GetTest gets one registered suite.
// GET /api/tests/:test_id
func (h *Handler) GetTest(c echo.Context) error {
	ctx := c.Request().Context()

	suite, ok := h.service.Suites().Get(c.Param("test_id"))
	if !ok {
		return c.JSON(http.StatusNotFound, errorBody("Test not found"))
	}
	snap, err := h.service.Store().Snapshot(ctx, suite.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, h.view(suite, snap))
}

// RunTest runs a registered suite now.
// POST /api/tests/:test_id/run
func (h *Handler) RunTest(c echo.Context) error {
	ctx := c.Request().Context()

	res, err := h.service.RunSuite(ctx, c.Param("test_id"), domain.TriggeredByManual)
	switch {
	case errors.Is(err, service.ErrSuiteNotFound):
		return c.JSON(http.StatusNotFound, errorBody("Test not found"))
	case errors.Is(err, service.ErrRunInProgress):
		return c.JSON(http.StatusConflict, errorBody(err.Error()))
	case err != nil:
		return c.JSON(http.StatusInternalServerError, errorBody("Pipeline failed: "+truncate(err.Error(), 300)))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"plan":           res.Outcome.Plan,
		"browser_result": res.Outcome.Browser,
		"result":         res.Outcome.Result,
		"run_id":         res.Run.RunID,
		"alert_sent":     res.Alerted,
	})
}

// Callback is the scheduled trigger.
// POST /api/callback/:test_id
func (h *Handler) Callback(c echo.Context) error {
	ctx := c.Request().Context()
	testID := c.Param("test_id")

	res, err := h.service.RunSuite(ctx, testID, domain.TriggeredByScheduler)
	switch {
	case errors.Is(err, service.ErrSuiteNotFound):
		return c.JSON(http.StatusNotFound, errorBody("Test not found"))
	case errors.Is(err, service.ErrRunInProgress):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error(), "test_id": testID})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error(), "test_id": testID})
	}

	if res.Skipped {
		return c.JSON(http.StatusOK, map[string]string{"status": "skipped", "reason": res.Reason})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "completed",
		"test_id": testID,
		"passed":  res.Run.Passed,
		"run_id":  res.Run.RunID,
	})
}

// AdHocRequest is the body of an ad-hoc run.
type AdHocRequest struct {
	URL       string            `json:"url"`
	Goal      string            `json:"goal"`
	Variables []domain.Variable `json:"variables,omitempty"`
}

// RunAdHoc runs an unregistered check.
// POST /api/run-test
func (h *Handler) RunAdHoc(c echo.Context) error {
	ctx := c.Request().Context()

	var req AdHocRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid JSON body"))
	}
	if req.URL == "" || req.Goal == "" {
		return c.JSON(http.StatusBadRequest, errorBody("Both 'url' and 'goal' are required"))
	}

	out, err := h.service.RunAdHoc(ctx, req.URL, req.Goal, req.Variables)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody("Pipeline failed: "+truncate(err.Error(), 300)))
	}
	return c.JSON(http.StatusOK, out)
}
