package http

import (
	"errors"
	"math"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ronalddlopez/housecat/internal/livestream"
	"github.com/ronalddlopez/housecat/internal/repository"
	"github.com/ronalddlopez/housecat/internal/results"
)

// Event log page bounds.
const (
	DefaultEventsLimit = 50
	MaxEventsLimit     = 200
)

// ListResults returns a page of run history.
// GET /api/tests/:test_id/results
func (h *Handler) ListResults(c echo.Context) error {
	limit := queryInt(c, "limit", results.DefaultRunsLimit, 1, results.MaxRunsLimit)
	offset := queryInt(c, "offset", 0, 0, math.MaxInt)

	page, err := h.service.Store().ListRuns(c.Request().Context(), c.Param("test_id"), limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, page)
}

// GetResult returns one run.
// GET /api/tests/:test_id/results/:run_id
func (h *Handler) GetResult(c echo.Context) error {
	run, err := h.service.Store().GetRun(c.Request().Context(), c.Param("test_id"), c.Param("run_id"))
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorBody("Run not found"))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, run)
}

// GetTiming returns the timing series.
// GET /api/tests/:test_id/timing
func (h *Handler) GetTiming(c echo.Context) error {
	limit := queryInt(c, "limit", results.DefaultTimingLimit, 1, results.MaxTimingLimit)

	series, err := h.service.Store().Timing(c.Request().Context(), c.Param("test_id"), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, series)
}

// GetUptime returns the uptime over a rolling window.
// GET /api/tests/:test_id/uptime
func (h *Handler) GetUptime(c echo.Context) error {
	hours := queryInt(c, "hours", results.DefaultUptimeHours, 1, results.MaxUptimeHours)

	report, err := h.service.Store().Uptime(c.Request().Context(), c.Param("test_id"), hours)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, report)
}

// GetIncidents returns the newest incidents.
// GET /api/tests/:test_id/incidents
func (h *Handler) GetIncidents(c echo.Context) error {
	limit := queryInt(c, "limit", results.DefaultIncidentsLimit, 1, results.MaxIncidentsLimit)

	list, err := h.service.Store().Incidents(c.Request().Context(), c.Param("test_id"), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, list)
}

// GetEvents returns a page of a test's event log after a cursor.
// GET /api/tests/:test_id/events
func (h *Handler) GetEvents(c echo.Context) error {
	log := h.service.EventLog()
	if log == nil {
		return c.JSON(http.StatusNotFound, errorBody("event log disabled"))
	}
	testID := c.Param("test_id")
	limit := queryInt(c, "limit", DefaultEventsLimit, 1, MaxEventsLimit)

	events, err := log.ReadRange(c.Request().Context(), testID, c.QueryParam("after"), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}

	frames := make([]livestream.Frame, 0, len(events))
	for _, e := range events {
		data, err := e.DataJSON()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		}
		frames = append(frames, livestream.Frame{ID: e.ID, Event: data})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"test_id": testID,
		"events":  frames,
	})
}

// GetDashboard returns the cross-suite summary.
// GET /api/dashboard
func (h *Handler) GetDashboard(c echo.Context) error {
	dash, err := h.service.Store().Dashboard(c.Request().Context(), h.service.Suites().List())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, dash)
}
