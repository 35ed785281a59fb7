package http

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ronalddlopez/housecat/internal/livestream"
	"github.com/ronalddlopez/housecat/internal/results"
	"github.com/ronalddlopez/housecat/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	live    *livestream.Handler
	health  HealthConfig
}

// NewHandler creates a new handler. live may be nil.
func NewHandler(svc *service.Service, live *livestream.Handler, health HealthConfig) *Handler {
	return &Handler{
		service: svc,
		live:    live,
		health:  health,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")

	api.GET("/health", h.Health)

	// Suite registry and triggers
	api.GET("/tests", h.ListTests)
	api.GET("/tests/:test_id", h.GetTest)
	api.POST("/tests/:test_id/run", h.RunTest)
	api.POST("/callback/:test_id", h.Callback)
	api.POST("/run-test", h.RunAdHoc)

	// Results
	api.GET("/tests/:test_id/results", h.ListResults)
	api.GET("/tests/:test_id/results/:run_id", h.GetResult)
	api.GET("/tests/:test_id/timing", h.GetTiming)
	api.GET("/tests/:test_id/uptime", h.GetUptime)
	api.GET("/tests/:test_id/incidents", h.GetIncidents)
	api.GET("/tests/:test_id/events", h.GetEvents)
	api.GET("/dashboard", h.GetDashboard)

	// Live stream
	if h.live != nil {
		api.GET("/tests/:test_id/live", h.live.SSE)
		api.GET("/tests/:test_id/live/ws", h.live.WebSocket)
	}
}

// queryInt reads an integer query parameter clamped into [lo, hi]. Missing
// or malformed values yield def.
func queryInt(c echo.Context, name string, def, lo, hi int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return results.Clamp(v, lo, hi)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
