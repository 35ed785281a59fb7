package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HealthConfig lists what the health endpoint reports. Dependencies are
// "connected" or "error: ...", keys are "key_set" or "missing".
type HealthConfig struct {
	PublicURL    string
	Dependencies map[string]Pinger
	Keys         map[string]bool
}

// Health reports dependency status.
// GET /api/health
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := map[string]string{}
	allOK := true
	for name, p := range h.health.Dependencies {
		if err := p.Ping(ctx); err != nil {
			status[name] = "error: " + truncate(err.Error(), 100)
			allOK = false
			continue
		}
		status[name] = "connected"
	}
	for name, set := range h.health.Keys {
		if set {
			status[name] = "key_set"
			continue
		}
		status[name] = "missing"
		allOK = false
	}
	status["publicUrl"] = h.health.PublicURL
	status["overallStatus"] = "issues_detected"
	if allOK {
		status["overallStatus"] = "all_green"
	}

	return c.JSON(http.StatusOK, status)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
