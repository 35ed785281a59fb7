package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := Load()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, BackendSQLite, cfg.EventLogBackend)
	assert.Equal(t, SchedulerExternal, cfg.SchedulerMode)
	assert.Equal(t, 100, cfg.IncidentLimit)
	assert.Equal(t, time.Second, cfg.StreamInterval)
	assert.Equal(t, 5*time.Minute, cfg.AutomationTimeout)
	assert.Equal(t, "session", cfg.ExecutionMode)
	assert.False(t, cfg.ArchiveEnabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("EVENT_LOG_BACKEND", "Redis")
	t.Setenv("WEBHOOK_TIMEOUT_MS", "2500")
	t.Setenv("INCIDENT_LIMIT", "not-a-number")
	t.Setenv("ARCHIVE_ENDPOINT", "http://localhost:9000")
	t.Setenv("ARCHIVE_USE_SSL", "false")
	t.Setenv("HOUSECAT_MODE", "MOCK")

	cfg := Load()
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, BackendRedis, cfg.EventLogBackend)
	assert.Equal(t, 2500*time.Millisecond, cfg.WebhookTimeout)
	assert.Equal(t, 100, cfg.IncidentLimit)
	assert.True(t, cfg.ArchiveEnabled())
	assert.False(t, cfg.ArchiveUseSSL)
	assert.True(t, cfg.LLMConfigured())
	assert.True(t, cfg.AutomationConfigured())
}
