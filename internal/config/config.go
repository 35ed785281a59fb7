// Package config provides configuration for housecat.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the housecat configuration.
type Config struct {
	// Server settings
	HTTPPort  int
	PublicURL string

	// Storage
	DatabaseURL     string
	EventLogBackend string
	RedisURL        string
	IncidentLimit   int

	// Suites
	SuitesFile    string
	SchedulerMode string

	// Collaborators
	Mode              string
	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	LLMTimeout        time.Duration
	AutomationURL     string
	AutomationAPIKey  string
	AutomationTimeout time.Duration
	ExecutionMode     string

	// Alerting
	WebhookTimeout  time.Duration
	AlertPolicyFile string

	// Live stream
	StreamInterval time.Duration

	// Run fan-out
	NATSURL          string
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveBucket    string
	ArchiveUseSSL    bool

	// Logging
	LogLevel  string
	LogFormat string
}

// Event log backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Scheduler modes.
const (
	SchedulerExternal = "external"
	SchedulerLocal    = "local"
)

// Load loads configuration from environment variables, after reading a
// .env file from the working directory when one exists.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:          getEnvInt("HTTP_PORT", 8080),
		PublicURL:         getEnv("PUBLIC_URL", "http://localhost:8080"),
		DatabaseURL:       getEnv("DATABASE_URL", "file:housecat.db?mode=rwc&_journal_mode=WAL&_busy_timeout=5000"),
		EventLogBackend:   strings.ToLower(getEnv("EVENT_LOG_BACKEND", BackendSQLite)),
		RedisURL:          getEnv("REDIS_URL", ""),
		IncidentLimit:     getEnvInt("INCIDENT_LIMIT", 100),
		SuitesFile:        getEnv("SUITES_FILE", "suites.yaml"),
		SchedulerMode:     strings.ToLower(getEnv("SCHEDULER_MODE", SchedulerExternal)),
		Mode:              getEnv("HOUSECAT_MODE", ""),
		LLMBaseURL:        getEnv("LLM_BASE_URL", "http://localhost:4000/v1"),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMModel:          getEnv("LLM_MODEL", "claude-haiku-4-5"),
		LLMTimeout:        time.Duration(getEnvInt("LLM_TIMEOUT_MS", 60000)) * time.Millisecond,
		AutomationURL:     getEnv("AUTOMATION_URL", "https://agent.tinyfish.ai/v1/automation/run-sse"),
		AutomationAPIKey:  getEnv("AUTOMATION_API_KEY", ""),
		AutomationTimeout: time.Duration(getEnvInt("AUTOMATION_TIMEOUT_MS", 300000)) * time.Millisecond,
		ExecutionMode:     getEnv("EXECUTION_MODE", "session"),
		WebhookTimeout:    time.Duration(getEnvInt("WEBHOOK_TIMEOUT_MS", 10000)) * time.Millisecond,
		AlertPolicyFile:   getEnv("ALERT_POLICY_FILE", ""),
		StreamInterval:    time.Duration(getEnvInt("STREAM_INTERVAL_MS", 1000)) * time.Millisecond,
		NATSURL:           getEnv("NATS_URL", ""),
		ArchiveEndpoint:   getEnv("ARCHIVE_ENDPOINT", ""),
		ArchiveAccessKey:  getEnv("ARCHIVE_ACCESS_KEY", ""),
		ArchiveSecretKey:  getEnv("ARCHIVE_SECRET_KEY", ""),
		ArchiveBucket:     getEnv("ARCHIVE_BUCKET", "housecat"),
		ArchiveUseSSL:     getEnvBool("ARCHIVE_USE_SSL", true),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
	}
	return cfg
}

// ArchiveEnabled reports whether run archival is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveEndpoint != "" && c.ArchiveBucket != ""
}

// LLMConfigured reports whether real LLM calls can be made.
func (c *Config) LLMConfigured() bool {
	return c.LLMAPIKey != "" || strings.EqualFold(c.Mode, "MOCK")
}

// AutomationConfigured reports whether real automation calls can be made.
func (c *Config) AutomationConfigured() bool {
	return c.AutomationAPIKey != "" || strings.EqualFold(c.Mode, "MOCK")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
