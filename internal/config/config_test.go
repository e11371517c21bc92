package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "dispatch.db", cfg.DBPath)
	assert.Equal(t, 1000, cfg.BufferThreshold)
	assert.Equal(t, 1e-7, cfg.CoordinateEpsilon)
	assert.Equal(t, 50, cfg.ReconcileChunkSize)
	assert.Empty(t, cfg.GoogleAPIKey)
	assert.Equal(t, 10*time.Second, cfg.GoogleTimeout)
	assert.Equal(t, "gemini-2.0-flash", cfg.GeminiModel)
	assert.Equal(t, 15*time.Second, cfg.LocTrackerTimeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "dispatch-events", cfg.KafkaEventsTopic)
	assert.False(t, cfg.KafkaEnabled)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("DB_PATH", "/var/lib/dispatch/dispatch.db")
	t.Setenv("BUFFER_THRESHOLD", "200")
	t.Setenv("COORDINATE_EPSILON", "0.000001")
	t.Setenv("RECONCILE_CHUNK_SIZE", "25")
	t.Setenv("GOOGLE_API_KEY", "test-key")
	t.Setenv("GOOGLE_TIMEOUT", "5s")
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")
	t.Setenv("LOCTRACKER_BASE_URL", "https://fleet.example.com/api")
	t.Setenv("LOCTRACKER_USERNAME", "acme")
	t.Setenv("LOCTRACKER_PASSWORD", "secret")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_EVENTS_TOPIC", "custom-events")
	t.Setenv("KAFKA_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/var/lib/dispatch/dispatch.db", cfg.DBPath)
	assert.Equal(t, 200, cfg.BufferThreshold)
	assert.Equal(t, 0.000001, cfg.CoordinateEpsilon)
	assert.Equal(t, 25, cfg.ReconcileChunkSize)
	assert.Equal(t, "test-key", cfg.GoogleAPIKey)
	assert.Equal(t, 5*time.Second, cfg.GoogleTimeout)
	assert.Equal(t, "gem-key", cfg.GeminiAPIKey)
	assert.Equal(t, "gemini-2.5-pro", cfg.GeminiModel)
	assert.Equal(t, "https://fleet.example.com/api/", cfg.LocTrackerBaseURL, "base URL gains trailing slash")
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-events", cfg.KafkaEventsTopic)
	assert.True(t, cfg.KafkaEnabled)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidBufferThreshold(t *testing.T) {
	t.Setenv("BUFFER_THRESHOLD", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUFFER_THRESHOLD")
}

func TestLoad_InvalidEpsilon(t *testing.T) {
	t.Setenv("COORDINATE_EPSILON", "-1")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COORDINATE_EPSILON")
}

func TestLoad_LocTrackerWithoutCredentials(t *testing.T) {
	t.Setenv("LOCTRACKER_BASE_URL", "https://fleet.example.com/api/")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOCTRACKER_USERNAME")
}
