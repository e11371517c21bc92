package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DBPath string

	BufferThreshold    int
	CoordinateEpsilon  float64
	ReconcileChunkSize int

	// Google Address Validation configuration.
	GoogleAPIKey  string
	GoogleTimeout time.Duration

	// Gemini document extraction configuration.
	GeminiAPIKey string
	GeminiModel  string

	// LocTracker dispatch API configuration.
	LocTrackerBaseURL  string
	LocTrackerUsername string
	LocTrackerPassword string
	LocTrackerTimeout  time.Duration

	// Kafka event stream configuration.
	KafkaBrokers     []string
	KafkaEventsTopic string
	KafkaEnabled     bool
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	googleTimeout, err := parseDuration("GOOGLE_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	locTrackerTimeout, err := parseDuration("LOCTRACKER_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}

	bufferThreshold, err := parsePositiveInt("BUFFER_THRESHOLD", 1000)
	if err != nil {
		return nil, err
	}
	chunkSize, err := parsePositiveInt("RECONCILE_CHUNK_SIZE", 50)
	if err != nil {
		return nil, err
	}

	epsilon, err := parseEpsilon()
	if err != nil {
		return nil, err
	}

	kafkaEnabled := false
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DBPath: envOrDefault("DB_PATH", "dispatch.db"),

		BufferThreshold:    bufferThreshold,
		CoordinateEpsilon:  epsilon,
		ReconcileChunkSize: chunkSize,

		GoogleAPIKey:  os.Getenv("GOOGLE_API_KEY"),
		GoogleTimeout: googleTimeout,

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  envOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),

		LocTrackerBaseURL:  os.Getenv("LOCTRACKER_BASE_URL"),
		LocTrackerUsername: os.Getenv("LOCTRACKER_USERNAME"),
		LocTrackerPassword: os.Getenv("LOCTRACKER_PASSWORD"),
		LocTrackerTimeout:  locTrackerTimeout,

		KafkaBrokers:     parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaEventsTopic: envOrDefault("KAFKA_EVENTS_TOPIC", "dispatch-events"),
		KafkaEnabled:     kafkaEnabled,
	}

	if cfg.DBPath == "" {
		return nil, errors.New("DB_PATH is required")
	}
	if cfg.LocTrackerBaseURL != "" && !strings.HasSuffix(cfg.LocTrackerBaseURL, "/") {
		cfg.LocTrackerBaseURL += "/"
	}
	if cfg.LocTrackerBaseURL != "" && (cfg.LocTrackerUsername == "" || cfg.LocTrackerPassword == "") {
		return nil, errors.New("LOCTRACKER_BASE_URL is set but LOCTRACKER_USERNAME or LOCTRACKER_PASSWORD is not")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	s := envOrDefault(key, fallback)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseEpsilon() (float64, error) {
	s := os.Getenv("COORDINATE_EPSILON")
	if s == "" {
		return 1e-7, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid COORDINATE_EPSILON: %q", s)
	}
	return v, nil
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
