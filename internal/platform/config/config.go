package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "taxfiling/pkg/platform/strings"
)

// Server captures process-level configuration. Empty infrastructure URLs
// select the in-memory fallbacks so a bare `go run ./cmd/server` works.
type Server struct {
	Addr          string
	PostgresURL   string
	RedisURL      string
	KafkaBrokers  []string
	KafkaTopic    string
	JWTSigningKey string

	ComputeLimit  int
	ComputeWindow time.Duration
	OutboxBuffer  int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("TAXFILING_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	topic := os.Getenv("TAXFILING_KAFKA_TOPIC")
	if topic == "" {
		topic = "taxfiling.events"
	}

	var brokers []string
	if raw := os.Getenv("TAXFILING_KAFKA_BROKERS"); raw != "" {
		brokers = pstrings.DedupeAndTrim(strings.Split(raw, ","))
	}

	return Server{
		Addr:          addr,
		PostgresURL:   os.Getenv("TAXFILING_POSTGRES_URL"),
		RedisURL:      os.Getenv("TAXFILING_REDIS_URL"),
		KafkaBrokers:  brokers,
		KafkaTopic:    topic,
		JWTSigningKey: jwtSigningKey,
		ComputeLimit:  intFromEnv("TAXFILING_COMPUTE_LIMIT", 10),
		ComputeWindow: durationFromEnv("TAXFILING_COMPUTE_WINDOW", time.Minute),
		OutboxBuffer:  intFromEnv("TAXFILING_OUTBOX_BUFFER", 256),
	}
}

func intFromEnv(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}
