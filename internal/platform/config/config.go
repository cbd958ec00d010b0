// Package config builds process-level configuration from the environment so
// main stays lean. The authorization policy itself loads separately (see
// internal/authz/config).
package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	LogLevel      string
	JWTSigningKey string
	PolicyPath    string

	PostgresDSN string
	RedisURL    string

	KafkaBrokers    []string
	KafkaAuditTopic string

	ShutdownTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:            envOr("VAULTGATE_ADDR", ":8080"),
		LogLevel:        envOr("VAULTGATE_LOG_LEVEL", "info"),
		JWTSigningKey:   envOr("VAULTGATE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		PolicyPath:      os.Getenv("VAULTGATE_POLICY_FILE"),
		PostgresDSN:     os.Getenv("VAULTGATE_POSTGRES_DSN"),
		RedisURL:        os.Getenv("VAULTGATE_REDIS_URL"),
		KafkaAuditTopic: envOr("VAULTGATE_KAFKA_AUDIT_TOPIC", "vaultgate.audit"),
		ShutdownTimeout: 10 * time.Second,
	}
	if brokers := os.Getenv("VAULTGATE_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
