package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything main needs from the environment. Optional
// backends (postgres, redis, kafka) stay empty when not configured and the
// server falls back to in-memory stores.
type Config struct {
	Addr        string
	DatabaseURL string
	RedisURL    string

	KafkaBrokers []string
	AuditTopic   string

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	CertificateBaseURL  string
	CertificateValidity time.Duration

	SweepInterval  time.Duration
	SweepBatchSize int

	DerivedStatusTTL time.Duration

	// AssessmentSeedFile optionally points at a JSON file with assessment
	// configurations loaded at startup.
	AssessmentSeedFile string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:        envOr("TRAINCHECK_ADDR", ":8080"),
		DatabaseURL: os.Getenv("TRAINCHECK_DATABASE_URL"),
		RedisURL:    os.Getenv("TRAINCHECK_REDIS_URL"),

		KafkaBrokers: splitNonEmpty(os.Getenv("TRAINCHECK_KAFKA_BROKERS")),
		AuditTopic:   envOr("TRAINCHECK_AUDIT_TOPIC", "traincheck.audit.v1"),

		// Defaults are for development, override in production.
		JWTSigningKey: envOr("TRAINCHECK_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     envOr("TRAINCHECK_JWT_ISSUER", "traincheck"),
		JWTAudience:   envOr("TRAINCHECK_JWT_AUDIENCE", "traincheck-api"),

		CertificateBaseURL:  envOr("TRAINCHECK_CERTIFICATE_BASE_URL", "https://certificates.local"),
		CertificateValidity: envDurationOr("TRAINCHECK_CERTIFICATE_VALIDITY", 365*24*time.Hour),

		SweepInterval:  envDurationOr("TRAINCHECK_SWEEP_INTERVAL", time.Minute),
		SweepBatchSize: envIntOr("TRAINCHECK_SWEEP_BATCH_SIZE", 500),

		DerivedStatusTTL: envDurationOr("TRAINCHECK_DERIVED_STATUS_TTL", 30*time.Second),

		AssessmentSeedFile: os.Getenv("TRAINCHECK_ASSESSMENT_SEED_FILE"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
