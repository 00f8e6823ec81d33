// Package config builds runtime configuration from FACTURO_* environment
// variables so embedding applications and integration tests stay lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration of the ledger core.
type Config struct {
	// PostgresURL selects the durable store. Empty means in-memory stores.
	PostgresURL string

	// Redis optionally backs the series counters with a shared CAS store.
	Redis RedisConfig

	// Kafka optionally carries audit events to an external trail.
	Kafka KafkaConfig

	// HMACMasterKey is the master secret per-issuer signing keys are derived
	// from. Required outside of tests.
	HMACMasterKey string

	// VerificationBaseURL is the public base for verification locators.
	VerificationBaseURL string

	// EmitMaxRetries bounds the optimistic-concurrency retry loop.
	EmitMaxRetries int

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// RedisConfig captures go-redis connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig captures franz-go connection settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		PostgresURL: os.Getenv("FACTURO_POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("FACTURO_REDIS_URL"),
			PoolSize:     envInt("FACTURO_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("FACTURO_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("FACTURO_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("FACTURO_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("FACTURO_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: envList("FACTURO_KAFKA_BROKERS"),
			Topic:   envDefault("FACTURO_KAFKA_TOPIC", "facturo.audit"),
		},
		HMACMasterKey:       os.Getenv("FACTURO_HMAC_MASTER_KEY"),
		VerificationBaseURL: envDefault("FACTURO_VERIFY_BASE_URL", "https://verify.facturo.local"),
		EmitMaxRetries:      envInt("FACTURO_EMIT_MAX_RETRIES", 3),
		LogLevel:            envDefault("FACTURO_LOG_LEVEL", "info"),
	}
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
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

func envDuration(key string, fallback time.Duration) time.Duration {
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

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
