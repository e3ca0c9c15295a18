package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// StoreBackend selects the consent store implementation.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
	StoreRedis    StoreBackend = "redis"
)

// StoreConfig selects and parameterises the consent store.
type StoreConfig struct {
	Backend     StoreBackend
	PostgresDSN string
	RedisURL    string
}

// AssertionConfig carries the decision assertion codec settings.
type AssertionConfig struct {
	Issuer         string
	Audience       string
	KeyID          string
	PrivateKeyPath string
	TokenTTL       time.Duration
	TrustedIssuers []string
}

// AuditConfig carries the Kafka audit sink settings. Empty brokers means
// audit events stay on the in-memory sink.
type AuditConfig struct {
	Brokers string
	Topic   string
	Buffer  int
}

// Config is the full server configuration.
type Config struct {
	Addr      string
	Store     StoreConfig
	Assertion AssertionConfig
	Audit     AuditConfig
}

// FromEnv builds the configuration from environment variables so main stays
// lean. Defaults favour local development: in-memory store, generated dev key.
func FromEnv() Config {
	return Config{
		Addr: envOr("OBCONSENT_ADDR", ":8080"),
		Store: StoreConfig{
			Backend:     StoreBackend(envOr("OBCONSENT_STORE", string(StoreMemory))),
			PostgresDSN: os.Getenv("OBCONSENT_POSTGRES_DSN"),
			RedisURL:    os.Getenv("OBCONSENT_REDIS_URL"),
		},
		Assertion: AssertionConfig{
			Issuer:         envOr("OBCONSENT_ASSERTION_ISSUER", "obconsent"),
			Audience:       envOr("OBCONSENT_ASSERTION_AUDIENCE", "obconsent-rp"),
			KeyID:          envOr("OBCONSENT_SIGNING_KEY_ID", "obconsent-dev-key"),
			PrivateKeyPath: os.Getenv("OBCONSENT_SIGNING_KEY_PATH"),
			TokenTTL:       envDuration("OBCONSENT_ASSERTION_TTL", 5*time.Minute),
			TrustedIssuers: envList("OBCONSENT_TRUSTED_ISSUERS", []string{"obconsent-am"}),
		},
		Audit: AuditConfig{
			Brokers: os.Getenv("OBCONSENT_KAFKA_BROKERS"),
			Topic:   envOr("OBCONSENT_AUDIT_TOPIC", "consent-audit"),
			Buffer:  envInt("OBCONSENT_AUDIT_BUFFER", 256),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return fallback
}
