package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Slot backend identifiers accepted by SLOT_BACKEND.
const (
	SlotBackendMemory   = "memory"
	SlotBackendPostgres = "postgres"
	SlotBackendRedis    = "redis"
	SlotBackendDynamoDB = "dynamodb"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	// Slot storage
	SlotBackend    string
	SlotsTable     string
	ReserveTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Caller identity
	AuthJWTSecret string

	// HTTP edge
	CORSAllowedOrigins []string
	WriteRateLimit     float64
	WriteRateBurst     int

	// Triage
	KnowledgeBasePath string

	// Outbox delivery
	EventsSink      string
	EventsStream    string
	EventsQueueURL  string
	OutboxInterval  time.Duration
	OutboxBatchSize int

	// Stranded reservation sweeper
	ReconcileEnabled  bool
	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		SlotBackend:    strings.ToLower(strings.TrimSpace(getEnv("SLOT_BACKEND", ""))),
		SlotsTable:     getEnv("SLOTS_TABLE", "doctor_slots"),
		ReserveTimeout: getEnvAsDuration("RESERVE_TIMEOUT", 3*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		WriteRateLimit:     getEnvAsFloat("WRITE_RATE_LIMIT", 5),
		WriteRateBurst:     getEnvAsInt("WRITE_RATE_BURST", 10),

		KnowledgeBasePath: getEnv("KNOWLEDGE_BASE_PATH", ""),

		EventsSink:      strings.ToLower(strings.TrimSpace(getEnv("EVENTS_SINK", "log"))),
		EventsStream:    getEnv("EVENTS_STREAM", "clinic:appointment-events"),
		EventsQueueURL:  getEnv("EVENTS_QUEUE_URL", ""),
		OutboxInterval:  getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		OutboxBatchSize: getEnvAsInt("OUTBOX_BATCH_SIZE", 25),

		ReconcileEnabled:  getEnvAsBool("RECONCILE_ENABLED", false),
		ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", time.Minute),
		ReconcileGrace:    getEnvAsDuration("RECONCILE_GRACE", 10*time.Minute),
	}
	if cfg.SlotBackend == "" {
		cfg.SlotBackend = defaultSlotBackend(cfg)
	}
	return cfg
}

// UsesPostgres reports whether a database is configured for the ledger and outbox.
func (c *Config) UsesPostgres() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

func defaultSlotBackend(cfg *Config) string {
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		return SlotBackendPostgres
	}
	return SlotBackendMemory
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
