package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers         []string
	KafkaGroupID         string
	ValidationEventTopic string

	// OIDC
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string

	// JWT
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTTTL      time.Duration

	// LLM
	LLMAPIKey      string
	LLMBaseURL     string
	LLMModelName   string
	LLMTimeout     time.Duration
	LLMTemperature float64
	LLMMaxTokens   int
	OfflineMode    bool

	// Assistant
	ConfidenceThreshold  float64
	ConditionCatalogPath string
	ConditionCacheTTL    time.Duration

	// Validation engine
	ValidationRulesPath string

	// Ingestion
	IngestAllowedSources []string
	IngestStatusTTL      time.Duration

	// Redaction
	RedactRulesPath string
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "carelens"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "carelens123"),
		PostgresDB:       getEnv("POSTGRES_DB", "carelens"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:         getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", "carelens-platform"),
		ValidationEventTopic: getEnv("VALIDATION_EVENT_TOPIC", "carelens.validation"),

		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", "carelens"),
		JWTAudience: getEnv("JWT_AUDIENCE", "carelens-api"),
		JWTTTL:      getDuration("JWT_TTL", time.Hour),

		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMBaseURL:     getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMModelName:   getEnv("LLM_MODEL_NAME", "gpt-4"),
		LLMTimeout:     getDuration("LLM_TIMEOUT", 30*time.Second),
		LLMTemperature: getFloatEnv("LLM_TEMPERATURE", 0.1),
		LLMMaxTokens:   getIntEnv("LLM_MAX_TOKENS", 600),
		OfflineMode:    getBoolEnv("OFFLINE_MODE", false),

		ConfidenceThreshold:  getFloatEnv("CONFIDENCE_THRESHOLD", 0.75),
		ConditionCatalogPath: getEnv("CONDITION_CATALOG_PATH", ""),
		ConditionCacheTTL:    getDuration("CONDITION_CACHE_TTL", 24*time.Hour),

		ValidationRulesPath: getEnv("VALIDATION_RULES_PATH", ""),

		IngestAllowedSources: getStringSliceEnv("INGEST_ALLOWED_SOURCES", []string{"ehr", "csv-upload", "manual"}),
		IngestStatusTTL:      getDuration("INGEST_STATUS_TTL", 30*24*time.Hour),

		RedactRulesPath: getEnv("REDACT_RULES_PATH", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
