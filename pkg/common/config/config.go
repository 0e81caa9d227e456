package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultUploadMaxBytes is the ceiling enforced by the document upload flow.
	DefaultUploadMaxBytes = 500 * 1024 * 1024
	// DefaultFileMaxBytes is the generic file limit. It is deliberately not
	// reconciled with DefaultUploadMaxBytes.
	DefaultFileMaxBytes = 100 * 1024 * 1024
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64
	PublicBaseURL  string
	CORSOrigins    []string

	// Case-file backend
	APIBaseURL        string
	APIRequestTimeout time.Duration

	// Session
	SessionCookieName   string
	SessionCookieSecure bool
	SessionFallbackTTL  time.Duration

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
	KafkaBrokers  []string
	KafkaGroupID  string
	ActivityTopic string

	// Files
	UploadMaxBytes    int64
	FileMaxBytes      int64
	UploadConcurrency int
	ChecklistConfig   string

	// PDF storage
	PDFS3Region   string
	PDFPresignTTL time.Duration

	ActivityPort    string
	RateLimitRPS    int
	RateLimitBurst  int
	FeedbackLogOnly bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when one exists; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 5*time.Minute),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", ""),
		CORSOrigins:    getStringSliceEnv("CORS_ALLOWED_ORIGINS", nil),

		APIBaseURL:        getEnv("API_BASE_URL", getEnv("VITE_API_BASE_URL", "http://localhost:8000/api/v1")),
		APIRequestTimeout: getDuration("API_REQUEST_TIMEOUT", 2*time.Minute),

		SessionCookieName:   getEnv("SESSION_COOKIE_NAME", "casereview_session"),
		SessionCookieSecure: getBoolEnv("SESSION_COOKIE_SECURE", false),
		SessionFallbackTTL:  getDuration("SESSION_FALLBACK_TTL", 8*time.Hour),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "casereview"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "casereview"),
		PostgresDB:       getEnv("POSTGRES_DB", "casereview"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:  getStringSliceEnv("KAFKA_BROKERS", nil),
		KafkaGroupID:  getEnv("KAFKA_GROUP_ID", "casereview-activity"),
		ActivityTopic: getEnv("ACTIVITY_TOPIC", "casereview.activity"),

		UploadMaxBytes:    int64(getIntEnv("UPLOAD_MAX_FILE_BYTES", DefaultUploadMaxBytes)),
		FileMaxBytes:      int64(getIntEnv("FILE_MAX_BYTES", DefaultFileMaxBytes)),
		UploadConcurrency: getIntEnv("UPLOAD_CONCURRENCY", 4),
		ChecklistConfig:   getEnv("CHECKLIST_CONFIG", ""),

		PDFS3Region:   getEnv("PDF_S3_REGION", ""),
		PDFPresignTTL: getDuration("PDF_PRESIGN_TTL", 15*time.Minute),

		ActivityPort:    getEnv("ACTIVITY_PORT", "8082"),
		RateLimitRPS:    getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst:  getIntEnv("RATE_LIMIT_BURST", 100),
		FeedbackLogOnly: getBoolEnv("FEEDBACK_LOG_ONLY", true),
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

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getStringSliceEnv splits a comma separated value.
func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
