package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port     string
	LogLevel string

	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	JWTSecret      string
	AllowedOrigins []string

	RateLimitPerSecond float64
	RateLimitBurst     int

	MaxUploadSizeBytes int64
	UploadTTL          time.Duration
	DefaultChunkSize   int
	MaxChunkSize       int
	UpsertBatchSize    int

	DefaultTimezone string
	DefaultCurrency string

	// Cron spec for expiring stale import runs, e.g. "@every 1h".
	HousekeepingSchedule string
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	jwtSecret := getEnv("JWT_SECRET", "change-me-to-a-long-random-secret-of-at-least-32-bytes")
	if jwtSecret == "change-me-to-a-long-random-secret-of-at-least-32-bytes" {
		log.Println("WARNING: Using default insecure JWT_SECRET. Set JWT_SECRET environment variable for production.")
	}

	driver := strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite"))
	if driver != "sqlite" && driver != "postgres" {
		log.Fatalf("FATAL: DATABASE_DRIVER must be 'sqlite' or 'postgres', got '%s'", driver)
	}
	dsnDefault := "./tradejournal.db"
	if driver == "postgres" {
		dsnDefault = "postgres://localhost:5432/tradejournal?sslmode=disable"
	}

	maxChunk := getEnvAsInt("MAX_CHUNK_SIZE", 5000)
	defaultChunk := getEnvAsInt("DEFAULT_CHUNK_SIZE", 500)
	if defaultChunk < 1 || defaultChunk > maxChunk {
		log.Printf("WARNING: DEFAULT_CHUNK_SIZE %d outside [1,%d]. Using %d.", defaultChunk, maxChunk, 500)
		defaultChunk = 500
	}

	Cfg = &AppConfig{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseDriver: driver,
		DatabaseDSN:    getEnv("DATABASE_DSN", dsnDefault),

		JWTSecret:      jwtSecret,
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 30),

		MaxUploadSizeBytes: getEnvAsInt64("MAX_UPLOAD_SIZE_BYTES", 10*1024*1024),
		UploadTTL:          getEnvAsDuration("UPLOAD_TTL", 24*time.Hour),
		DefaultChunkSize:   defaultChunk,
		MaxChunkSize:       maxChunk,
		UpsertBatchSize:    getEnvAsInt("UPSERT_BATCH_SIZE", 50),

		DefaultTimezone: getEnv("DEFAULT_TIMEZONE", "America/New_York"),
		DefaultCurrency: strings.ToUpper(getEnv("DEFAULT_CURRENCY", "USD")),

		HousekeepingSchedule: getEnv("HOUSEKEEPING_SCHEDULE", "@every 1h"),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBDriver=%s, DefaultTZ=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabaseDriver, Cfg.DefaultTimezone)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid float value for %s ('%s'), using default: %v", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
