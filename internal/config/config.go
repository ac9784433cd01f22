package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server
	Port            string
	Env             string
	ShutdownTimeout time.Duration
	HTTPTimeout     time.Duration

	// Database
	DatabaseURL string

	// Redis
	RedisURL    string
	RedisPrefix string
	CacheTTL    time.Duration

	// AI capability
	AIApiKey  string
	AIModel   string
	AITimeout time.Duration

	// Pipeline
	MaxConcurrency int

	// Object storage archive (CloudFlare R2 / S3-compatible), optional
	R2Endpoint  string
	R2AccessKey string
	R2SecretKey string
	R2Bucket    string

	// Logging
	LogLevel string

	// Security
	AdminAPIKey string
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("APP_ENV", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HTTPTimeout:     getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisPrefix: getEnv("REDIS_PREFIX", "promofeed:"),
		CacheTTL:    getEnvAsDuration("CACHE_TTL", 720*time.Hour),

		AIApiKey:  getEnv("AI_API_KEY", ""),
		AIModel:   getEnv("AI_MODEL", "gemini-2.0-flash"),
		AITimeout: getEnvAsDuration("AI_TIMEOUT", 60*time.Second),

		MaxConcurrency: getEnvAsInt("MAX_CONCURRENCY", 5),

		R2Endpoint:  getEnv("R2_ENDPOINT", ""),
		R2AccessKey: getEnv("R2_ACCESS_KEY", ""),
		R2SecretKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2Bucket:    getEnv("R2_BUCKET", "promofeed"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.AdminAPIKey == "" && c.Env != "development" {
		return fmt.Errorf("ADMIN_API_KEY is required outside development")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %d", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %v", name, err, defaultVal)
		return defaultVal
	}
	return value
}
