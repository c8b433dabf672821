package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string
	Database  DatabaseConfig
	Cache     CacheConfig
	Sync      SyncConfig
}

// DatabaseConfig holds primary (MySQL) database configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
}

// CacheConfig holds local durable cache configuration
type CacheConfig struct {
	Path string
}

// SyncConfig holds outbox replay / snapshot pull configuration
type SyncConfig struct {
	ScheduleEnabled bool
	Schedule        string // cron format
	ReplayLimit     int
	PullPageSize    int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3002"),
		JWTSecret: jwtSecret,
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "3306"),
			Username:     getEnv("DB_USERNAME", "farmcore"),
			Password:     os.Getenv("DB_PASSWORD"),
			Database:     getEnv("DB_DATABASE", "farmcore"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		Cache: CacheConfig{
			Path: getEnv("CACHE_PATH", "./farmcore_cache.db"),
		},
		Sync: SyncConfig{
			ScheduleEnabled: getEnv("SYNC_SCHEDULE_ENABLED", "false") == "true",
			Schedule:        getEnv("SYNC_SCHEDULE", "@every 5m"),
			ReplayLimit:     getEnvInt("SYNC_REPLAY_LIMIT", 100),
			PullPageSize:    getEnvInt("SYNC_PULL_PAGE_SIZE", 100),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
