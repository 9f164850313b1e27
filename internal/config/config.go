package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the pairing system. It is built
// once at startup and passed into each component constructor; no component
// reads the environment on its own.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Matching MatchingConfig
	Model    ModelConfig
	LogLevel string
}

// DatabaseConfig describes the Postgres connection.
type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConnections int
}

// DSN builds the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Host string
	Port int
}

// MatchingConfig carries the pairing thresholds. Defaults mirror the
// committed scoring constants; they are configurable so a deployment can
// tighten the auto-pair gate without a rebuild.
type MatchingConfig struct {
	DateWindowDays      int
	AutoPairThreshold   float64
	SuggestionThreshold float64
	ResolverAutoMatch   float64
	ResolverReviewFloor float64
	BatchWorkers        int
}

// ModelConfig describes the learned ranking model persistence.
type ModelConfig struct {
	Path       string
	MinSamples int
}

// Load reads configuration from the environment, first merging any .env file
// found in the working directory (existing environment variables win).
func Load() (*Config, error) {
	// Missing .env is fine; explicit environment is the source of truth.
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:           getEnv("PGHOST", "localhost"),
			Port:           getEnvInt("PGPORT", 5432),
			User:           getEnv("PGUSER", "docpair"),
			Password:       getEnv("PGPASSWORD", "docpair"),
			Name:           getEnv("PGDATABASE", "docpair"),
			SSLMode:        getEnv("PGSSLMODE", "disable"),
			MaxConnections: getEnvInt("PG_MAX_CONNECTIONS", 20),
		},
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 8090),
		},
		Matching: MatchingConfig{
			DateWindowDays:      getEnvInt("MATCH_DATE_WINDOW_DAYS", 3),
			AutoPairThreshold:   getEnvFloat("AUTO_PAIR_THRESHOLD", 0.90),
			SuggestionThreshold: getEnvFloat("SUGGESTION_THRESHOLD", 0.85),
			ResolverAutoMatch:   getEnvFloat("RESOLVER_AUTO_MATCH", 90),
			ResolverReviewFloor: getEnvFloat("RESOLVER_REVIEW_FLOOR", 85),
			BatchWorkers:        getEnvInt("BATCH_WORKERS", 4),
		},
		Model: ModelConfig{
			Path:       getEnv("MODEL_PATH", "data/pairing_model.json"),
			MinSamples: getEnvInt("MODEL_MIN_SAMPLES", 100),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if cfg.Matching.AutoPairThreshold < cfg.Matching.SuggestionThreshold {
		return nil, fmt.Errorf("AUTO_PAIR_THRESHOLD (%.2f) must not be below SUGGESTION_THRESHOLD (%.2f)",
			cfg.Matching.AutoPairThreshold, cfg.Matching.SuggestionThreshold)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
