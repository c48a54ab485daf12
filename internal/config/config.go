// Package config provides environment-variable configuration loading for the
// workflow execution engine's server binary, grounded on the teacher's
// internal/config/config.go (godotenv + os.Getenv/strconv idiom), trimmed to
// the fields this spec's runtime actually needs. Database/Redis/Auth/
// FileStorage/ServiceKeys/GRPCServiceAPI sections are dropped — see
// DESIGN.md and SPEC_FULL.md "DOMAIN STACK / not wired".
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	Server  ServerConfig
	Logging LoggingConfig
	Engine  EngineConfig
}

// ServerConfig holds HTTP/WebSocket control surface configuration.
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORS            bool
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// EngineConfig holds scheduler/event-bus tuning parameters.
type EngineConfig struct {
	EventHistoryCapacity  int
	DefaultNodeTimeout    time.Duration
	DefaultInputTimeout   time.Duration
	MaxParallelism        int
}

// Load loads the configuration from environment variables, optionally
// preceded by a .env file in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("MESHADE_PORT", 8585),
			Host:            getEnv("MESHADE_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("MESHADE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("MESHADE_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("MESHADE_SHUTDOWN_TIMEOUT", 30*time.Second),
			CORS:            getEnvAsBool("MESHADE_CORS_ENABLED", true),
		},
		Logging: LoggingConfig{
			Level:  getEnv("MESHADE_LOG_LEVEL", "info"),
			Format: getEnv("MESHADE_LOG_FORMAT", "json"),
		},
		Engine: EngineConfig{
			EventHistoryCapacity: getEnvAsInt("MESHADE_EVENT_HISTORY_CAPACITY", 1000),
			DefaultNodeTimeout:   getEnvAsDuration("MESHADE_NODE_TIMEOUT", 0),
			DefaultInputTimeout:  getEnvAsDuration("MESHADE_INPUT_TIMEOUT", 300*time.Second),
			MaxParallelism:       getEnvAsInt("MESHADE_MAX_PARALLELISM", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Engine.EventHistoryCapacity < 1 {
		return fmt.Errorf("event history capacity must be at least 1")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
