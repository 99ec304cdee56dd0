package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for a workflow-engine binary
// (cmd/workflow-engine, cmd/restapi), covering the ambient stack SPEC_FULL
// §1.1 names: logging, the model credential env var, retry defaults, SLA
// defaults, and the Postgres DSN for the durable task-store adapter.
type Config struct {
	Service ServiceConfig
	Engine  EngineConfig
	Database DatabaseConfig
}

// ServiceConfig holds service-specific settings shared by every binary.
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// EngineConfig holds the Workflow Engine's own tunables (§4.5, §4.7).
type EngineConfig struct {
	ModelCredential string // GEMINI_API_KEY; empty triggers actor simulation mode (§4.5)
	RetryBaseDelay  time.Duration
	RetryFactor     float64
	RetryJitter     float64
	RetryMaxAttempts int
	DefaultSLA      time.Duration
	TaskStoreKind   string // "memory" | "postgres"
	RedisNotify     bool   // mirror context/task-queue notifications to Redis pub/sub
	RedisAddr       string // used only when RedisNotify is true
}

// DatabaseConfig holds Postgres connection settings for the durable
// Human Task Queue adapter (§4.6, §6 "Task-store adapter").
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// Load loads configuration from environment variables.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "console"),
		},
		Engine: EngineConfig{
			ModelCredential:  getEnv("GEMINI_API_KEY", ""),
			RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY", 100*time.Millisecond),
			RetryFactor:      getEnvFloat("RETRY_FACTOR", 2),
			RetryJitter:      getEnvFloat("RETRY_JITTER", 0.2),
			RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			DefaultSLA:       getEnvDuration("DEFAULT_SLA", 0),
			TaskStoreKind:    getEnv("TASK_STORE", "memory"),
			RedisNotify:      getEnvBool("REDIS_NOTIFY", false),
			RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "workflow_engine"),
			User:        getEnv("POSTGRES_USER", "workflow_engine"),
			Password:    getEnv("POSTGRES_PASSWORD", "workflow_engine"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}
	if c.Engine.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be >= 1")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
