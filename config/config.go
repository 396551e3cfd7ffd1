// Package config provides configuration for the agent engine.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the engine configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Chat model settings
	ChatBaseURL        string
	ChatAPIKey         string
	ChatTimeout        time.Duration
	ChatMaxAttempts    int
	ChatRetryBaseDelay time.Duration

	// Tool provider settings
	ToolsURL    string
	ToolTimeout time.Duration

	// Execution settings
	WorkerCount    int
	QueueCapacity  int
	RunTimeout     time.Duration // 0 disables the per-run wall-clock limit
	AgentCacheSize int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:           getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:        getEnv("DATABASE_URL", "file:agentd.db?cache=shared&mode=rwc"),
		ChatBaseURL:        getEnv("CHAT_BASE_URL", ""),
		ChatAPIKey:         getEnv("CHAT_API_KEY", ""),
		ChatTimeout:        time.Duration(getEnvInt("CHAT_TIMEOUT_MS", 60000)) * time.Millisecond,
		ChatMaxAttempts:    getEnvInt("CHAT_MAX_ATTEMPTS", 3),
		ChatRetryBaseDelay: time.Duration(getEnvInt("CHAT_RETRY_BASE_MS", 500)) * time.Millisecond,
		ToolsURL:           getEnv("TOOLS_URL", ""),
		ToolTimeout:        time.Duration(getEnvInt("TOOL_TIMEOUT_MS", 60000)) * time.Millisecond,
		WorkerCount:        getEnvInt("WORKER_COUNT", 4),
		QueueCapacity:      getEnvInt("QUEUE_CAPACITY", 64),
		RunTimeout:         time.Duration(getEnvInt("RUN_TIMEOUT_MS", 0)) * time.Millisecond,
		AgentCacheSize:     getEnvInt("AGENT_CACHE_SIZE", 128),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
