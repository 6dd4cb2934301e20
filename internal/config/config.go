package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabasePath string
	ServerURL    string
	ChannelURL   string
	OwnerID      string
	ProbeAddress string
	SyncInterval time.Duration
	LogLevel     string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional in production
	}

	interval, err := time.ParseDuration(getEnvOrDefault("MERE_SYNC_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid MERE_SYNC_INTERVAL: %w", err)
	}

	return &Config{
		DatabasePath: getEnvOrDefault("MERE_DATABASE_PATH", "mere.db"),
		ServerURL:    getEnvOrDefault("MERE_SERVER_URL", "http://localhost:8000"),
		ChannelURL:   getEnvOrDefault("MERE_WS_URL", "ws://localhost:8000/ws"),
		OwnerID:      os.Getenv("MERE_OWNER_ID"),
		ProbeAddress: getEnvOrDefault("MERE_PROBE_ADDRESS", "localhost:8000"),
		SyncInterval: interval,
		LogLevel:     getEnvOrDefault("MERE_LOG_LEVEL", "info"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
