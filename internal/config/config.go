// Package config loads process configuration from environment variables.
//
// No third-party config library is used: none of the reference services in
// this codebase's lineage wire one either, they all read os.Getenv directly
// at startup (see cmd/server/main.go's wiring style).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every recognized environment option.
type Config struct {
	DatabaseURL         string
	DatabaseMinPoolSize int
	DatabaseMaxPoolSize int

	ImapTimeout      time.Duration
	ImapPollInterval time.Duration
	ImapPollJitter   time.Duration
	ImapIdleTimeout  time.Duration
	ImapListenerMode string // "single" or "cluster"

	WorkersNum                    int
	WorkerMaxConnectionsPerHost   int

	WebhookMaxRetries int
	WebhookTimeout    time.Duration

	PasswordEncryptionKey string

	Environment string
	LogLevel    string
	HTTPPort    string
}

// Load reads Config from the environment, applying the defaults named in
// the specification.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:                 getenv("DATABASE_URL", ""),
		DatabaseMinPoolSize:         getenvInt("DATABASE_MIN_POOL_SIZE", 5),
		DatabaseMaxPoolSize:         getenvInt("DATABASE_MAX_POOL_SIZE", 20),
		ImapTimeout:                 getenvSeconds("IMAP_TIMEOUT", 300),
		ImapPollInterval:            getenvSeconds("IMAP_POLL_INTERVAL", 60),
		ImapPollJitter:              getenvSeconds("IMAP_POLL_JITTER", 30),
		ImapIdleTimeout:             getenvSeconds("IMAP_IDLE_TIMEOUT", 1740),
		ImapListenerMode:            getenv("IMAP_LISTENER_MODE", "single"),
		WorkersNum:                  getenvInt("WORKERS_NUM", 2),
		WorkerMaxConnectionsPerHost: getenvInt("WORKER_MAX_CONNECTIONS_PER_PROVIDER", 50),
		WebhookMaxRetries:           getenvInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookTimeout:              getenvSeconds("WEBHOOK_TIMEOUT", 10),
		PasswordEncryptionKey:       getenv("PASSWORD_ENCRYPTION_KEY", ""),
		Environment:                 getenv("ENVIRONMENT", "development"),
		LogLevel:                   getenv("LOG_LEVEL", "info"),
		HTTPPort:                   getenv("HTTP_PORT", "8080"),
	}

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.PasswordEncryptionKey == "" {
		return cfg, fmt.Errorf("PASSWORD_ENCRYPTION_KEY is required")
	}
	if cfg.ImapListenerMode != "single" && cfg.ImapListenerMode != "cluster" {
		return cfg, fmt.Errorf("IMAP_LISTENER_MODE must be 'single' or 'cluster', got %q", cfg.ImapListenerMode)
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(getenvInt(key, defSeconds)) * time.Second
}
