// Package config provides configuration loading and validation from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	LogLevel          string        // debug, info, warn, error
	ListenAddr        string        // Server listen address (e.g., ":8080")
	MetricsListenAddr string        // Metrics listener address (e.g., "localhost:9090")
	DatabasePath      string        // SQLite database path
	KeyLength         int           // Generated access key token length
	KeyValidity       time.Duration // How long an issued key stays valid
	SweepFallback     time.Duration // Scheduler sleep when no future expiry exists
	SystemActorEmail  string        // Optional: user attributed with automated expiries
	BootstrapToken    string        // Optional: admin bootstrap token, locked out once an admin exists
	PaystackSecretKey string        // Optional: Paystack secret key for payment verification
	PaystackBaseURL   string        // Optional: override Paystack API base URL
	KeyPriceCents     int64         // Price charged per issued key, in minor units
}

// Load parses configuration from environment variables.
// All configuration options have sensible defaults for ease of deployment.
func Load() (*Config, error) {
	logLevel := os.Getenv("LOG_LEVEL")
	listenAddr := os.Getenv("LISTEN_ADDR")
	metricsListenAddr := os.Getenv("METRICS_LISTEN_ADDR")
	databasePath := os.Getenv("DATABASE_PATH")

	// Set defaults for optional fields
	if logLevel == "" {
		logLevel = "info"
	}

	if listenAddr == "" {
		listenAddr = ":8080"
	}

	if metricsListenAddr == "" {
		metricsListenAddr = "localhost:9090"
	}

	if databasePath == "" {
		databasePath = "/data/keys.db"
	}

	keyLength, err := intEnv("KEY_LENGTH", 20)
	if err != nil {
		return nil, err
	}

	keyValidity, err := durationEnv("KEY_VALIDITY", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	sweepFallback, err := durationEnv("SWEEP_FALLBACK_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	priceCents, err := int64Env("ACCESS_KEY_PRICE_CENTS", 10000)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:          logLevel,
		ListenAddr:        listenAddr,
		MetricsListenAddr: metricsListenAddr,
		DatabasePath:      databasePath,
		KeyLength:         keyLength,
		KeyValidity:       keyValidity,
		SweepFallback:     sweepFallback,
		SystemActorEmail:  os.Getenv("SYSTEM_ACTOR_EMAIL"),
		BootstrapToken:    os.Getenv("ADMIN_BOOTSTRAP_TOKEN"),
		PaystackSecretKey: os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackBaseURL:   os.Getenv("PAYSTACK_BASE_URL"),
		KeyPriceCents:     priceCents,
	}

	return cfg, nil
}

// Validate checks all configuration constraints.
func (c *Config) Validate() error {
	if c.KeyLength < 8 {
		return fmt.Errorf("KEY_LENGTH must be at least 8, got %d", c.KeyLength)
	}
	if c.KeyValidity <= 0 {
		return fmt.Errorf("KEY_VALIDITY must be positive, got %s", c.KeyValidity)
	}
	if c.SweepFallback <= 0 {
		return fmt.Errorf("SWEEP_FALLBACK_INTERVAL must be positive, got %s", c.SweepFallback)
	}
	if c.KeyPriceCents <= 0 {
		return fmt.Errorf("ACCESS_KEY_PRICE_CENTS must be positive, got %d", c.KeyPriceCents)
	}
	return nil
}

func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return v, nil
}

func int64Env(name string, def int64) (int64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return v, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. \"24h\"): %w", name, err)
	}
	return v, nil
}
