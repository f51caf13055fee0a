package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the tenderflow server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Automation AutomationConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// AutomationConfig tunes the dispatcher. CallTimeout bounds the outbound HTTP
// call to the automation callback; PollAttempts/PollInterval bound the wait
// for the result document after the automation acknowledges (the ack and the
// durable result write are not assumed atomic). MaxConcurrent caps how many
// dispatchers run at once.
type AutomationConfig struct {
	CallTimeout   time.Duration
	PollAttempts  int
	PollInterval  time.Duration
	MaxConcurrent int
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("TENDERFLOW_PORT", 8080),
			Env:  envString("TENDERFLOW_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Automation: AutomationConfig{
			CallTimeout:   envDuration("AUTOMATION_CALL_TIMEOUT", 5*time.Minute),
			PollAttempts:  envInt("AUTOMATION_POLL_ATTEMPTS", 15),
			PollInterval:  envDuration("AUTOMATION_POLL_INTERVAL", 2*time.Second),
			MaxConcurrent: envInt("AUTOMATION_MAX_CONCURRENT", 32),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Automation.CallTimeout <= 0 {
		return fmt.Errorf("AUTOMATION_CALL_TIMEOUT must be positive, got %s", c.Automation.CallTimeout)
	}
	if c.Automation.PollAttempts < 1 {
		return fmt.Errorf("AUTOMATION_POLL_ATTEMPTS must be at least 1, got %d", c.Automation.PollAttempts)
	}
	if c.Automation.PollInterval <= 0 {
		return fmt.Errorf("AUTOMATION_POLL_INTERVAL must be positive, got %s", c.Automation.PollInterval)
	}
	if c.Automation.MaxConcurrent < 1 {
		return fmt.Errorf("AUTOMATION_MAX_CONCURRENT must be at least 1, got %d", c.Automation.MaxConcurrent)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
