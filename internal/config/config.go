package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogFormat   string `env:"LOG_FORMAT,default=json"`

	RequestDeadlineMS    int    `env:"REQUEST_DEADLINE_MS,default=10000"`
	MaxFanout            int    `env:"MAX_FANOUT,default=16"`
	ProvidersFile        string `env:"PROVIDERS_FILE"`
	StuckScanIntervalSec int    `env:"STUCK_SCAN_INTERVAL_SEC,default=60"`
	StuckPendingGraceSec int    `env:"STUCK_PENDING_GRACE_SEC,default=30"`
	ShutdownTimeoutSec   int    `env:"SHUTDOWN_TIMEOUT_SEC,default=10"`

	DBMaxOpenConns       int `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBMaxIdleConns       int `env:"DB_MAX_IDLE_CONNS,default=10"`
	DBConnMaxLifetimeSec int `env:"DB_CONN_MAX_LIFETIME_SEC,default=300"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("DATABASE_DSN must not be empty")
	}
	if strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("REDIS_URL must not be empty")
	}
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT must be between 1 and 65535 (got %d)", c.APIPort)
	}
	if c.RequestDeadlineMS <= 0 {
		return fmt.Errorf("REQUEST_DEADLINE_MS must be > 0 (got %d)", c.RequestDeadlineMS)
	}
	if c.MaxFanout <= 0 {
		return fmt.Errorf("MAX_FANOUT must be > 0 (got %d)", c.MaxFanout)
	}
	if c.StuckScanIntervalSec <= 0 {
		return fmt.Errorf("STUCK_SCAN_INTERVAL_SEC must be > 0 (got %d)", c.StuckScanIntervalSec)
	}
	if c.StuckPendingGraceSec < 0 {
		return fmt.Errorf("STUCK_PENDING_GRACE_SEC must be >= 0 (got %d)", c.StuckPendingGraceSec)
	}
	if c.ShutdownTimeoutSec <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT_SEC must be > 0 (got %d)", c.ShutdownTimeoutSec)
	}
	if c.DBMaxOpenConns < 0 || c.DBMaxIdleConns < 0 || c.DBConnMaxLifetimeSec < 0 {
		return fmt.Errorf("DB pool settings must be >= 0")
	}
	return nil
}

func (c *Config) RequestDeadline() time.Duration {
	return time.Duration(c.RequestDeadlineMS) * time.Millisecond
}

func (c *Config) StuckScanInterval() time.Duration {
	return time.Duration(c.StuckScanIntervalSec) * time.Second
}

func (c *Config) StuckPendingGrace() time.Duration {
	return time.Duration(c.StuckPendingGraceSec) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

func (c *Config) DBConnMaxLifetime() time.Duration {
	return time.Duration(c.DBConnMaxLifetimeSec) * time.Second
}

// EventsEnabled reports whether completion events go to RabbitMQ.
func (c *Config) EventsEnabled() bool {
	return strings.TrimSpace(c.RabbitMQURL) != ""
}
