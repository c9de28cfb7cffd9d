package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

const (
	DBPingTimeout         = 5 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 30 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 10 * time.Second
	ServerRequestTimeout  = 30 * time.Second
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	AdminToken  string `env:"ADMIN_TOKEN"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	MaxGuestCredits      int `env:"MAX_GUEST_CREDITS" envDefault:"10"`
	MaxGuestActions      int `env:"MAX_GUEST_ACTIONS" envDefault:"50"`
	MaxRegisteredCredits int `env:"MAX_REGISTERED_CREDITS" envDefault:"50"`

	CreditResetIntervalHours int `env:"CREDIT_RESET_INTERVAL_HOURS" envDefault:"24"`
	CreditResetHourUTC       int `env:"CREDIT_RESET_HOUR_UTC" envDefault:"0"`
	CreditResetMinuteUTC     int `env:"CREDIT_RESET_MINUTE_UTC" envDefault:"0"`
}

func (c *Config) ResetInterval() time.Duration {
	return time.Duration(c.CreditResetIntervalHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate rejects quota values that would corrupt accounting. Invalid values
// fail startup instead of being clamped.
func (c *Config) Validate(isProduction bool) error {
	if c.MaxGuestCredits <= 0 {
		return fmt.Errorf("MAX_GUEST_CREDITS must be positive, got %d", c.MaxGuestCredits)
	}
	if c.MaxGuestActions <= 0 {
		return fmt.Errorf("MAX_GUEST_ACTIONS must be positive, got %d", c.MaxGuestActions)
	}
	if c.MaxRegisteredCredits <= 0 {
		return fmt.Errorf("MAX_REGISTERED_CREDITS must be positive, got %d", c.MaxRegisteredCredits)
	}
	if c.CreditResetIntervalHours <= 0 {
		return fmt.Errorf("CREDIT_RESET_INTERVAL_HOURS must be positive, got %d", c.CreditResetIntervalHours)
	}
	if c.CreditResetHourUTC < 0 || c.CreditResetHourUTC > 23 {
		return fmt.Errorf("CREDIT_RESET_HOUR_UTC must be within 0-23, got %d", c.CreditResetHourUTC)
	}
	if c.CreditResetMinuteUTC < 0 || c.CreditResetMinuteUTC > 59 {
		return fmt.Errorf("CREDIT_RESET_MINUTE_UTC must be within 0-59, got %d", c.CreditResetMinuteUTC)
	}

	if isProduction {
		if c.AdminToken == "" {
			log.Warn().Msg("ADMIN_TOKEN is empty in production: admin endpoints are disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
