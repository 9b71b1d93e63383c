package config

import "time"

type Config struct {
	APIBase string `mapstructure:"api_base"`

	// Spacing is the minimum gap between consecutive outbound calls,
	// shared across all accounts. Cooldown is the extra wait after a
	// rate-limited response before the next attempt.
	Spacing    time.Duration `mapstructure:"spacing"`
	Cooldown   time.Duration `mapstructure:"cooldown"`
	MaxRetries int           `mapstructure:"max_retries"`

	// Business timezone offset in minutes relative to UTC, used for the
	// receivables date window.
	TimezoneOffsetMinutes int `mapstructure:"timezone_offset_minutes"`
}
