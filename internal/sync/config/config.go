package config

import "time"

type Config struct {
	// RequestDelay is waited before every status-changing remote call.
	RequestDelay time.Duration `mapstructure:"request_delay"`

	StateTTL      time.Duration `mapstructure:"state_ttl"`
	StateMaxItems int           `mapstructure:"state_max_items"`

	// PollInterval > 0 runs all accounts on a background ticker.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}
