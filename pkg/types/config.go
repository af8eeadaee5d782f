package types

import "time"

// Config represents the main configuration for the pulse daemon.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Debounce DebounceConfig `yaml:"debounce"`
	Reaper   ReaperConfig   `yaml:"reaper"`
}

// ServerConfig defines HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"` // 0 binds an OS-assigned ephemeral port
}

// DebounceConfig defines how long a waiting_for_user report is held
// back before being announced to observers.
type DebounceConfig struct {
	DelayMs int `yaml:"delay_ms"`
}

// ReaperConfig defines the staleness sweep settings.
type ReaperConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	StaleAfterHours int `yaml:"stale_after_hours"` // Fallback for records without a PID
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 0,
		},
		Debounce: DebounceConfig{
			DelayMs: 3000,
		},
		Reaper: ReaperConfig{
			IntervalSeconds: 30,
			StaleAfterHours: 24,
		},
	}
}

// DebounceDelay returns the debounce delay as a duration.
func (c *Config) DebounceDelay() time.Duration {
	return time.Duration(c.Debounce.DelayMs) * time.Millisecond
}

// ReapInterval returns the sweep interval as a duration.
func (c *Config) ReapInterval() time.Duration {
	return time.Duration(c.Reaper.IntervalSeconds) * time.Second
}

// StaleAfter returns the no-PID staleness fallback as a duration.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Reaper.StaleAfterHours) * time.Hour
}
