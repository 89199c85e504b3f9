package config

import (
	"time"

	"github.com/blang/semver"
)

// LegacyBefore is the first Podium API version that uses the current
// pagination parameter names
var LegacyBefore = semver.MustParse("2.0.0")

// Config represents the complete configuration structure
type Config struct {
	Podium  PodiumConfig  `mapstructure:"podium"`
	Session SessionConfig `mapstructure:"session"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// PodiumConfig holds Podium API connection details
type PodiumConfig struct {
	Endpoint   string        `mapstructure:"endpoint" validate:"required,url"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	APIVersion string        `mapstructure:"api_version" validate:"required"`
	Legacy     bool          `mapstructure:"legacy"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	UserAgent  string        `mapstructure:"user_agent"`
}

// LegacyMode reports whether list pagination must use the legacy parameter
// names, either forced by config or implied by an API version below 2.0.0
func (c PodiumConfig) LegacyMode() bool {
	if c.Legacy {
		return true
	}
	v, err := semver.ParseTolerant(c.APIVersion)
	if err != nil {
		return false
	}
	return v.LT(LegacyBefore)
}

// SessionConfig controls where the session token is persisted
type SessionConfig struct {
	File string `mapstructure:"file"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
	Color  bool   `mapstructure:"color"`
}
