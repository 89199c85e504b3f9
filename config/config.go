package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blang/semver"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var validate = validator.New()

// Load loads the configuration from file. Every key can also be set through
// the environment, e.g. PODIUM_PODIUM_ENDPOINT.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	v.SetEnvPrefix("podium")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// Check current directory first
		v.AddConfigPath(".")

		// Check home directory
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".podium"))
		}

		// Check /etc
		v.AddConfigPath("/etc/podium/")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		// no file in the search path: defaults and environment only
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Podium defaults
	v.SetDefault("podium.endpoint", "")
	v.SetDefault("podium.username", "")
	v.SetDefault("podium.password", "")
	v.SetDefault("podium.api_version", "2.0.0")
	v.SetDefault("podium.legacy", false)
	v.SetDefault("podium.timeout", "30s")
	v.SetDefault("podium.user_agent", "")

	// Session defaults
	v.SetDefault("session.file", "~/.podium/session.toml")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
}

// validateConfig checks if the configuration is valid
func validateConfig(cfg *Config) error {
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return err
	}

	if _, err := semver.ParseTolerant(cfg.Podium.APIVersion); err != nil {
		return fmt.Errorf("invalid podium.api_version %q: %w", cfg.Podium.APIVersion, err)
	}

	return nil
}

// fieldError maps a validator failure onto the config key the user wrote
func fieldError(fe validator.FieldError) error {
	switch fe.StructNamespace() {
	case "Config.Podium.Endpoint":
		if fe.Tag() == "required" {
			return fmt.Errorf("podium.endpoint is required")
		}
		return fmt.Errorf("podium.endpoint must be a valid URL: %v", fe.Value())
	case "Config.Podium.APIVersion":
		return fmt.Errorf("podium.api_version is required")
	case "Config.Podium.Timeout":
		return fmt.Errorf("podium.timeout must be positive")
	case "Config.Logging.Level":
		return fmt.Errorf("invalid logging level: %v", fe.Value())
	case "Config.Logging.Format":
		return fmt.Errorf("invalid logging format: %v", fe.Value())
	}
	return fmt.Errorf("invalid %s: failed %q", fe.Namespace(), fe.Tag())
}
