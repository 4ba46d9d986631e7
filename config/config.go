package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Environment    string        `mapstructure:"environment"`
	ServerAddress  string        `mapstructure:"server.address"`
	ServerTimeout  time.Duration `mapstructure:"server.timeout"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled"`
	LogLevel       string        `mapstructure:"logging.level"`
	LogFormat      string        `mapstructure:"logging.format"`
	Gateway        GatewayConfig
	Sessions       SessionConfig
	Slots          SlotConfig
	Tracing        TracingConfig
}

// GatewayConfig holds the remote booking Gateway configuration
type GatewayConfig struct {
	BaseURL string `mapstructure:"gateway.base_url"`
	// Timeout bounds every Gateway call; the reference behavior left the
	// transport default unspecified, so the policy lives here.
	Timeout time.Duration `mapstructure:"gateway.timeout"`
}

// SessionConfig holds booking session tracker configuration
type SessionConfig struct {
	// AllowConcurrentRuns permits launching a second automation run for a
	// master record while one is still in flight.
	AllowConcurrentRuns bool `mapstructure:"sessions.allow_concurrent_runs"`
}

// SlotConfig holds delivery slot window configuration
type SlotConfig struct {
	WindowDays int `mapstructure:"slots.window_days"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	LicenseKey     string `mapstructure:"tracing.license_key"`
	AppName        string `mapstructure:"tracing.app_name"`
	LogEnabled     bool   `mapstructure:"tracing.log_enabled"`
	DistribTracing bool   `mapstructure:"tracing.distributed_tracing_enabled"`
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Setup configuration paths
	v.AddConfigPath(path)
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Continue without a config file - ENV vars and defaults apply
			fmt.Printf("Warning: No configuration file found: %v\n", err)
		} else {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Enable environment variables to override config
	v.SetEnvPrefix("CONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return config, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Core settings
	v.SetDefault("environment", "development")
	v.SetDefault("server.address", "127.0.0.1:8090")
	v.SetDefault("server.timeout", "30s")
	v.SetDefault("metrics_enabled", true)

	// Gateway settings
	v.SetDefault("gateway.base_url", "https://31.97.232.231/booking")
	v.SetDefault("gateway.timeout", "15s")

	// Session settings
	v.SetDefault("sessions.allow_concurrent_runs", false)

	// Slot settings
	v.SetDefault("slots.window_days", 5)

	// Tracing settings
	v.SetDefault("tracing.app_name", "Sand Booking Console")
	v.SetDefault("tracing.log_enabled", true)
	v.SetDefault("tracing.distributed_tracing_enabled", true)

	// Logging settings
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
