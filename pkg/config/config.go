// Package config loads application configuration from defaults, an optional
// config file, and CONDUCTOR_-prefixed environment variables (in that order
// of precedence, lowest first). A .env file is honored when present.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	API          APIConfig          `mapstructure:"api"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Environment string `mapstructure:"environment"`
}

// APIConfig holds configuration for the HTTP status surface.
type APIConfig struct {
	Port           string   `mapstructure:"port"`
	JWTSecret      string   `mapstructure:"jwt_secret"`
	RateLimit      int      `mapstructure:"rate_limit"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MetricsConfig holds Prometheus configuration.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// RedisConfig holds configuration for the Redis-backed reference services.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// OrchestratorConfig holds lifecycle timing configuration.
type OrchestratorConfig struct {
	// GracePeriod bounds each stop callback during shutdown.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// StartTimeout bounds each start callback during bring-up.
	StartTimeout time.Duration `mapstructure:"start_timeout"`
	// RestartPause is the pause between stop and start in a restart.
	RestartPause time.Duration `mapstructure:"restart_pause"`
	// HealthCheckInterval is the default interval between health checks
	// for services that do not declare their own.
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
}

// LoadOptions controls where configuration is loaded from.
type LoadOptions struct {
	// ConfigFile is an optional path to a YAML config file.
	ConfigFile string
	// EnvFile is the .env file consulted before reading the environment.
	EnvFile string
}

// DefaultLoadOptions returns the default load options.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{EnvFile: ".env"}
}

// Load loads configuration using the default options.
func Load() (*Config, error) {
	return LoadWithOptions(DefaultLoadOptions())
}

// LoadWithOptions loads configuration from defaults, the optional config
// file, and the environment.
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if _, err := os.Stat(opts.EnvFile); err == nil {
			if err := godotenv.Load(opts.EnvFile); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", opts.EnvFile, err)
			}
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CONDUCTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.environment", "development")

	v.SetDefault("api.port", "8080")
	v.SetDefault("api.jwt_secret", "")
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.allowed_origins", []string{"*"})

	v.SetDefault("metrics.namespace", "conductor")

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("orchestrator.grace_period", "5s")
	v.SetDefault("orchestrator.start_timeout", "30s")
	v.SetDefault("orchestrator.restart_pause", "1s")
	v.SetDefault("orchestrator.health_check_interval", "30s")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}

	if c.API.Port == "" {
		return fmt.Errorf("api port must not be empty")
	}
	if c.API.RateLimit <= 0 {
		return fmt.Errorf("api rate limit must be positive")
	}

	if c.Orchestrator.GracePeriod <= 0 {
		return fmt.Errorf("orchestrator grace period must be positive")
	}
	if c.Orchestrator.StartTimeout <= 0 {
		return fmt.Errorf("orchestrator start timeout must be positive")
	}
	if c.Orchestrator.HealthCheckInterval <= 0 {
		return fmt.Errorf("orchestrator health check interval must be positive")
	}

	return nil
}
