// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat service.
package server

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// RateLimitConfig defines the parameters for per-client publish rate limiting.
type RateLimitConfig struct {
	Burst          int           `mapstructure:"burst" validate:"gte=1"`
	RefillInterval time.Duration `mapstructure:"refill_interval" validate:"gt=0"`
}

// StreamConfig tunes long-lived subscriber connections.
type StreamConfig struct {
	// KeepAlive is the interval between SSE keepalive comments.
	KeepAlive time.Duration `mapstructure:"keepalive" validate:"gt=0"`
	// Buffer is the number of undelivered messages a subscriber may lag
	// behind before it is disconnected.
	Buffer int `mapstructure:"buffer" validate:"gte=1"`
	// Retry is the reconnection delay advertised to EventSource clients.
	Retry time.Duration `mapstructure:"retry" validate:"gte=0"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string          `mapstructure:"port" validate:"required"`
	AllowedOrigins []string        `mapstructure:"allowed_origins"`
	MaxMessageSize int64           `mapstructure:"max_message_size" validate:"gte=1"`
	StaticDir      string          `mapstructure:"static_dir"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
	Stream         StreamConfig    `mapstructure:"stream"`
	Log            LogConfig       `mapstructure:"log"`
}

// LoadOptions controls where LoadConfig looks for settings.
type LoadOptions struct {
	// ConfigFile is an optional YAML file. A missing explicit file is an error.
	ConfigFile string
	// EnvFile is an optional .env file. When empty, ./.env is used if present.
	EnvFile string
	// Overrides are applied last, keyed by config key (for example "port").
	Overrides map[string]any
}

const defaultEnvFile = ".env"

var validate = validator.New(validator.WithRequiredStructEnabled())

func defaultConfig() Config {
	return Config{
		Port: ":3000",
		AllowedOrigins: []string{
			"http://localhost:3000",
		},
		MaxMessageSize: 512,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		Stream: StreamConfig{
			KeepAlive: 30 * time.Second,
			Buffer:    256,
			Retry:     3 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig builds a Config from defaults, an optional YAML file, an optional
// .env file, environment variables and explicit overrides, in increasing order
// of precedence. The result is sanitized and validated.
func LoadConfig(opts LoadOptions) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, defaultConfig())
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", opts.ConfigFile, err)
		}
	}

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg = sanitizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	if _, err := os.Stat(path); err != nil {
		if explicit {
			return fmt.Errorf("env file %s: %w", path, err)
		}
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("port", cfg.Port)
	v.SetDefault("allowed_origins", cfg.AllowedOrigins)
	v.SetDefault("max_message_size", cfg.MaxMessageSize)
	v.SetDefault("static_dir", cfg.StaticDir)
	v.SetDefault("rate_limit.burst", cfg.RateLimit.Burst)
	v.SetDefault("rate_limit.refill_interval", cfg.RateLimit.RefillInterval)
	v.SetDefault("stream.keepalive", cfg.Stream.KeepAlive)
	v.SetDefault("stream.buffer", cfg.Stream.Buffer)
	v.SetDefault("stream.retry", cfg.Stream.Retry)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}

// sanitizeConfig fills zero values with defaults and normalizes the listen
// address and origins.
func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	cfg.Port = strings.TrimSpace(cfg.Port)
	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if cfg.Stream.KeepAlive <= 0 {
		cfg.Stream.KeepAlive = def.Stream.KeepAlive
	}
	if cfg.Stream.Buffer <= 0 {
		cfg.Stream.Buffer = def.Stream.Buffer
	}
	if cfg.Stream.Retry < 0 {
		cfg.Stream.Retry = def.Stream.Retry
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}
