package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all service configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Model    ModelConfig    `mapstructure:"model"`
	Holiday  HolidayConfig  `mapstructure:"holiday"`
	Forecast ForecastConfig `mapstructure:"forecast"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig defines the HTTP server settings
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig defines the optional prediction log database.
// URL overrides the discrete connection fields.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig defines the optional forecast cache
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ModelConfig selects the prediction oracle
type ModelConfig struct {
	Backend string        `mapstructure:"backend"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Path    string        `mapstructure:"path"`
}

// HolidayConfig selects the public holiday calendar
type HolidayConfig struct {
	Country    string   `mapstructure:"country"`
	MinYear    int      `mapstructure:"min_year"`
	MaxYear    int      `mapstructure:"max_year"`
	ExtraDates []string `mapstructure:"extra_dates"`
}

// ForecastConfig bounds rollouts
type ForecastConfig struct {
	Timezone    string `mapstructure:"timezone"`
	MaxDays     int    `mapstructure:"max_days"`
	TrendWindow int    `mapstructure:"trend_window"`

	// RequestTimeout bounds one forecast request; keep it below server.write_timeout
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LoggingConfig defines log output
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Location resolves the configured timezone
func (f ForecastConfig) Location() (*time.Location, error) {
	return time.LoadLocation(f.Timezone)
}

// LoadConfig reads .env, then config.yaml from ./configs or the working
// directory, then environment overrides (server.port -> SERVER_PORT)
func LoadConfig() (*Config, error) {
	return LoadConfigFrom("./configs", ".")
}

// LoadConfigFrom is LoadConfig with explicit search paths
func LoadConfigFrom(paths ...string) (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR", "REDIS_URL")
	_ = v.BindEnv("model.url", "MODEL_SERVER_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:8501"})

	// Database
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "admission_forecast")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "1h")

	// Model
	v.SetDefault("model.backend", "http")
	v.SetDefault("model.url", "http://localhost:5001")
	v.SetDefault("model.timeout", "10s")
	v.SetDefault("model.path", "models/linear_model.json")

	// Holiday
	v.SetDefault("holiday.country", "jp")
	v.SetDefault("holiday.min_year", 2000)
	v.SetDefault("holiday.max_year", 2100)
	v.SetDefault("holiday.extra_dates", []string{})

	// Forecast
	v.SetDefault("forecast.timezone", "Asia/Tokyo")
	v.SetDefault("forecast.max_days", 366)
	v.SetDefault("forecast.trend_window", 7)
	v.SetDefault("forecast.request_timeout", "45s")

	// Logging
	v.SetDefault("logging.level", "info")
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Enabled && c.Database.URL == "" {
		if c.Database.Host == "" || c.Database.Database == "" {
			return errors.New("database.url or database.host and database.database are required when the database is enabled")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}

	switch c.Model.Backend {
	case "http":
		if c.Model.URL == "" {
			return errors.New("model.url is required for the http backend")
		}
	case "linear":
		if c.Model.Path == "" {
			return errors.New("model.path is required for the linear backend")
		}
	default:
		return fmt.Errorf("model.backend must be http or linear, got %q", c.Model.Backend)
	}

	switch strings.ToLower(c.Holiday.Country) {
	case "jp", "us":
	default:
		return fmt.Errorf("holiday.country must be jp or us, got %q", c.Holiday.Country)
	}
	if c.Holiday.MinYear > c.Holiday.MaxYear {
		return fmt.Errorf("holiday.min_year %d is after holiday.max_year %d", c.Holiday.MinYear, c.Holiday.MaxYear)
	}

	if _, err := c.Forecast.Location(); err != nil {
		return fmt.Errorf("invalid forecast.timezone: %w", err)
	}
	if c.Forecast.MaxDays < 1 {
		return fmt.Errorf("forecast.max_days must be positive, got %d", c.Forecast.MaxDays)
	}
	if c.Forecast.TrendWindow < 0 {
		return fmt.Errorf("forecast.trend_window must not be negative, got %d", c.Forecast.TrendWindow)
	}
	if c.Forecast.RequestTimeout <= 0 {
		return fmt.Errorf("forecast.request_timeout must be positive, got %s", c.Forecast.RequestTimeout)
	}
	if c.Server.WriteTimeout > 0 && c.Forecast.RequestTimeout >= c.Server.WriteTimeout {
		return fmt.Errorf("forecast.request_timeout %s must be shorter than server.write_timeout %s",
			c.Forecast.RequestTimeout, c.Server.WriteTimeout)
	}

	return nil
}
