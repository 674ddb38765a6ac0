package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

type Config struct {
	Telegram struct {
		BotToken    string  `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
		Admins      []int64 `yaml:"admins" env:"TELEGRAM_ADMINS" envSeparator:","`
		PollTimeout int     `yaml:"poll_timeout" env:"TELEGRAM_POLL_TIMEOUT"`
	} `yaml:"telegram"`
	Storage struct {
		Driver string `yaml:"driver" env:"STORAGE_DRIVER"`
	} `yaml:"storage"`
	Redis struct {
		Host     string `yaml:"host" env:"REDIS_HOST"`
		Port     string `yaml:"port" env:"REDIS_PORT"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
	} `yaml:"redis"`
	SQLite struct {
		Path string `yaml:"path" env:"SQLITE_PATH"`
	} `yaml:"sqlite"`
	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"log"`
	ConfirmTTL time.Duration `yaml:"confirm_ttl" env:"CONFIRM_TTL"`
	HealthAddr string        `yaml:"health_addr" env:"HEALTH_ADDR"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Telegram.PollTimeout = 60
	cfg.Storage.Driver = DriverRedis
	cfg.Redis.Host = "localhost"
	cfg.Redis.Port = "6379"
	cfg.SQLite.Path = "santa.db"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.ConfirmTTL = 5 * time.Minute
	return cfg
}

// Load builds the configuration from defaults, the optional YAML file at
// path, the optional dotenv file and finally the process environment.
// Later sources override earlier ones.
func Load(path, envFile string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if len(c.Telegram.Admins) == 0 {
		return fmt.Errorf("TELEGRAM_ADMINS must list at least one user id")
	}
	switch c.Storage.Driver {
	case DriverRedis, DriverSQLite:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.ConfirmTTL <= 0 {
		return fmt.Errorf("CONFIRM_TTL must be positive")
	}
	return nil
}

// Redacted is safe to print: the bot token is masked.
func (c Config) Redacted() Config {
	if n := len(c.Telegram.BotToken); n > 4 {
		c.Telegram.BotToken = strings.Repeat("*", n-4) + c.Telegram.BotToken[n-4:]
	} else if n > 0 {
		c.Telegram.BotToken = "****"
	}
	if c.Redis.Password != "" {
		c.Redis.Password = "****"
	}
	return c
}
