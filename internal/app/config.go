package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Store drivers accepted by AUTHFLOW_STORE_DRIVER.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

type Config struct {
	APIBaseURL  string        `env:"AUTHFLOW_API_BASE_URL" env-default:"http://localhost:7000/api/v1" env-description:"authentication API root"`
	HTTPTimeout time.Duration `env:"AUTHFLOW_HTTP_TIMEOUT" env-default:"10s" env-description:"per-request timeout"`

	StoreDriver   string `env:"AUTHFLOW_STORE_DRIVER" env-default:"sqlite" env-description:"persisted state driver (sqlite, redis, memory)"`
	SQLitePath    string `env:"AUTHFLOW_SQLITE_PATH" env-default:"authflow.db" env-description:"sqlite database file"`
	RedisAddr     string `env:"AUTHFLOW_REDIS_ADDR" env-default:"localhost:6379" env-description:"redis address"`
	RedisPassword string `env:"AUTHFLOW_REDIS_PASSWORD" env-description:"redis password"`
	RedisDB       int    `env:"AUTHFLOW_REDIS_DB" env-default:"0" env-description:"redis database number"`
	StorageKey    string `env:"AUTHFLOW_STORAGE_KEY" env-default:"authflow:session" env-description:"key of the persisted session record"`
	StateSecret   string `env:"AUTHFLOW_STATE_SECRET" env-description:"seals the persisted session when set"`

	HydrationTimeout  time.Duration `env:"AUTHFLOW_HYDRATION_TIMEOUT" env-default:"3s" env-description:"how long route checks wait for the stored session"`
	OTPTTL            time.Duration `env:"AUTHFLOW_OTP_TTL" env-default:"300s" env-description:"one-time code lifetime"`
	KeepAliveInterval time.Duration `env:"AUTHFLOW_KEEPALIVE_INTERVAL" env-default:"5m" env-description:"background profile refresh period"`

	Env       string `env:"ENV" env-default:"dev"`
	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"text"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.APIBaseURL == "" {
		errs = append(errs, errors.New("AUTHFLOW_API_BASE_URL is required"))
	}
	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("AUTHFLOW_SQLITE_PATH is required for the sqlite driver"))
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("AUTHFLOW_REDIS_ADDR is required for the redis driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}
	if c.OTPTTL <= 0 {
		errs = append(errs, errors.New("AUTHFLOW_OTP_TTL must be positive"))
	}

	return errors.Join(errs...)
}
