package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:7000/api/v1", cfg.APIBaseURL)
	require.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	require.Equal(t, DriverSQLite, cfg.StoreDriver)
	require.Equal(t, "authflow:session", cfg.StorageKey)
	require.Equal(t, 3*time.Second, cfg.HydrationTimeout)
	require.Equal(t, 300*time.Second, cfg.OTPTTL)
	require.Empty(t, cfg.StateSecret)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("AUTHFLOW_API_BASE_URL", "https://auth.example.com/api/v1")
	t.Setenv("AUTHFLOW_STORE_DRIVER", " Redis ")
	t.Setenv("AUTHFLOW_REDIS_ADDR", "cache:6379")
	t.Setenv("AUTHFLOW_REDIS_DB", "2")
	t.Setenv("AUTHFLOW_OTP_TTL", "90s")
	t.Setenv("AUTHFLOW_STATE_SECRET", "hunter2")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "https://auth.example.com/api/v1", cfg.APIBaseURL)
	require.Equal(t, DriverRedis, cfg.StoreDriver)
	require.Equal(t, "cache:6379", cfg.RedisAddr)
	require.Equal(t, 2, cfg.RedisDB)
	require.Equal(t, 90*time.Second, cfg.OTPTTL)
	require.Equal(t, "hunter2", cfg.StateSecret)
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("AUTHFLOW_STORE_DRIVER", "etcd")

	_, err := LoadConfig()
	require.ErrorContains(t, err, `unknown store driver "etcd"`)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		APIBaseURL:  "http://localhost:7000/api/v1",
		StoreDriver: DriverMemory,
		OTPTTL:      time.Minute,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing base url", func(c *Config) { c.APIBaseURL = "" }, "AUTHFLOW_API_BASE_URL"},
		{"sqlite without path", func(c *Config) { c.StoreDriver, c.SQLitePath = DriverSQLite, "" }, "AUTHFLOW_SQLITE_PATH"},
		{"redis without addr", func(c *Config) { c.StoreDriver, c.RedisAddr = DriverRedis, "" }, "AUTHFLOW_REDIS_ADDR"},
		{"zero otp ttl", func(c *Config) { c.OTPTTL = 0 }, "AUTHFLOW_OTP_TTL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
