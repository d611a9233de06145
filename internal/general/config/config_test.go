package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ride-dispatch/internal/general/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
database:
  host: "db.internal"
  port: 5433
  user: "dispatch"
  password: "secret"
  database: "ride_dispatch"

rabbitmq:
  host: "mq.internal"
  user: "dispatch"
  password: "secret"

http:
  port: 8080

jwt:
  secret_key: "test-secret"

tracking:
  min_update_interval: 5s
  expiry: 30m
  sweep_interval: 1m
  queue_size: 256
`)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)

	require.Equal(t, "db.internal", cfg.Database.Host)
	require.Equal(t, 5433, cfg.Database.Port)
	require.Equal(t, "ride_dispatch", cfg.Database.Name)
	require.Equal(t, "mq.internal", cfg.RabbitMQ.Host)
	require.Equal(t, 5672, cfg.RabbitMQ.Port) // defaulted
	require.Equal(t, 8080, cfg.HTTP.Port)
	require.Equal(t, "test-secret", cfg.JWT.SecretKey)
	require.Equal(t, 5*time.Second, cfg.Tracking.MinUpdateInterval)
	require.Equal(t, 30*time.Minute, cfg.Tracking.Expiry)
	require.Equal(t, time.Minute, cfg.Tracking.SweepInterval)
	require.Equal(t, 256, cfg.Tracking.QueueSize)
}

func TestTrackingDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  user: "dispatch"
  password: "secret"
  database: "ride_dispatch"

rabbitmq:
  user: "dispatch"
  password: "secret"
`)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)

	require.Equal(t, 3002, cfg.HTTP.Port)
	require.Equal(t, 10*time.Second, cfg.Tracking.MinUpdateInterval)
	require.Equal(t, time.Hour, cfg.Tracking.Expiry)
	require.Equal(t, 3*time.Minute, cfg.Tracking.SweepInterval)
	require.Equal(t, 1024, cfg.Tracking.QueueSize)
	require.NotEmpty(t, cfg.JWT.SecretKey) // random fallback
}

func TestEnvExpansionInScalars(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "from-env")
	path := writeConfig(t, `
database:
  user: "dispatch"
  password: "${TEST_DB_PASSWORD}"
  database: "ride_dispatch"

rabbitmq:
  user: "dispatch"
  password: "secret"
`)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Database.Password)
}

func TestMissingRequiredFields(t *testing.T) {
	path := writeConfig(t, `
database:
  user: "dispatch"
`)
	_, err := config.LoadFromFile(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "database.password is required")
}

func TestMissingFile(t *testing.T) {
	_, err := config.LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
