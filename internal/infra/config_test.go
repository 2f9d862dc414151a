package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // config.yaml не найден — только дефолты и ENV

	cfg, err := LoadConfig("")

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Engine.CriticalWeightThreshold)
	assert.Equal(t, 48*time.Hour, cfg.Engine.RemediationDeadline)
	assert.Equal(t, 10.0, cfg.Engine.FallbackMaxValue)
	assert.Equal(t, []string{"file"}, cfg.Storage.Backends)
	assert.Equal(t, "mock", cfg.Maintenance.Transport)
	assert.Equal(t, uint(3), cfg.Maintenance.RetryAttempts)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	src := `
server:
  port: 9000
database:
  url: postgres://audit@localhost:5432/audit
storage:
  backends: [postgres, file]
engine:
  critical_weight_threshold: 3
  remediation_deadline: 72h
maintenance:
  transport: kafka
  kafka_brokers: [kafka-1:9092, kafka-2:9092]
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port, "env overrides file")
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"postgres", "file"}, cfg.Storage.Backends)
	assert.Equal(t, 3, cfg.Engine.CriticalWeightThreshold)
	assert.Equal(t, 72*time.Hour, cfg.Engine.RemediationDeadline)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Maintenance.KafkaBrokers)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"postgres without url", func(c *Config) { c.Storage.Backends = []string{"postgres"} }, "database.url"},
		{"redis without addr", func(c *Config) { c.Storage.Backends = []string{"redis"} }, "redis.addr"},
		{"unknown backend", func(c *Config) { c.Storage.Backends = []string{"s3"} }, "unknown backend"},
		{"unknown transport", func(c *Config) { c.Maintenance.Transport = "smtp" }, "unknown transport"},
		{"zero threshold", func(c *Config) { c.Engine.CriticalWeightThreshold = 0 }, "critical_weight_threshold"},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true }, "auth.enabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{
				Storage:     StorageConfig{Backends: []string{"file"}},
				Maintenance: MaintenanceConfig{Transport: "mock"},
				Engine:      EngineConfig{CriticalWeightThreshold: 4},
			}
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	_, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
	_, err = NewLogger(LoggerConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
	_, err = NewLogger(LoggerConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
