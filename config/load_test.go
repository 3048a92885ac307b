package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-lifecycle-go/internal/store"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, `
env: prod
log:
  level: debug
  outputs: [stderr]
  format: console
orders:
  requirePositiveLots: true
  rejectOverfill: true
  commissionRate: 0.001
  gatewayRate: 50
  gatewayBurst: 5
store:
  backend: redis
  addr: 127.0.0.1:6379
  db: 2
  prefix: "orders:"
  ttl: 72h
metrics:
  addr: ":9100"
  namespace: paper
alert:
  throttle: 30s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"stderr"}, cfg.Log.Outputs)
	assert.True(t, cfg.Orders.Policy.RequirePositiveLots)
	assert.False(t, cfg.Orders.Policy.RequirePositivePrice)
	assert.True(t, cfg.Orders.Policy.RejectOverfill)
	assert.Equal(t, 0.001, cfg.Orders.CommissionRate)
	assert.Equal(t, 50.0, cfg.Orders.GatewayRate)
	assert.Equal(t, 5, cfg.Orders.GatewayBurst)
	assert.Equal(t, store.Config{
		Backend: store.BackendRedis,
		Addr:    "127.0.0.1:6379",
		DB:      2,
		Prefix:  "orders:",
		TTL:     72 * time.Hour,
	}, cfg.Store)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.Equal(t, "paper", cfg.Metrics.Monitor.Namespace)
	// 未出现的字段保持默认值
	assert.Equal(t, "orders", cfg.Metrics.Monitor.Subsystem)
	assert.Equal(t, 30*time.Second, cfg.Alert.Throttle)
}

func TestLoadDefaults(t *testing.T) {
	path := writeTempConfig(t, "env: dev\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, DefaultCommissionRate, cfg.Orders.CommissionRate)
	assert.Equal(t, store.BackendMemory, cfg.Store.Backend)
	assert.Equal(t, DefaultAlertThrottle, cfg.Alert.Throttle)
	assert.Zero(t, cfg.Orders.GatewayRate)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
env: prod
store:
  backend: redis
  addr: redis:6379
  password: from-file
`)
	t.Setenv("ORDERS_REDIS_PASSWORD", "env-secret")
	t.Setenv("ORDERS_REDIS_ADDR", "")
	cfg, err := LoadWithEnvOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Store.Password)
	assert.Equal(t, "redis:6379", cfg.Store.Addr)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = Load(writeTempConfig(t, "env: [unterminated"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"empty env", func(c *AppConfig) { c.Env = "" }},
		{"bad log level", func(c *AppConfig) { c.Log.Level = "loud" }},
		{"negative commission", func(c *AppConfig) { c.Orders.CommissionRate = -0.1 }},
		{"negative gateway rate", func(c *AppConfig) { c.Orders.GatewayRate = -1 }},
		{"negative gateway burst", func(c *AppConfig) { c.Orders.GatewayBurst = -1 }},
		{"unknown backend", func(c *AppConfig) { c.Store.Backend = "etcd" }},
		{"redis without addr", func(c *AppConfig) { c.Store.Backend = store.BackendRedis }},
		{"negative ttl", func(c *AppConfig) { c.Store.TTL = -time.Second }},
		{"empty namespace", func(c *AppConfig) { c.Metrics.Monitor.Namespace = "" }},
		{"negative alert throttle", func(c *AppConfig) { c.Alert.Throttle = -time.Second }},
	}
	require.NoError(t, Validate(Default()))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			var invalid ErrInvalid
			assert.ErrorAs(t, err, &invalid)
		})
	}
}
