package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"order-lifecycle-go/infrastructure/logger"
	"order-lifecycle-go/infrastructure/monitor"
	"order-lifecycle-go/internal/store"
	"order-lifecycle-go/order"
)

const (
	// DefaultCommissionRate 默认手续费率（按成交金额计）
	DefaultCommissionRate = 0.0005
	// DefaultAlertThrottle 同一告警的最小间隔
	DefaultAlertThrottle = time.Minute
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env     string        `yaml:"env"`
	Log     logger.Config `yaml:"log"`
	Orders  OrdersConfig  `yaml:"orders"`
	Store   store.Config  `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
	Alert   AlertConfig   `yaml:"alert"`
}

// OrdersConfig 订单校验与结算参数。Policy 和 CommissionRate 可热更新。
type OrdersConfig struct {
	Policy         order.Policy `yaml:",inline"`
	CommissionRate float64      `yaml:"commissionRate"` // 手续费 = 费率 × 成交金额

	// 券商请求限速（次/秒），0 表示不限速。只在启动时生效。
	GatewayRate  float64 `yaml:"gatewayRate"`
	GatewayBurst int     `yaml:"gatewayBurst"`
}

// MetricsConfig Prometheus 指标。Addr 为空时不启动 HTTP 服务。
type MetricsConfig struct {
	Addr    string         `yaml:"addr"`
	Monitor monitor.Config `yaml:",inline"`
}

// AlertConfig 告警限流
type AlertConfig struct {
	Throttle time.Duration `yaml:"throttle"`
}

// Default 返回所有字段的默认值，Load 在其上覆盖 YAML 中出现的字段。
func Default() AppConfig {
	return AppConfig{
		Env:     "dev",
		Log:     logger.DefaultConfig(),
		Orders:  OrdersConfig{CommissionRate: DefaultCommissionRate},
		Store:   store.DefaultConfig(),
		Metrics: MetricsConfig{Monitor: monitor.DefaultConfig()},
		Alert:   AlertConfig{Throttle: DefaultAlertThrottle},
	}
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("ORDERS_REDIS_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := os.Getenv("ORDERS_REDIS_ADDR"); v != "" {
		cfg.Store.Addr = v
	}
	return cfg, Validate(cfg)
}
