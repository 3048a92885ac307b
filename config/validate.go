package config

import (
	"math"

	"go.uber.org/zap/zapcore"

	"order-lifecycle-go/internal/store"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return ErrInvalid("log.level must be debug, info, warn or error")
	}
	if r := cfg.Orders.CommissionRate; r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return ErrInvalid("orders.commissionRate must be finite and >= 0")
	}
	if r := cfg.Orders.GatewayRate; r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return ErrInvalid("orders.gatewayRate must be finite and >= 0")
	}
	if cfg.Orders.GatewayBurst < 0 {
		return ErrInvalid("orders.gatewayBurst must be >= 0")
	}
	switch cfg.Store.Backend {
	case "", store.BackendMemory:
	case store.BackendRedis:
		if cfg.Store.Addr == "" {
			return ErrInvalid("store.addr is required for redis backend")
		}
		if cfg.Store.DB < 0 {
			return ErrInvalid("store.db must be >= 0")
		}
	default:
		return ErrInvalid("store.backend must be memory or redis")
	}
	if cfg.Store.TTL < 0 {
		return ErrInvalid("store.ttl must be >= 0")
	}
	if cfg.Metrics.Monitor.Namespace == "" {
		return ErrInvalid("metrics.namespace is required")
	}
	if cfg.Alert.Throttle < 0 {
		return ErrInvalid("alert.throttle must be >= 0")
	}
	return nil
}
