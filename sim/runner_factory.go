package sim

import (
	"fmt"

	"order-lifecycle-go/config"
	"order-lifecycle-go/gateway"
	"order-lifecycle-go/infrastructure/alert"
	"order-lifecycle-go/infrastructure/logger"
	"order-lifecycle-go/infrastructure/monitor"
	"order-lifecycle-go/internal/order_manager"
	"order-lifecycle-go/internal/store"
)

// firstBrokerID 模拟券商的第一个订单号
const firstBrokerID = 100500

// BuildRunner 基于应用配置组装 Runner（存储、模拟券商、限速、告警、订单管理器）。
// 返回的 store 由调用方关闭。
func BuildRunner(cfg config.AppConfig, rc RunnerConfig, log *logger.Logger, mon *monitor.Monitor) (*Runner, store.Store, error) {
	if log == nil {
		log = logger.NewNop()
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	broker := NewPaperBroker(firstBrokerID)
	gw := gateway.NewLimited(broker, cfg.Orders.GatewayRate, cfg.Orders.GatewayBurst)
	mgr := order_manager.NewManager(gw, st, log, mon)
	mgr.SetPolicy(cfg.Orders.Policy)
	mgr.SetAlerts(alert.NewManager([]alert.Channel{alert.NewLogChannel("log", log)}, cfg.Alert.Throttle))

	r := NewRunner(rc, mgr, broker, cfg.Orders.CommissionRate)
	r.Log = log.WithFields(map[string]interface{}{"component": "sim"})
	return r, st, nil
}

// ApplyConfig 应用热更新后的订单配置
func (r *Runner) ApplyConfig(cfg config.AppConfig) {
	r.Mgr.SetPolicy(cfg.Orders.Policy)
	r.SetCommissionRate(cfg.Orders.CommissionRate)
}
