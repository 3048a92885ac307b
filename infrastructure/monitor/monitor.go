package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 订单指标（按 kind=limit|market 区分）
	ordersSubmitted *prometheus.CounterVec
	ordersPosted    *prometheus.CounterVec
	ordersFilled    *prometheus.CounterVec
	ordersRejected  *prometheus.CounterVec
	ordersCanceled  *prometheus.CounterVec
	openOrders      *prometheus.GaugeVec
	gatewayLatency  *prometheus.HistogramVec

	// 成交指标
	transactions *prometheus.CounterVec
	filledLots   *prometheus.CounterVec
	notional     *prometheus.CounterVec
	commission   *prometheus.CounterVec

	// 系统指标
	storeErrors   *prometheus.CounterVec
	configReloads prometheus.Counter
}

// Config 监控配置
type Config struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "broker",
		Subsystem: "orders",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()

	// 创建factory
	factory := promauto.With(reg)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &Monitor{
		registry: reg,

		ordersSubmitted: counter("submitted_total", "提交订单总数", "kind"),
		ordersPosted:    counter("posted_total", "券商已接受的订单总数", "kind"),
		ordersFilled:    counter("filled_total", "完全成交订单总数", "kind"),
		ordersRejected:  counter("rejected_total", "被拒绝订单总数", "kind"),
		ordersCanceled:  counter("canceled_total", "已撤销订单总数", "kind"),
		openOrders: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "open",
			Help:      "当前处于已提交状态的订单数",
		}, []string{"kind"}),
		gatewayLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "gateway_latency_seconds",
			Help:      "券商网关调用延迟分布（秒）",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"action"}),

		transactions: counter("transactions_total", "成交回报笔数", "kind"),
		filledLots:   counter("filled_lots_total", "已结算成交手数", "kind"),
		notional:     counter("notional_total", "已结算成交金额", "kind"),
		commission:   counter("commission_total", "已结算手续费", "kind"),

		storeErrors: counter("store_errors_total", "订单存储失败次数", "op"),
		configReloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "config_reloads_total",
			Help:      "配置热更新次数",
		}),
	}
}

// RecordSubmitted 记录一次提交
func (m *Monitor) RecordSubmitted(kind string) {
	m.ordersSubmitted.WithLabelValues(kind).Inc()
}

// RecordPosted 记录券商接受订单，挂单数加一
func (m *Monitor) RecordPosted(kind string) {
	m.ordersPosted.WithLabelValues(kind).Inc()
	m.openOrders.WithLabelValues(kind).Inc()
}

// RecordRejected 记录订单被拒绝
func (m *Monitor) RecordRejected(kind string) {
	m.ordersRejected.WithLabelValues(kind).Inc()
}

// RecordFilled 记录订单结算，挂单数减一
func (m *Monitor) RecordFilled(kind string, lots uint64, value, commission float64) {
	m.ordersFilled.WithLabelValues(kind).Inc()
	m.openOrders.WithLabelValues(kind).Dec()
	m.filledLots.WithLabelValues(kind).Add(float64(lots))
	m.notional.WithLabelValues(kind).Add(value)
	m.commission.WithLabelValues(kind).Add(commission)
}

// RecordCanceled 记录撤单，挂单数减一
func (m *Monitor) RecordCanceled(kind string) {
	m.ordersCanceled.WithLabelValues(kind).Inc()
	m.openOrders.WithLabelValues(kind).Dec()
}

// RecordTransaction 记录一笔成交回报
func (m *Monitor) RecordTransaction(kind string) {
	m.transactions.WithLabelValues(kind).Inc()
}

// SetOpen 直接设置挂单数（恢复后使用）
func (m *Monitor) SetOpen(kind string, n int) {
	m.openOrders.WithLabelValues(kind).Set(float64(n))
}

func (m *Monitor) RecordGatewayLatency(action string, seconds float64) {
	m.gatewayLatency.WithLabelValues(action).Observe(seconds)
}

func (m *Monitor) RecordStoreError(op string) {
	m.storeErrors.WithLabelValues(op).Inc()
}

func (m *Monitor) RecordConfigReload() {
	m.configReloads.Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
