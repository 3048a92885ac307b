package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"order-lifecycle-go/infrastructure/logger"
	"order-lifecycle-go/internal/order_manager"
	"order-lifecycle-go/order"
)

// RunnerConfig 模拟参数
type RunnerConfig struct {
	Orders      int     // 模拟订单数
	MidPrice    float64 // 基准价格
	Volatility  float64 // 价格高斯扰动的标准差
	MaxLots     uint32  // 单笔订单最大手数
	MaxParts    int     // 单笔订单最多拆成几笔成交
	MarketRatio float64 // 市价单比例
	CancelRatio float64 // 限价单部分成交后撤单的比例
	RejectRatio float64 // 券商拒单比例
	Seed        int64
}

// DefaultRunnerConfig 返回默认模拟参数
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Orders:      20,
		MidPrice:    4500,
		Volatility:  5,
		MaxLots:     10,
		MaxParts:    3,
		MarketRatio: 0.3,
		CancelRatio: 0.2,
		RejectRatio: 0.05,
		Seed:        1,
	}
}

// Summary 模拟结果汇总
type Summary struct {
	Submitted  int
	Posted     int
	Rejected   int
	Filled     int
	Canceled   int
	Lots       uint64
	Value      float64
	Commission float64
}

func (s Summary) String() string {
	return fmt.Sprintf("submitted=%d posted=%d rejected=%d filled=%d canceled=%d lots=%d value=%.2f commission=%.4f",
		s.Submitted, s.Posted, s.Rejected, s.Filled, s.Canceled, s.Lots, s.Value, s.Commission)
}

// Runner 随机生成订单，经 Manager 走完 提交 -> 成交回报 -> 结算/撤单 的流程。
type Runner struct {
	Mgr    *order_manager.Manager
	Broker *PaperBroker
	Log    *logger.Logger
	// Clock 提供结算时间戳
	Clock func() time.Time

	cfg RunnerConfig
	rng *rand.Rand

	mu             sync.RWMutex
	commissionRate float64
}

// NewRunner 创建 Runner；broker 的拒单逻辑按 cfg.RejectRatio 设置。
func NewRunner(cfg RunnerConfig, mgr *order_manager.Manager, broker *PaperBroker, commissionRate float64) *Runner {
	if cfg.MaxLots == 0 {
		cfg.MaxLots = 1
	}
	if cfg.MaxParts <= 0 {
		cfg.MaxParts = 1
	}
	r := &Runner{
		Mgr:            mgr,
		Broker:         broker,
		Log:            logger.NewNop(),
		Clock:          time.Now,
		cfg:            cfg,
		rng:            rand.New(rand.NewSource(cfg.Seed)),
		commissionRate: commissionRate,
	}
	if cfg.RejectRatio > 0 && broker != nil {
		broker.Reject = func(order_manager.Request) error {
			if r.rng.Float64() < cfg.RejectRatio {
				return errors.New("not enough money")
			}
			return nil
		}
	}
	return r
}

// SetCommissionRate 热更新手续费率
func (r *Runner) SetCommissionRate(rate float64) {
	r.mu.Lock()
	r.commissionRate = rate
	r.mu.Unlock()
}

func (r *Runner) CommissionRate() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commissionRate
}

// Run 连续模拟 cfg.Orders 笔订单。Runner 不能被多个 goroutine 同时运行。
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if r.Mgr == nil || r.Broker == nil {
		return Summary{}, errors.New("runner not initialized")
	}
	var sum Summary
	for i := 0; i < r.cfg.Orders; i++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := r.Step(ctx, &sum); err != nil {
			return sum, fmt.Errorf("order %d: %w", i, err)
		}
	}
	r.Log.Info("simulation_done", zap.Stringer("summary", sum))
	return sum, nil
}

// Step 模拟一笔订单并把结果计入 sum。
func (r *Runner) Step(ctx context.Context, sum *Summary) error {
	market := r.rng.Float64() < r.cfg.MarketRatio
	dir := order.Buy
	if r.rng.Intn(2) == 1 {
		dir = order.Sell
	}
	lots := 1 + uint32(r.rng.Int63n(int64(r.cfg.MaxLots)))
	price := roundCents(r.cfg.MidPrice + r.rng.NormFloat64()*r.cfg.Volatility)

	var (
		key   string
		state order.State
		err   error
	)
	if market {
		key, state, err = r.Mgr.SubmitMarket(ctx, dir, lots)
	} else {
		key, state, err = r.Mgr.SubmitLimit(ctx, dir, lots, price)
	}
	sum.Submitted++
	if err != nil {
		return err
	}
	if state == order.StateRejected {
		sum.Rejected++
		return nil
	}
	sum.Posted++

	brokerID, err := r.brokerID(key, market)
	if err != nil {
		return err
	}
	parts := r.split(lots)
	cancel := !market && r.rng.Float64() < r.cfg.CancelRatio
	if cancel {
		// 撤单前只成交一部分
		parts = parts[:len(parts)-1]
	}

	executed := make([]order.Transaction, 0, len(parts))
	for _, qty := range parts {
		px := price
		if market {
			// 市价单按中间价附近成交
			px = roundCents(price + r.rng.NormFloat64()*r.cfg.Volatility/10)
		}
		t, err := r.Broker.Execute(brokerID, qty, px)
		if err != nil {
			return err
		}
		if err := r.Mgr.Execute(ctx, key, t); err != nil {
			return err
		}
		executed = append(executed, t)
	}

	if cancel {
		if err := r.Mgr.Cancel(ctx, key); err != nil {
			return err
		}
		sum.Canceled++
		return nil
	}

	notional := order.NewOperation(0, executed, 0).Value
	op, err := r.Mgr.Fill(ctx, key, r.Clock().UnixNano(), notional*r.CommissionRate())
	if err != nil {
		return err
	}
	sum.Filled++
	sum.Lots += op.Quantity
	sum.Value += op.Value
	sum.Commission += op.Commission
	return nil
}

func (r *Runner) brokerID(key string, market bool) (string, error) {
	if market {
		o, err := r.Mgr.Market(key)
		if err != nil {
			return "", err
		}
		if p, ok := o.(*order.Posted[order.Market]); ok {
			return p.BrokerID, nil
		}
		return "", fmt.Errorf("%w: %s", order_manager.ErrNotPosted, key)
	}
	o, err := r.Mgr.Limit(key)
	if err != nil {
		return "", err
	}
	if p, ok := o.(*order.Posted[order.Limit]); ok {
		return p.BrokerID, nil
	}
	return "", fmt.Errorf("%w: %s", order_manager.ErrNotPosted, key)
}

// split 把 lots 拆成 1..MaxParts 份，余数计入最后一份。
func (r *Runner) split(lots uint32) []uint32 {
	n := uint32(1 + r.rng.Intn(r.cfg.MaxParts))
	if n > lots {
		n = lots
	}
	parts := make([]uint32, n)
	for i := range parts {
		parts[i] = lots / n
	}
	parts[n-1] += lots % n
	return parts
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
