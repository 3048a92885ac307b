package order_manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"order-lifecycle-go/infrastructure/alert"
	"order-lifecycle-go/infrastructure/logger"
	"order-lifecycle-go/infrastructure/monitor"
	"order-lifecycle-go/internal/store"
	"order-lifecycle-go/order"
)

var (
	ErrUnknownOrder  = errors.New("unknown order")
	ErrNotPosted     = errors.New("order is not posted")
	ErrNotCancelable = errors.New("order kind cannot be canceled")
	ErrNotFinal      = errors.New("order is not in a final state")

	// ErrPersist 存储写入失败。Execute、Fill 失败时内存不变，可以重试
	ErrPersist = errors.New("order store failed")
)

// Request 发往券商的下单请求
type Request struct {
	Key       string // 本地订单键
	Kind      order.Kind
	Direction order.Direction
	Lots      uint32
	Price     float64 // 仅限价单有效
}

// Gateway 券商下单/撤单抽象。Place 返回券商订单号。
type Gateway interface {
	Place(ctx context.Context, req Request) (string, error)
	Cancel(ctx context.Context, brokerID string) error
}

// Manager 维护本地订单并通过 Gateway 下发，每次状态变化都写入 Store。
//
// Orders are held as typed lifecycle values; each tracked order has its own
// mutex so calls for different orders do not wait on each other.
type Manager struct {
	gw  Gateway
	st  store.Store
	log *logger.Logger
	mon *monitor.Monitor

	mu     sync.RWMutex
	orders map[string]*entry
	policy order.Policy
	alerts *alert.Manager
}

type entry struct {
	mu       sync.Mutex
	kind     order.Kind
	limit    order.LimitOrder
	market   order.MarketOrder
	archived bool
}

// NewManager 创建订单管理器。log、mon 为空时使用空实现。
func NewManager(gw Gateway, st store.Store, log *logger.Logger, mon *monitor.Monitor) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	if mon == nil {
		mon = monitor.New(monitor.DefaultConfig())
	}
	return &Manager{
		gw:     gw,
		st:     st,
		log:    log,
		mon:    mon,
		orders: make(map[string]*entry),
	}
}

// SetPolicy 替换校验策略（配置热更新时调用），只影响之后的提交和成交回报。
func (m *Manager) SetPolicy(p order.Policy) {
	m.mu.Lock()
	m.policy = p
	m.mu.Unlock()
	m.log.Info("order_policy_updated",
		zap.Bool("requirePositiveLots", p.RequirePositiveLots),
		zap.Bool("requirePositivePrice", p.RequirePositivePrice),
		zap.Bool("rejectOverfill", p.RejectOverfill))
}

func (m *Manager) Policy() order.Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy
}

// SetAlerts 设置告警管理器，为空时不发送告警。
func (m *Manager) SetAlerts(a *alert.Manager) {
	m.mu.Lock()
	m.alerts = a
	m.mu.Unlock()
}

func (m *Manager) notify(level alert.Level, msg string, fields map[string]interface{}) {
	m.mu.RLock()
	a := m.alerts
	m.mu.RUnlock()
	if a == nil {
		return
	}
	if err := a.SendAlert(alert.Alert{Level: level, Message: msg, Fields: fields}); err != nil {
		m.log.LogError(err, map[string]interface{}{"component": "alert", "alert": msg})
	}
}

// SubmitLimit 提交限价单，返回本地订单键与提交后的状态（POSTED 或 REJECTED）。
//
// If the intent cannot be stored the order is not tracked and the error wraps
// ErrPersist. A store failure after the broker answered leaves the order
// tracked in its new state.
func (m *Manager) SubmitLimit(ctx context.Context, d order.Direction, lots uint32, price float64) (string, order.State, error) {
	return submit(ctx, m, order.NewLimit(d, lots, price))
}

// SubmitMarket 提交市价单。
func (m *Manager) SubmitMarket(ctx context.Context, d order.Direction, lots uint32) (string, order.State, error) {
	return submit(ctx, m, order.NewMarket(d, lots))
}

func submit[P order.Pricing](ctx context.Context, m *Manager, in order.New[P]) (string, order.State, error) {
	if !in.Direction.Valid() {
		return "", "", fmt.Errorf("%w: direction %d", order.ErrMalformed, uint8(in.Direction))
	}
	key := uuid.NewString()
	kind := in.Price.Kind()
	e := &entry{kind: kind}
	e.mu.Lock()
	defer e.mu.Unlock()

	m.mu.Lock()
	m.orders[key] = e
	pol := m.policy
	m.mu.Unlock()

	m.mon.RecordSubmitted(string(kind))
	slot := slotOf[P](e)
	*slot = in
	// 先落盘意图，再联系券商。意图没写进去就不跟踪这笔订单
	if err := persist(ctx, m, key, *slot); err != nil {
		m.mu.Lock()
		delete(m.orders, key)
		m.mu.Unlock()
		e.archived = true
		return "", "", err
	}

	if err := order.ValidateNew(pol, in); err != nil {
		*slot = in.Reject(err.Error())
	} else {
		price, _ := in.LimitPrice()
		start := time.Now()
		brokerID, err := m.gw.Place(ctx, Request{Key: key, Kind: kind, Direction: in.Direction, Lots: in.Lots, Price: price})
		m.mon.RecordGatewayLatency("place", time.Since(start).Seconds())
		if err != nil {
			*slot = in.Reject(err.Error())
			m.notify(alert.LevelWarning, "order_rejected_by_broker", map[string]interface{}{
				"order_key": key,
				"kind":      string(kind),
				"reason":    err.Error(),
			})
		} else {
			*slot = in.Post(brokerID)
		}
	}

	cur := *slot
	switch v := cur.(type) {
	case *order.Posted[P]:
		m.mon.RecordPosted(string(kind))
		m.log.LogOrder("posted", key, cur, map[string]interface{}{"broker_id": v.BrokerID})
	case order.Rejected[P]:
		m.mon.RecordRejected(string(kind))
		m.log.LogOrder("rejected", key, cur, map[string]interface{}{"reason": v.Meta})
	}
	return key, cur.State(), persist(ctx, m, key, cur)
}

// Execute 把一笔成交回报追加到已提交订单。
func (m *Manager) Execute(ctx context.Context, key string, t order.Transaction) error {
	e, err := m.lock(key)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()
	if e.kind == order.KindLimit {
		return execute[order.Limit](ctx, m, key, e, t)
	}
	return execute[order.Market](ctx, m, key, e, t)
}

func execute[P order.Pricing](ctx context.Context, m *Manager, key string, e *entry, t order.Transaction) error {
	p, err := postedOf[P](key, e)
	if err != nil {
		return err
	}
	if err := order.ValidateTransaction(m.Policy(), p, t); err != nil {
		m.log.LogError(err, map[string]interface{}{"order_key": key, "transaction": t.String()})
		return err
	}
	next := staged(p)
	next.AddTransaction(t)
	if err := persist[P](ctx, m, key, next); err != nil {
		return err
	}
	*slotOf[P](e) = next
	m.mon.RecordTransaction(string(e.kind))
	m.log.LogExecution(key, t.Quantity, t.Price, map[string]interface{}{"filled": next.FilledQuantity()})
	return nil
}

// Fill 结算订单：汇总全部成交得到 Operation。tsNanos 与手续费由调用方给出。
func (m *Manager) Fill(ctx context.Context, key string, tsNanos int64, commission float64) (order.Operation, error) {
	e, err := m.lock(key)
	if err != nil {
		return order.Operation{}, err
	}
	defer e.mu.Unlock()
	if e.kind == order.KindLimit {
		return fill[order.Limit](ctx, m, key, e, tsNanos, commission)
	}
	return fill[order.Market](ctx, m, key, e, tsNanos, commission)
}

func fill[P order.Pricing](ctx context.Context, m *Manager, key string, e *entry, tsNanos int64, commission float64) (order.Operation, error) {
	p, err := postedOf[P](key, e)
	if err != nil {
		return order.Operation{}, err
	}
	filled := staged(p).Fill(tsNanos, commission)
	if err := persist[P](ctx, m, key, filled); err != nil {
		return order.Operation{}, err
	}
	*slotOf[P](e) = filled

	op := filled.Operation
	m.mon.RecordFilled(string(e.kind), op.Quantity, op.Value, op.Commission)
	m.log.LogOrder("filled", key, filled, map[string]interface{}{
		"quantity":   op.Quantity,
		"value":      op.Value,
		"commission": op.Commission,
	})
	return op, nil
}

// Cancel 撤销限价单。先通知券商，券商拒绝撤单时订单保持 POSTED。
func (m *Manager) Cancel(ctx context.Context, key string) error {
	e, err := m.lock(key)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()
	if e.kind != order.KindLimit {
		return fmt.Errorf("%w: %s is a %s order", ErrNotCancelable, key, e.kind)
	}
	p, err := postedOf[order.Limit](key, e)
	if err != nil {
		return err
	}

	start := time.Now()
	err = m.gw.Cancel(ctx, p.BrokerID)
	m.mon.RecordGatewayLatency("cancel", time.Since(start).Seconds())
	if err != nil {
		m.log.LogError(err, map[string]interface{}{"order_key": key, "broker_id": p.BrokerID})
		m.notify(alert.LevelWarning, "cancel_failed", map[string]interface{}{"order_key": key, "broker_id": p.BrokerID})
		return fmt.Errorf("cancel %s: %w", key, err)
	}

	// 券商已撤单，内存以券商为准；落盘失败只上报
	canceled := order.Cancel(p)
	e.limit = canceled
	m.mon.RecordCanceled(string(e.kind))
	m.log.LogOrder("canceled", key, canceled, map[string]interface{}{"transactions": len(canceled.Transactions)})
	return persist[order.Limit](ctx, m, key, canceled)
}

// Archive 删除已进入终态的订单（内存与存储）。
func (m *Manager) Archive(ctx context.Context, key string) error {
	e, err := m.lock(key)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()
	state := e.state()
	if !order.NewStateMachine(e.kind).IsFinalState(state) {
		return fmt.Errorf("%w: %s is %s", ErrNotFinal, key, state)
	}
	if err := m.st.Delete(ctx, key); err != nil && !errors.Is(err, store.ErrNotFound) {
		m.mon.RecordStoreError("delete")
		return fmt.Errorf("archive %s: %w", key, err)
	}
	m.mu.Lock()
	delete(m.orders, key)
	m.mu.Unlock()
	e.archived = true
	m.log.LogOrder("archived", key, nil, map[string]interface{}{"state": string(state)})
	return nil
}

// Limit 返回限价单的副本。
func (m *Manager) Limit(key string) (order.LimitOrder, error) {
	return snapshot[order.Limit](m, key)
}

// Market 返回市价单的副本。
func (m *Manager) Market(key string) (order.MarketOrder, error) {
	return snapshot[order.Market](m, key)
}

func snapshot[P order.Pricing](m *Manager, key string) (order.Order[P], error) {
	e, err := m.lock(key)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	cur := *slotOf[P](e)
	if cur == nil {
		var zero P
		return nil, fmt.Errorf("%w: %s is a %s order, not %s", order.ErrKindMismatch, key, e.kind, zero.Kind())
	}
	// 经过编码复制一份，调用方修改不会影响管理器内的状态
	data, err := order.Marshal(cur)
	if err != nil {
		return nil, err
	}
	return order.Unmarshal[P](data)
}

// State 返回订单当前状态与类型。
func (m *Manager) State(key string) (order.Kind, order.State, error) {
	e, err := m.lock(key)
	if err != nil {
		return "", "", err
	}
	defer e.mu.Unlock()
	return e.kind, e.state(), nil
}

// Keys 返回所有被跟踪订单的键（字典序）。
func (m *Manager) Keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.orders))
	for k := range m.orders {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Recover 从 Store 重新载入订单，返回载入的数量。
//
// An order that is already tracked is replaced only when the stored record
// is a legal forward transition from the tracked state; records in the same
// state as memory are left alone. Invalid records are skipped and reported in
// the returned error.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	keys, err := m.st.Keys(ctx)
	if err != nil {
		m.mon.RecordStoreError("keys")
		return 0, fmt.Errorf("recover: %w", err)
	}
	var errs []error
	loaded := 0
	for _, key := range keys {
		ok, err := m.recoverOne(ctx, key)
		if err != nil {
			m.log.LogError(err, map[string]interface{}{"order_key": key, "component": "recover"})
			errs = append(errs, err)
			continue
		}
		if ok {
			loaded++
		}
	}
	m.refreshOpen()
	m.log.Info("orders_recovered", zap.Int("loaded", loaded), zap.Int("skipped", len(errs)))
	if len(errs) > 0 {
		m.notify(alert.LevelError, "recover_skipped_orders", map[string]interface{}{"skipped": len(errs)})
	}
	return loaded, errors.Join(errs...)
}

func (m *Manager) recoverOne(ctx context.Context, key string) (bool, error) {
	data, err := m.st.Load(ctx, key)
	if err != nil {
		m.mon.RecordStoreError("load")
		return false, err
	}
	kind, state, err := order.Peek(data)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}

	m.mu.Lock()
	e, tracked := m.orders[key]
	if !tracked {
		// 新 entry 在放入 map 之前加锁，其他调用看不到空状态
		e = &entry{kind: kind}
		e.mu.Lock()
		m.orders[key] = e
	}
	m.mu.Unlock()
	if tracked {
		e.mu.Lock()
	}
	defer e.mu.Unlock()

	if tracked {
		if e.kind != kind {
			return false, fmt.Errorf("%s: %w: tracked %s, stored %s", key, order.ErrKindMismatch, e.kind, kind)
		}
		cur := e.state()
		if cur == state {
			return false, nil
		}
		if err := order.NewStateMachine(kind).ValidateTransition(cur, state); err != nil {
			return false, fmt.Errorf("%s: %w", key, err)
		}
	}

	if kind == order.KindLimit {
		err = restore[order.Limit](e, data)
	} else {
		err = restore[order.Market](e, data)
	}
	if err != nil {
		if !tracked {
			m.mu.Lock()
			delete(m.orders, key)
			m.mu.Unlock()
			e.archived = true
		}
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return true, nil
}

func restore[P order.Pricing](e *entry, data []byte) error {
	o, err := order.Unmarshal[P](data)
	if err != nil {
		return err
	}
	*slotOf[P](e) = o
	return nil
}

// refreshOpen 重新统计处于 POSTED 的订单数
func (m *Manager) refreshOpen() {
	open := map[order.Kind]int{order.KindLimit: 0, order.KindMarket: 0}
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.orders))
	for _, e := range m.orders {
		entries = append(entries, e)
	}
	m.mu.RUnlock()
	for _, e := range entries {
		e.mu.Lock()
		if e.state() == order.StatePosted {
			open[e.kind]++
		}
		e.mu.Unlock()
	}
	for kind, n := range open {
		m.mon.SetOpen(string(kind), n)
	}
}

// lock 查找订单并加锁，调用方负责解锁。
func (m *Manager) lock(key string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.orders[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, key)
	}
	e.mu.Lock()
	if e.archived {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, key)
	}
	return e, nil
}

func (e *entry) state() order.State {
	if e.kind == order.KindLimit && e.limit != nil {
		return e.limit.State()
	}
	if e.kind == order.KindMarket && e.market != nil {
		return e.market.State()
	}
	return ""
}

// slotOf 返回 entry 中与 P 对应的字段
func slotOf[P order.Pricing](e *entry) *order.Order[P] {
	if s, ok := any(&e.limit).(*order.Order[P]); ok {
		return s
	}
	return any(&e.market).(*order.Order[P])
}

func postedOf[P order.Pricing](key string, e *entry) (*order.Posted[P], error) {
	cur := *slotOf[P](e)
	p, ok := cur.(*order.Posted[P])
	if !ok {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPosted, key, e.state())
	}
	return p, nil
}

func persist[P order.Pricing](ctx context.Context, m *Manager, key string, o order.Order[P]) error {
	data, err := order.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := m.st.Save(ctx, key, data); err != nil {
		m.mon.RecordStoreError("save")
		m.log.LogError(err, map[string]interface{}{"order_key": key, "state": string(o.State())})
		m.notify(alert.LevelError, "store_save_failed", map[string]interface{}{"order_key": key})
		return fmt.Errorf("%w: %s: %w", ErrPersist, key, err)
	}
	return nil
}

// staged 复制一份已提交订单。改动先落盘，成功后才替换内存中的订单
func staged[P order.Pricing](p *order.Posted[P]) *order.Posted[P] {
	c := *p
	c.Transactions = slices.Clone(p.Transactions)
	return &c
}
