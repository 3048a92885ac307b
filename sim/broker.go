package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"order-lifecycle-go/internal/order_manager"
	"order-lifecycle-go/order"
)

var (
	ErrUnknownBrokerOrder = errors.New("unknown broker order")
	ErrExceedsRemaining   = errors.New("execution exceeds remaining lots")
)

// PaperBroker 本地模拟券商：顺序分配订单号，记录未完成数量。
type PaperBroker struct {
	// Reject 不为空时在下单前调用，返回错误即拒单
	Reject func(order_manager.Request) error

	mu     sync.Mutex
	nextID int64
	open   map[string]uint32 // 券商订单号 -> 剩余手数
}

// NewPaperBroker 订单号从 firstID 开始（order_id=firstID）。
func NewPaperBroker(firstID int64) *PaperBroker {
	return &PaperBroker{nextID: firstID, open: make(map[string]uint32)}
}

func (b *PaperBroker) Place(ctx context.Context, req order_manager.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if b.Reject != nil {
		if err := b.Reject(req); err != nil {
			return "", err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := fmt.Sprintf("order_id=%d", b.nextID)
	b.nextID++
	b.open[id] = req.Lots
	return id, nil
}

func (b *PaperBroker) Cancel(ctx context.Context, brokerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.open[brokerID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBrokerOrder, brokerID)
	}
	delete(b.open, brokerID)
	return nil
}

// Execute 生成一笔成交。剩余数量为零后订单从未完成列表中移除。
func (b *PaperBroker) Execute(brokerID string, qty uint32, price float64) (order.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining, ok := b.open[brokerID]
	if !ok {
		return order.Transaction{}, fmt.Errorf("%w: %s", ErrUnknownBrokerOrder, brokerID)
	}
	if qty > remaining {
		return order.Transaction{}, fmt.Errorf("%w: %d > %d", ErrExceedsRemaining, qty, remaining)
	}
	if remaining -= qty; remaining == 0 {
		delete(b.open, brokerID)
	} else {
		b.open[brokerID] = remaining
	}
	return order.NewTransaction(qty, price), nil
}

// Remaining 返回未成交手数，订单不存在时 ok 为 false。
func (b *PaperBroker) Remaining(brokerID string) (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.open[brokerID]
	return n, ok
}

// Open 返回未完成订单数
func (b *PaperBroker) Open() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.open)
}
