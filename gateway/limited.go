package gateway

import (
	"context"

	"golang.org/x/time/rate"

	"order-lifecycle-go/internal/order_manager"
)

// RateLimiter 控制发往券商的请求速率，*rate.Limiter 满足该接口。
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// Limited 在下单和撤单前先经过限速器。
type Limited struct {
	Gateway order_manager.Gateway
	Limiter RateLimiter
}

// NewLimited 每秒最多 perSecond 次请求，允许 burst 次突发。perSecond<=0 时不限速，直接返回 gw。
func NewLimited(gw order_manager.Gateway, perSecond float64, burst int) order_manager.Gateway {
	if perSecond <= 0 {
		return gw
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limited{Gateway: gw, Limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limited) Place(ctx context.Context, req order_manager.Request) (string, error) {
	if err := l.Limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.Gateway.Place(ctx, req)
}

func (l *Limited) Cancel(ctx context.Context, brokerID string) error {
	if err := l.Limiter.Wait(ctx); err != nil {
		return err
	}
	return l.Gateway.Cancel(ctx, brokerID)
}
