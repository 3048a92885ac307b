package order

import (
	"fmt"
	"math"
)

// Policy 可选的数据校验。零值不做任何校验，与状态机本身的行为一致。
//
// The state machine never consults a Policy; callers that accept input from
// outside (see order_manager) decide whether to apply it.
type Policy struct {
	RequirePositiveLots  bool `yaml:"requirePositiveLots"`
	RequirePositivePrice bool `yaml:"requirePositivePrice"`
	RejectOverfill       bool `yaml:"rejectOverfill"`
}

// Strict enables every check.
func Strict() Policy {
	return Policy{RequirePositiveLots: true, RequirePositivePrice: true, RejectOverfill: true}
}

// ValidateNew 检查新订单的手数与限价。
func ValidateNew[P Pricing](pol Policy, o New[P]) error {
	if pol.RequirePositiveLots && o.Lots == 0 {
		return fmt.Errorf("%w: lots=%d", ErrInvalidLots, o.Lots)
	}
	if v, ok := o.Price.price(); ok && pol.RequirePositivePrice && !positive(v) {
		return fmt.Errorf("%w: price=%s", ErrInvalidPrice, formatFloat(v))
	}
	return nil
}

// ValidateTransaction 检查成交回报，以及累计成交是否超过下单手数。
func ValidateTransaction[P Pricing](pol Policy, o *Posted[P], t Transaction) error {
	if pol.RequirePositiveLots && t.Quantity == 0 {
		return fmt.Errorf("%w: quantity=%d", ErrInvalidQuantity, t.Quantity)
	}
	if pol.RequirePositivePrice && !positive(t.Price) {
		return fmt.Errorf("%w: transaction price=%s", ErrInvalidPrice, formatFloat(t.Price))
	}
	if pol.RejectOverfill {
		if filled := o.FilledQuantity() + uint64(t.Quantity); filled > uint64(o.Lots) {
			return fmt.Errorf("%w: %d > %d", ErrOverfill, filled, o.Lots)
		}
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
