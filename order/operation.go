package order

import (
	"fmt"
	"time"
)

// Operation 订单完全成交后的结算结果。
//
// Value is the total notional (Σ quantity×price), not an average price.
// Commission is supplied by the caller at fill time and never derived.
type Operation struct {
	TsNanos    int64
	Quantity   uint64
	Value      float64
	Commission float64
}

// NewOperation reduces txs in insertion order. Summation is left to right,
// so the same list always produces the same float bits; reordering the list
// can only change Value in the last ulp when prices are not exactly
// representable. An empty list yields a zero quantity and value.
func NewOperation(tsNanos int64, txs []Transaction, commission float64) Operation {
	op := Operation{TsNanos: tsNanos, Commission: commission}
	for _, t := range txs {
		op.Quantity += uint64(t.Quantity)
		op.Value += float64(t.Quantity) * t.Price
	}
	return op
}

// Time returns the settlement timestamp in UTC.
func (o Operation) Time() time.Time {
	return time.Unix(0, o.TsNanos).UTC()
}

// AveragePrice returns Value/Quantity, or 0 for an empty operation.
func (o Operation) AveragePrice() float64 {
	if o.Quantity == 0 {
		return 0
	}
	return o.Value / float64(o.Quantity)
}

func (o Operation) String() string {
	return fmt.Sprintf("Operation=%s qty=%d value=%s commission=%s",
		o.Time().Format(time.RFC3339Nano), o.Quantity, formatFloat(o.Value), formatFloat(o.Commission))
}
