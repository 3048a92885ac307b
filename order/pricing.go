package order

// Kind distinguishes limit and market orders.
type Kind string

const (
	KindLimit  Kind = "limit"
	KindMarket Kind = "market"
)

// Limit 限价单的价格。
type Limit float64

// Market 市价单不带价格。
type Market struct{}

// Pricing is the price capability an order kind carries through every state.
// The set is closed: only Limit and Market satisfy it.
type Pricing interface {
	Limit | Market
	Kind() Kind
	price() (float64, bool)
}

func (Limit) Kind() Kind { return KindLimit }

func (l Limit) price() (float64, bool) { return float64(l), true }

func (Market) Kind() Kind { return KindMarket }

func (Market) price() (float64, bool) { return 0, false }

func kindOf[P Pricing]() Kind {
	var p P
	return p.Kind()
}

// pricingFrom builds P from a decoded price; Market ignores v.
func pricingFrom[P Pricing](v float64) P {
	var p P
	if l, ok := any(&p).(*Limit); ok {
		*l = Limit(v)
	}
	return p
}

func title(k Kind) string {
	if k == KindLimit {
		return "LimitOrder"
	}
	return "MarketOrder"
}
