package order

// State represents order lifecycle.
type State string

const (
	StateNew      State = "NEW"
	StatePosted   State = "POSTED"
	StateFilled   State = "FILLED"
	StateRejected State = "REJECTED"
	StateCanceled State = "CANCELED"
)

// Order is one state of an order of kind P. Exactly one of New[P],
// *Posted[P], Filled[P], Rejected[P] and (limit only) Canceled implements it
// for a given value, so fields of two states never coexist.
type Order[P Pricing] interface {
	State() State
	// Intent returns the direction, lots and price the order was created with.
	Intent() New[P]
	String() string
	isOrder(P)
}

type (
	LimitOrder  = Order[Limit]
	MarketOrder = Order[Market]
)
