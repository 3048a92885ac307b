package order

import (
	"strconv"
	"strings"
	"unicode"
)

// New 新建订单，尚未提交给券商。
type New[P Pricing] struct {
	Direction Direction
	Lots      uint32
	Price     P
}

// NewLimit creates a limit order intent. Nothing is validated here.
func NewLimit(direction Direction, lots uint32, price float64) New[Limit] {
	return New[Limit]{Direction: direction, Lots: lots, Price: Limit(price)}
}

// NewMarket creates a market order intent.
func NewMarket(direction Direction, lots uint32) New[Market] {
	return New[Market]{Direction: direction, Lots: lots}
}

// Post records that the broker accepted the order under brokerID.
func (o New[P]) Post(brokerID string) *Posted[P] {
	return &Posted[P]{
		Direction: o.Direction,
		Lots:      o.Lots,
		Price:     o.Price,
		BrokerID:  brokerID,
	}
}

// Reject records that the order was never placed.
func (o New[P]) Reject(meta string) Rejected[P] {
	return Rejected[P]{
		Direction: o.Direction,
		Lots:      o.Lots,
		Price:     o.Price,
		Meta:      meta,
	}
}

// LimitPrice returns the limit price; ok is false for market orders.
func (o New[P]) LimitPrice() (price float64, ok bool) {
	return o.Price.price()
}

func (o New[P]) State() State { return StateNew }
func (o New[P]) Intent() New[P] { return o }
func (o New[P]) isOrder(P) {}

func (o New[P]) String() string {
	return header(StateNew, o.Direction, o.Lots, o.Price)
}

// Posted 已挂单，等待成交回报。
//
// A Posted order is owned by one goroutine at a time. Fill and Cancel hand its
// transactions over to the terminal state and invalidate the handle: any later
// call on it panics.
type Posted[P Pricing] struct {
	Direction    Direction
	Lots         uint32
	Price        P
	BrokerID     string
	Transactions []Transaction

	consumed bool
}

// AddTransaction appends one execution report. Quantities are not checked
// against Lots; see Policy.
func (o *Posted[P]) AddTransaction(t Transaction) {
	o.mustBeOpen("AddTransaction")
	o.Transactions = append(o.Transactions, t)
}

// FilledQuantity returns the sum of recorded transaction quantities.
func (o *Posted[P]) FilledQuantity() uint64 {
	var q uint64
	for _, t := range o.Transactions {
		q += uint64(t.Quantity)
	}
	return q
}

// Notional returns the value the order would settle at if filled now.
func (o *Posted[P]) Notional() float64 {
	return NewOperation(0, o.Transactions, 0).Value
}

// Fill settles the order: the recorded transactions are aggregated into an
// Operation stamped with tsNanos. An empty transaction list is allowed.
func (o *Posted[P]) Fill(tsNanos int64, commission float64) Filled[P] {
	o.mustBeOpen("Fill")
	txs := o.release()
	return Filled[P]{
		Direction:    o.Direction,
		Lots:         o.Lots,
		Price:        o.Price,
		BrokerID:     o.BrokerID,
		Transactions: txs,
		Operation:    NewOperation(tsNanos, txs, commission),
	}
}

// Consumed reports whether Fill or Cancel already took this order.
func (o *Posted[P]) Consumed() bool {
	return o.consumed
}

func (o *Posted[P]) release() []Transaction {
	txs := o.Transactions
	o.Transactions = nil
	o.consumed = true
	return txs
}

func (o *Posted[P]) mustBeOpen(op string) {
	if o.consumed {
		panic("order: " + op + " on " + title(kindOf[P]()) + " " + o.BrokerID + ": " + ErrConsumed.Error())
	}
}

func (o *Posted[P]) State() State { return StatePosted }
func (o *Posted[P]) isOrder(P) {}

func (o *Posted[P]) Intent() New[P] {
	return New[P]{Direction: o.Direction, Lots: o.Lots, Price: o.Price}
}

func (o *Posted[P]) String() string {
	return header(StatePosted, o.Direction, o.Lots, o.Price) +
		" id=" + displayText(o.BrokerID) + " t=" + formatTransactions(o.Transactions)
}

// Filled 完全成交，终态。
type Filled[P Pricing] struct {
	Direction    Direction
	Lots         uint32
	Price        P
	BrokerID     string
	Transactions []Transaction
	Operation    Operation
}

func (o Filled[P]) State() State { return StateFilled }
func (o Filled[P]) isOrder(P) {}

func (o Filled[P]) Intent() New[P] {
	return New[P]{Direction: o.Direction, Lots: o.Lots, Price: o.Price}
}

func (o Filled[P]) String() string {
	return header(StateFilled, o.Direction, o.Lots, o.Price) +
		" id=" + displayText(o.BrokerID) + " t=" + formatTransactions(o.Transactions) + " " + o.Operation.String()
}

// Rejected 被拒绝，终态。Meta 保存拒绝原因。
type Rejected[P Pricing] struct {
	Direction Direction
	Lots      uint32
	Price     P
	Meta      string
}

func (o Rejected[P]) State() State { return StateRejected }
func (o Rejected[P]) isOrder(P) {}

func (o Rejected[P]) Intent() New[P] {
	return New[P]{Direction: o.Direction, Lots: o.Lots, Price: o.Price}
}

func (o Rejected[P]) String() string {
	return header(StateRejected, o.Direction, o.Lots, o.Price) + " meta=" + displayText(o.Meta)
}

// Canceled 已撤单，终态。只有限价单有这个状态，已记录的成交保留用于审计。
type Canceled struct {
	Direction    Direction
	Lots         uint32
	Price        Limit
	BrokerID     string
	Transactions []Transaction
}

// Cancel withdraws a posted limit order. No Operation is computed. Market
// orders execute or get rejected, so Cancel does not accept them.
func Cancel(o *Posted[Limit]) Canceled {
	o.mustBeOpen("Cancel")
	txs := o.release()
	return Canceled{
		Direction:    o.Direction,
		Lots:         o.Lots,
		Price:        o.Price,
		BrokerID:     o.BrokerID,
		Transactions: txs,
	}
}

func (o Canceled) State() State { return StateCanceled }
func (o Canceled) isOrder(Limit) {}

func (o Canceled) Intent() New[Limit] {
	return New[Limit]{Direction: o.Direction, Lots: o.Lots, Price: o.Price}
}

func (o Canceled) String() string {
	return header(StateCanceled, o.Direction, o.Lots, o.Price) +
		" id=" + displayText(o.BrokerID) + " t=" + formatTransactions(o.Transactions)
}

var stateTitles = map[State]string{
	StateNew:      "New",
	StatePosted:   "Posted",
	StateFilled:   "Filled",
	StateRejected: "Rejected",
	StateCanceled: "Canceled",
}

// header renders "LimitOrder=Posted Buy 2x4500" or "MarketOrder=New Sell 10".
func header[P Pricing](s State, d Direction, lots uint32, p P) string {
	var b strings.Builder
	b.WriteString(title(p.Kind()))
	b.WriteByte('=')
	b.WriteString(stateTitles[s])
	b.WriteByte(' ')
	b.WriteString(d.String())
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(uint64(lots), 10))
	if v, ok := p.price(); ok {
		b.WriteByte('x')
		b.WriteString(formatFloat(v))
	}
	return b.String()
}

// displayText 含控制字符（换行等）时加引号转义，保证显示为单行
func displayText(s string) string {
	if strings.IndexFunc(s, unicode.IsControl) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

func formatTransactions(txs []Transaction) string {
	parts := make([]string, len(txs))
	for i, t := range txs {
		parts[i] = t.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
