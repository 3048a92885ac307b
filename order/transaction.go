package order

import "strconv"

// Transaction 一笔成交回报：成交手数与价格。不做任何校验，见 Policy。
type Transaction struct {
	Quantity uint32
	Price    float64
}

func NewTransaction(quantity uint32, price float64) Transaction {
	return Transaction{Quantity: quantity, Price: price}
}

// Notional returns quantity × price.
func (t Transaction) Notional() float64 {
	return float64(t.Quantity) * t.Price
}

func (t Transaction) String() string {
	return strconv.FormatUint(uint64(t.Quantity), 10) + "x" + formatFloat(t.Price)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
