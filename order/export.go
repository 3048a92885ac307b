package order

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Text export: one semicolon-separated line per order, quoted like CSV when
// a broker id or reject reason contains separators. Backslash, CR and LF in
// those free-text fields are escaped as \\, \r and \n, so a record never
// spans more than one line.
//
//	limit;new;Buy;2;4500
//	limit;posted;Buy;2;4500;order_id=100500;1x4500|1x4510
//	limit;filled;Buy;2;4500;order_id=100500;1x4500|1x4510;<ts>;2;9010;4.5
//	limit;rejected;Buy;100;400;not enough money
//	limit;canceled;Buy;2;4500;order_id=100500;1x4500
//	market;filled;Sell;10;id;5x320|5x320;<ts>;10;3200;3.2
//
// Market lines have no price column. Floats use the shortest representation
// that parses back to the same value. NaN payloads do not survive; use
// Marshal when bytes must round-trip exactly.
const exportComma = ';'

var (
	escapeText   = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)
	unescapeText = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\r`, "\r")
)

var stateTags = map[State]string{
	StateNew:      "new",
	StatePosted:   "posted",
	StateFilled:   "filled",
	StateRejected: "rejected",
	StateCanceled: "canceled",
}

// Export renders o as a single line without a trailing newline.
func Export[P Pricing](o Order[P]) (string, error) {
	if o == nil {
		return "", fmt.Errorf("%w: nil order", ErrMalformed)
	}
	if p, ok := any(o).(*Posted[P]); ok && (p == nil || p.consumed) {
		return "", ErrConsumed
	}
	in := o.Intent()
	fields := []string{string(in.Price.Kind()), stateTags[o.State()], in.Direction.String(), strconv.FormatUint(uint64(in.Lots), 10)}
	if v, ok := in.Price.price(); ok {
		fields = append(fields, formatFloat(v))
	}
	switch v := any(o).(type) {
	case New[P]:
	case *Posted[P]:
		fields = append(fields, escapeText.Replace(v.BrokerID), joinTransactions(v.Transactions))
	case Filled[P]:
		fields = append(fields, escapeText.Replace(v.BrokerID), joinTransactions(v.Transactions),
			strconv.FormatInt(v.Operation.TsNanos, 10),
			strconv.FormatUint(v.Operation.Quantity, 10),
			formatFloat(v.Operation.Value),
			formatFloat(v.Operation.Commission))
	case Rejected[P]:
		fields = append(fields, escapeText.Replace(v.Meta))
	case Canceled:
		fields = append(fields, escapeText.Replace(v.BrokerID), joinTransactions(v.Transactions))
	default:
		return "", fmt.Errorf("%w: cannot export %T", ErrUnknownState, o)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = exportComma
	if err := w.Write(fields); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Import parses a line produced by Export for the same kind.
func Import[P Pricing](line string) (Order[P], error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = exportComma
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(fields) < 4 {
		return nil, fmt.Errorf("%w: %d fields", ErrMalformed, len(fields))
	}
	kind := kindOf[P]()
	if Kind(fields[0]) != kind {
		return nil, fmt.Errorf("%w: line is %q, want %s", ErrKindMismatch, fields[0], kind)
	}
	state, ok := stateFromTag(fields[1])
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, fields[1])
	}
	direction, err := ParseDirection(fields[2])
	if err != nil {
		return nil, err
	}
	lots, err := parseUint32(fields[3], "lots")
	if err != nil {
		return nil, err
	}
	rest := fields[4:]
	var price float64
	if kind == KindLimit {
		if len(rest) == 0 {
			return nil, fmt.Errorf("%w: missing price", ErrMalformed)
		}
		if price, err = parseFloat(rest[0], "price"); err != nil {
			return nil, err
		}
		rest = rest[1:]
	}
	in := New[P]{Direction: direction, Lots: lots, Price: pricingFrom[P](price)}

	want := map[State]int{StateNew: 0, StatePosted: 2, StateFilled: 6, StateRejected: 1, StateCanceled: 2}[state]
	if len(rest) != want {
		return nil, fmt.Errorf("%w: %s line has %d trailing fields, want %d", ErrMalformed, stateTags[state], len(rest), want)
	}

	switch state {
	case StateNew:
		return in, nil
	case StateRejected:
		return in.Reject(unescapeText.Replace(rest[0])), nil
	}

	brokerID := unescapeText.Replace(rest[0])
	txs, err := splitTransactions(rest[1])
	if err != nil {
		return nil, err
	}
	switch state {
	case StatePosted:
		p := in.Post(brokerID)
		p.Transactions = txs
		return p, nil
	case StateFilled:
		op, err := parseOperation(rest[2:], txs)
		if err != nil {
			return nil, err
		}
		return Filled[P]{
			Direction:    in.Direction,
			Lots:         in.Lots,
			Price:        in.Price,
			BrokerID:     brokerID,
			Transactions: txs,
			Operation:    op,
		}, nil
	case StateCanceled:
		c := Canceled{Direction: direction, Lots: lots, Price: Limit(price), BrokerID: brokerID, Transactions: txs}
		if o, ok := any(c).(Order[P]); ok {
			return o, nil
		}
	}
	return nil, fmt.Errorf("%w: %s order in state %s", ErrUnknownState, kind, state)
}

// parseOperation reads ts;qty;value;commission and checks qty and value
// against the transactions they were aggregated from.
func parseOperation(fields []string, txs []Transaction) (Operation, error) {
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Operation{}, fmt.Errorf("%w: timestamp %q", ErrMalformed, fields[0])
	}
	qty, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Operation{}, fmt.Errorf("%w: quantity %q", ErrMalformed, fields[1])
	}
	value, err := parseFloat(fields[2], "value")
	if err != nil {
		return Operation{}, err
	}
	commission, err := parseFloat(fields[3], "commission")
	if err != nil {
		return Operation{}, err
	}
	op := Operation{TsNanos: ts, Quantity: qty, Value: value, Commission: commission}
	if sum := NewOperation(ts, txs, commission); sum.Quantity != qty || !sameFloat(sum.Value, value) {
		return Operation{}, fmt.Errorf("%w: operation %d/%s does not match transactions %d/%s",
			ErrMalformed, qty, formatFloat(value), sum.Quantity, formatFloat(sum.Value))
	}
	return op, nil
}

func joinTransactions(txs []Transaction) string {
	parts := make([]string, len(txs))
	for i, t := range txs {
		parts[i] = t.String()
	}
	return strings.Join(parts, "|")
}

func splitTransactions(s string) ([]Transaction, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, "|")
	txs := make([]Transaction, 0, len(parts))
	for _, p := range parts {
		qty, price, ok := strings.Cut(p, "x")
		if !ok {
			return nil, fmt.Errorf("%w: transaction %q", ErrMalformed, p)
		}
		q, err := parseUint32(qty, "transaction quantity")
		if err != nil {
			return nil, err
		}
		v, err := parseFloat(price, "transaction price")
		if err != nil {
			return nil, err
		}
		txs = append(txs, Transaction{Quantity: q, Price: v})
	}
	return txs, nil
}

func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func stateFromTag(tag string) (State, bool) {
	for s, t := range stateTags {
		if t == tag {
			return s, true
		}
	}
	return "", false
}

func parseUint32(s, what string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrMalformed, what, s)
	}
	return uint32(v), nil
}

func parseFloat(s, what string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrMalformed, what, s)
	}
	return v, nil
}
