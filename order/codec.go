package order

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Binary layout. Every entity is a protobuf-wire message so records stay
// readable by any protobuf tooling; floats are fixed64 IEEE-754 bits and
// round-trip exactly.
//
//	Transaction { 1: quantity varint, 2: price fixed64 }
//	Operation   { 1: ts_nanos fixed64, 2: quantity varint, 3: value fixed64, 4: commission fixed64 }
//	Order       { 1: kind varint, 2: state varint, 3: direction varint, 4: lots varint,
//	              5: price fixed64 (limit only), 6: broker_id bytes,
//	              7: transaction bytes (repeated), 8: operation bytes, 9: meta bytes }
const (
	fieldKind        protowire.Number = 1
	fieldState       protowire.Number = 2
	fieldDirection   protowire.Number = 3
	fieldLots        protowire.Number = 4
	fieldPrice       protowire.Number = 5
	fieldBrokerID    protowire.Number = 6
	fieldTransaction protowire.Number = 7
	fieldOperation   protowire.Number = 8
	fieldMeta        protowire.Number = 9
)

var (
	kindCodes  = map[Kind]uint64{KindLimit: 1, KindMarket: 2}
	stateCodes = map[State]uint64{
		StateNew:      1,
		StatePosted:   2,
		StateFilled:   3,
		StateRejected: 4,
		StateCanceled: 5,
	}
)

func bit(n protowire.Number) uint32 { return 1 << uint(n) }

var (
	headerFields = bit(fieldKind) | bit(fieldState) | bit(fieldDirection) | bit(fieldLots)
	// stateFields lists the fields each state must carry on top of the header.
	stateFields = map[State]uint32{
		StateNew:      0,
		StatePosted:   bit(fieldBrokerID),
		StateFilled:   bit(fieldBrokerID) | bit(fieldOperation),
		StateRejected: bit(fieldMeta),
		StateCanceled: bit(fieldBrokerID),
	}
	// transactions are optional (an order may have none) but only where they belong.
	transactionStates = map[State]bool{StatePosted: true, StateFilled: true, StateCanceled: true}
)

// Marshal encodes any state of an order. An order whose direction is not
// Buy or Sell is refused, since Unmarshal would reject it.
func Marshal[P Pricing](o Order[P]) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("%w: nil order", ErrMalformed)
	}
	if p, ok := any(o).(*Posted[P]); ok && p == nil {
		return nil, fmt.Errorf("%w: nil posted order", ErrMalformed)
	}
	if d := o.Intent().Direction; !d.Valid() {
		return nil, fmt.Errorf("%w: direction %d", ErrMalformed, uint8(d))
	}
	switch v := any(o).(type) {
	case New[P]:
		return appendHeader(nil, StateNew, v), nil
	case *Posted[P]:
		if v.consumed {
			return nil, ErrConsumed
		}
		b := appendHeader(nil, StatePosted, v.Intent())
		b = protowire.AppendTag(b, fieldBrokerID, protowire.BytesType)
		b = protowire.AppendString(b, v.BrokerID)
		return appendTransactions(b, v.Transactions), nil
	case Filled[P]:
		b := appendHeader(nil, StateFilled, v.Intent())
		b = protowire.AppendTag(b, fieldBrokerID, protowire.BytesType)
		b = protowire.AppendString(b, v.BrokerID)
		b = appendTransactions(b, v.Transactions)
		b = protowire.AppendTag(b, fieldOperation, protowire.BytesType)
		return protowire.AppendBytes(b, appendOperation(nil, v.Operation)), nil
	case Rejected[P]:
		b := appendHeader(nil, StateRejected, v.Intent())
		b = protowire.AppendTag(b, fieldMeta, protowire.BytesType)
		return protowire.AppendString(b, v.Meta), nil
	case Canceled:
		b := appendHeader(nil, StateCanceled, v.Intent())
		b = protowire.AppendTag(b, fieldBrokerID, protowire.BytesType)
		b = protowire.AppendString(b, v.BrokerID)
		return appendTransactions(b, v.Transactions), nil
	}
	return nil, fmt.Errorf("%w: cannot encode %T", ErrUnknownState, o)
}

// Unmarshal decodes a record produced by Marshal for the same kind.
func Unmarshal[P Pricing](b []byte) (Order[P], error) {
	r, err := decodeRecord(b)
	if err != nil {
		return nil, err
	}
	if want := kindOf[P](); r.kind != want {
		return nil, fmt.Errorf("%w: record is %s, want %s", ErrKindMismatch, r.kind, want)
	}
	in := New[P]{Direction: r.direction, Lots: r.lots, Price: pricingFrom[P](r.price)}
	switch r.state {
	case StateNew:
		return in, nil
	case StatePosted:
		p := in.Post(r.brokerID)
		p.Transactions = r.txs
		return p, nil
	case StateFilled:
		return Filled[P]{
			Direction:    in.Direction,
			Lots:         in.Lots,
			Price:        in.Price,
			BrokerID:     r.brokerID,
			Transactions: r.txs,
			Operation:    r.op,
		}, nil
	case StateRejected:
		return in.Reject(r.meta), nil
	case StateCanceled:
		c := Canceled{
			Direction:    r.direction,
			Lots:         r.lots,
			Price:        Limit(r.price),
			BrokerID:     r.brokerID,
			Transactions: r.txs,
		}
		if o, ok := any(c).(Order[P]); ok {
			return o, nil
		}
	}
	return nil, fmt.Errorf("%w: %s order in state %s", ErrUnknownState, r.kind, r.state)
}

// Peek returns kind and state of an encoded order without building it.
func Peek(b []byte) (Kind, State, error) {
	r, err := decodeRecord(b)
	if err != nil {
		return "", "", err
	}
	return r.kind, r.state, nil
}

func unmarshalState[P Pricing, T Order[P]](b []byte) (T, error) {
	var zero T
	o, err := Unmarshal[P](b)
	if err != nil {
		return zero, err
	}
	t, ok := o.(T)
	if !ok {
		return zero, fmt.Errorf("%w: record holds %s", ErrStateMismatch, o.State())
	}
	return t, nil
}

func (o New[P]) MarshalBinary() ([]byte, error) { return Marshal[P](o) }

func (o *New[P]) UnmarshalBinary(b []byte) error {
	v, err := unmarshalState[P, New[P]](b)
	if err != nil {
		return err
	}
	*o = v
	return nil
}

func (o *Posted[P]) MarshalBinary() ([]byte, error) { return Marshal[P](o) }

func (o *Posted[P]) UnmarshalBinary(b []byte) error {
	v, err := unmarshalState[P, *Posted[P]](b)
	if err != nil {
		return err
	}
	*o = *v
	return nil
}

func (o Filled[P]) MarshalBinary() ([]byte, error) { return Marshal[P](o) }

func (o *Filled[P]) UnmarshalBinary(b []byte) error {
	v, err := unmarshalState[P, Filled[P]](b)
	if err != nil {
		return err
	}
	*o = v
	return nil
}

func (o Rejected[P]) MarshalBinary() ([]byte, error) { return Marshal[P](o) }

func (o *Rejected[P]) UnmarshalBinary(b []byte) error {
	v, err := unmarshalState[P, Rejected[P]](b)
	if err != nil {
		return err
	}
	*o = v
	return nil
}

func (o Canceled) MarshalBinary() ([]byte, error) { return Marshal[Limit](o) }

func (o *Canceled) UnmarshalBinary(b []byte) error {
	v, err := unmarshalState[Limit, Canceled](b)
	if err != nil {
		return err
	}
	*o = v
	return nil
}

func (d Direction) MarshalBinary() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: direction %d", ErrMalformed, uint8(d))
	}
	return protowire.AppendVarint(nil, uint64(d)), nil
}

func (d *Direction) UnmarshalBinary(b []byte) error {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	if n != len(b) {
		return fmt.Errorf("%w: trailing bytes after direction", ErrMalformed)
	}
	dir, err := directionFrom(v)
	if err != nil {
		return err
	}
	*d = dir
	return nil
}

func (t Transaction) MarshalBinary() ([]byte, error) {
	return appendTransaction(nil, t), nil
}

func (t *Transaction) UnmarshalBinary(b []byte) error {
	v, err := consumeTransaction(b)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (o Operation) MarshalBinary() ([]byte, error) {
	return appendOperation(nil, o), nil
}

func (o *Operation) UnmarshalBinary(b []byte) error {
	v, err := consumeOperation(b)
	if err != nil {
		return err
	}
	*o = v
	return nil
}

func appendHeader[P Pricing](b []byte, s State, in New[P]) []byte {
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, kindCodes[in.Price.Kind()])
	b = protowire.AppendTag(b, fieldState, protowire.VarintType)
	b = protowire.AppendVarint(b, stateCodes[s])
	b = protowire.AppendTag(b, fieldDirection, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(in.Direction))
	b = protowire.AppendTag(b, fieldLots, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(in.Lots))
	if v, ok := in.Price.price(); ok {
		b = protowire.AppendTag(b, fieldPrice, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	return b
}

func appendTransactions(b []byte, txs []Transaction) []byte {
	for _, t := range txs {
		b = protowire.AppendTag(b, fieldTransaction, protowire.BytesType)
		b = protowire.AppendBytes(b, appendTransaction(nil, t))
	}
	return b
}

func appendTransaction(b []byte, t Transaction) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.Quantity))
	b = protowire.AppendTag(b, 2, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(t.Price))
}

func appendOperation(b []byte, o Operation) []byte {
	b = protowire.AppendTag(b, 1, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, uint64(o.TsNanos))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, o.Quantity)
	b = protowire.AppendTag(b, 3, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(o.Value))
	b = protowire.AppendTag(b, 4, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(o.Commission))
}

type field struct {
	num   protowire.Number
	typ   protowire.Type
	u64   uint64
	bytes []byte
}

// walkFields calls fn for every field of a message. Groups and 32-bit
// fields are skipped; nothing in this package writes them.
func walkFields(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u64, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.u64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// fieldSet tracks which known fields were seen and rejects duplicates.
type fieldSet uint32

func (s *fieldSet) see(f field, want protowire.Type) error {
	if f.typ != want {
		return fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, f.num, f.typ)
	}
	if *s&fieldSet(bit(f.num)) != 0 {
		return fmt.Errorf("%w: duplicate field %d", ErrMalformed, f.num)
	}
	*s |= fieldSet(bit(f.num))
	return nil
}

func (s fieldSet) has(mask uint32) bool { return uint32(s)&mask == mask }

func consumeTransaction(b []byte) (Transaction, error) {
	var (
		t    Transaction
		seen fieldSet
	)
	err := walkFields(b, func(f field) error {
		switch f.num {
		case 1:
			if err := seen.see(f, protowire.VarintType); err != nil {
				return err
			}
			q, err := toUint32(f.u64, "transaction quantity")
			if err != nil {
				return err
			}
			t.Quantity = q
		case 2:
			if err := seen.see(f, protowire.Fixed64Type); err != nil {
				return err
			}
			t.Price = math.Float64frombits(f.u64)
		}
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	if !seen.has(bit(1) | bit(2)) {
		return Transaction{}, fmt.Errorf("%w: incomplete transaction", ErrMalformed)
	}
	return t, nil
}

func consumeOperation(b []byte) (Operation, error) {
	var (
		o    Operation
		seen fieldSet
	)
	err := walkFields(b, func(f field) error {
		switch f.num {
		case 1:
			if err := seen.see(f, protowire.Fixed64Type); err != nil {
				return err
			}
			o.TsNanos = int64(f.u64)
		case 2:
			if err := seen.see(f, protowire.VarintType); err != nil {
				return err
			}
			o.Quantity = f.u64
		case 3:
			if err := seen.see(f, protowire.Fixed64Type); err != nil {
				return err
			}
			o.Value = math.Float64frombits(f.u64)
		case 4:
			if err := seen.see(f, protowire.Fixed64Type); err != nil {
				return err
			}
			o.Commission = math.Float64frombits(f.u64)
		}
		return nil
	})
	if err != nil {
		return Operation{}, err
	}
	if !seen.has(bit(1) | bit(2) | bit(3) | bit(4)) {
		return Operation{}, fmt.Errorf("%w: incomplete operation", ErrMalformed)
	}
	return o, nil
}

type record struct {
	kind      Kind
	state     State
	direction Direction
	lots      uint32
	price     float64
	brokerID  string
	txs       []Transaction
	op        Operation
	meta      string
	seen      fieldSet
}

func decodeRecord(b []byte) (record, error) {
	var r record
	err := walkFields(b, func(f field) error {
		var err error
		switch f.num {
		case fieldKind:
			if err = r.seen.see(f, protowire.VarintType); err == nil {
				r.kind, err = kindFrom(f.u64)
			}
		case fieldState:
			if err = r.seen.see(f, protowire.VarintType); err == nil {
				r.state, err = stateFrom(f.u64)
			}
		case fieldDirection:
			if err = r.seen.see(f, protowire.VarintType); err == nil {
				r.direction, err = directionFrom(f.u64)
			}
		case fieldLots:
			if err = r.seen.see(f, protowire.VarintType); err == nil {
				r.lots, err = toUint32(f.u64, "lots")
			}
		case fieldPrice:
			if err = r.seen.see(f, protowire.Fixed64Type); err == nil {
				r.price = math.Float64frombits(f.u64)
			}
		case fieldBrokerID:
			if err = r.seen.see(f, protowire.BytesType); err == nil {
				r.brokerID = string(f.bytes)
			}
		case fieldTransaction:
			if f.typ != protowire.BytesType {
				return fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, f.num, f.typ)
			}
			var t Transaction
			if t, err = consumeTransaction(f.bytes); err == nil {
				r.txs = append(r.txs, t)
				r.seen |= fieldSet(bit(fieldTransaction))
			}
		case fieldOperation:
			if err = r.seen.see(f, protowire.BytesType); err == nil {
				r.op, err = consumeOperation(f.bytes)
			}
		case fieldMeta:
			if err = r.seen.see(f, protowire.BytesType); err == nil {
				r.meta = string(f.bytes)
			}
		}
		return err
	})
	if err != nil {
		return record{}, err
	}
	return r, r.checkShape()
}

// checkShape rejects records that mix fields of different states.
func (r record) checkShape() error {
	if !r.seen.has(bit(fieldKind) | bit(fieldState)) {
		return fmt.Errorf("%w: missing kind or state", ErrMalformed)
	}
	required := headerFields | stateFields[r.state]
	if r.kind == KindLimit {
		required |= bit(fieldPrice)
	}
	allowed := required
	if transactionStates[r.state] {
		allowed |= bit(fieldTransaction)
	}
	if !r.seen.has(required) {
		return fmt.Errorf("%w: %s %s record is missing fields", ErrMalformed, r.kind, r.state)
	}
	if uint32(r.seen)&^allowed != 0 {
		return fmt.Errorf("%w: %s %s record carries foreign fields", ErrMalformed, r.kind, r.state)
	}
	return nil
}

func kindFrom(v uint64) (Kind, error) {
	for k, c := range kindCodes {
		if c == v {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: kind code %d", ErrMalformed, v)
}

func stateFrom(v uint64) (State, error) {
	for s, c := range stateCodes {
		if c == v {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: state code %d", ErrUnknownState, v)
}

func directionFrom(v uint64) (Direction, error) {
	d := Direction(v)
	if v > math.MaxUint8 || !d.Valid() {
		return 0, fmt.Errorf("%w: direction code %d", ErrMalformed, v)
	}
	return d, nil
}

func toUint32(v uint64, what string) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %s %d overflows uint32", ErrMalformed, what, v)
	}
	return uint32(v), nil
}
