package order

import "fmt"

// Direction 买卖方向。零值非法，只有 Buy/Sell 两个取值。
type Direction uint8

const (
	Buy  Direction = 1
	Sell Direction = 2
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "Buy"
	case Sell:
		return "Sell"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Valid reports whether d is Buy or Sell.
func (d Direction) Valid() bool {
	return d == Buy || d == Sell
}

// ParseDirection 解析 String 的输出，大小写敏感。
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "Buy":
		return Buy, nil
	case "Sell":
		return Sell, nil
	}
	return 0, fmt.Errorf("%w: direction %q", ErrMalformed, s)
}
