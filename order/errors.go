package order

import "errors"

var (
	ErrMalformed         = errors.New("malformed order record")
	ErrKindMismatch      = errors.New("order kind mismatch")
	ErrUnknownState      = errors.New("unknown order state")
	ErrStateMismatch     = errors.New("order state mismatch")
	ErrIllegalTransition = errors.New("illegal state transition")
	ErrConsumed          = errors.New("posted order already filled or canceled")

	ErrInvalidLots     = errors.New("lots must be > 0")
	ErrInvalidPrice    = errors.New("price must be finite and > 0")
	ErrInvalidQuantity = errors.New("transaction quantity must be > 0")
	ErrOverfill        = errors.New("filled quantity exceeds ordered lots")
)
