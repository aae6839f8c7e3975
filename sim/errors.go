package sim

import "errors"

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPositionNotFound    = errors.New("position not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidOrder        = errors.New("invalid order")
)

// RejectionError carries a structured risk refusal: the machine-readable
// code, the human-readable reason, and the largest size that would have
// been admitted, when one exists.
type RejectionError struct {
	Code    string
	Reason  string
	MaxSize float64
}

func (e *RejectionError) Error() string {
	return e.Reason
}
