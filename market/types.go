// Package market holds the shared domain types for the margin-trading
// simulator: position sides, order lifecycle states and close reasons.
package market

// Side is the direction of an open position.
type Side int

const (
	Long  Side = 1
	Short Side = -1
)

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

// Mult returns +1 for long and -1 for short, for use in signed price math.
func (s Side) Mult() float64 {
	return float64(s)
}

// Opposite returns the reversed side.
func (s Side) Opposite() Side {
	return Side(-int(s))
}

// OrderSide is the direction of an order as submitted.
type OrderSide int

const (
	Buy OrderSide = iota
	Sell
)

func (s OrderSide) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// PositionSide maps an order direction to the exposure it creates when no
// position exists: buys open longs, sells open shorts.
func (s OrderSide) PositionSide() Side {
	if s == Buy {
		return Long
	}
	return Short
}

// OrderType distinguishes immediately-executed market orders from resting
// limit orders. Limit matching is outside this engine; limit orders stay
// Open until cancelled.
type OrderType int

const (
	MarketOrder OrderType = iota
	LimitOrder
)

func (t OrderType) String() string {
	switch t {
	case MarketOrder:
		return "market"
	case LimitOrder:
		return "limit"
	default:
		return "unknown"
	}
}

// OrderStatus is the order lifecycle state. Filled and Cancelled are
// terminal.
type OrderStatus int

const (
	OrderOpen OrderStatus = iota
	OrderFilled
	OrderCancelled
	OrderPartial
)

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderFilled:
		return "filled"
	case OrderCancelled:
		return "cancelled"
	case OrderPartial:
		return "partial"
	default:
		return "unknown"
	}
}

// Close reasons recorded on position exits.
const (
	ReasonManual       = "manual"
	ReasonStopLoss     = "stop_loss"
	ReasonTakeProfit   = "take_profit"
	ReasonTrailingStop = "trailing_stop"
	ReasonLiquidation  = "liquidation"
)
