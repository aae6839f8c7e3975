// Package journal records the audit trail of the paper engine: position
// lifecycle events, protective-stop activity, risk warnings, and periodic
// equity snapshots. Backends share one Recorder interface so the ledger
// and monitor never care where records land.
package journal

import (
	"time"

	"github.com/marketsim/papertrader/market"
)

// Event actions, written verbatim to the action column.
const (
	ActionOpen              = "open"
	ActionClose             = "close"
	ActionPartialClose      = "partial_close"
	ActionReversal          = "reversal"
	ActionTrailingActivated = "trailing_activated"
	ActionRiskWarning       = "risk_warning"
)

// Event is one position-lifecycle or risk record.
type Event struct {
	Time    time.Time
	Action  string
	Symbol  string
	Side    market.Side
	Size    float64
	Price   float64
	Reason  string
	Details string
}

// Snapshot is the account state at one instant.
type Snapshot struct {
	Time          time.Time
	Balance       float64
	Equity        float64
	Collateral    float64
	UnrealizedPnL float64
}

// Recorder is the sink for events and snapshots. Implementations must be
// safe for use from a single goroutine at a time; the ledger serializes
// calls under its own lock.
type Recorder interface {
	RecordEvent(Event) error
	RecordEquity(Snapshot) error
	Close() error
}
