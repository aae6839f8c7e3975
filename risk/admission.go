package risk

import (
	"fmt"

	"github.com/marketsim/papertrader/margin"
)

// Admission gate constants. The leverage gate always fires before the
// margin-usage gates.
const (
	MaxEffectiveLeverage = 10.0

	// Maintenance margin above 90% of balance is an outright refusal;
	// between 80% and 90% the proposal is trimmed to the 80% level.
	marginRefuseUsage = 0.90
	marginTrimUsage   = 0.80
)

// Rejection codes carried on admission decisions.
const (
	CodeExcessiveLeverage  = "EXCESSIVE_LEVERAGE"
	CodeInsufficientMargin = "INSUFFICIENT_MARGIN"
	CodePositionTooLarge   = "POSITION_TOO_LARGE"
)

// Decision is the result of admission control for a proposed position.
// When rejected for leverage or size, MaxSize carries the largest size
// that would have been admitted at the violated threshold.
type Decision struct {
	Allowed bool
	Code    string
	Reason  string
	MaxSize float64

	EffectiveLeverage float64
	MarginUsage       float64
}

// CanOpen gates a proposed position of size units at price against the
// account balance and the already-open positions. Two independent checks
// run in a fixed order: effective leverage across all exposure first, then
// maintenance-margin usage. The ordering matters - a large proposal trips
// the leverage gate even when margin usage alone would still pass.
func CanOpen(balance float64, existing []Position, size, price float64) Decision {
	existingNotional := 0.0
	for _, p := range existing {
		existingNotional += p.Notional()
	}
	totalNotional := existingNotional + size*price

	d := Decision{Allowed: true}

	if balance <= 0 {
		d.Allowed = false
		d.Code = CodeExcessiveLeverage
		d.Reason = "excessive leverage: no balance to support exposure"
		return d
	}

	d.EffectiveLeverage = totalNotional / balance
	if d.EffectiveLeverage > MaxEffectiveLeverage {
		d.Allowed = false
		d.Code = CodeExcessiveLeverage
		d.MaxSize = clampSize((MaxEffectiveLeverage*balance - existingNotional) / price)
		d.Reason = fmt.Sprintf("excessive leverage: %.2fx exceeds %.0fx cap, max size %.6f",
			d.EffectiveLeverage, MaxEffectiveLeverage, d.MaxSize)
		return d
	}

	maint, rate := margin.MaintenanceMargin(totalNotional)
	d.MarginUsage = maint / balance

	switch {
	case d.MarginUsage > marginRefuseUsage:
		d.Allowed = false
		d.Code = CodeInsufficientMargin
		d.Reason = fmt.Sprintf("insufficient margin: maintenance requirement uses %.1f%% of balance",
			d.MarginUsage*100)
	case d.MarginUsage > marginTrimUsage:
		d.Allowed = false
		d.Code = CodePositionTooLarge
		d.MaxSize = clampSize(sizeAtUsage(marginTrimUsage, balance, existingNotional, price, totalNotional, rate))
		d.Reason = fmt.Sprintf("position too large: margin usage %.1f%% exceeds %.0f%%, max size %.6f",
			d.MarginUsage*100, marginTrimUsage*100, d.MaxSize)
	}

	return d
}

// sizeAtUsage inverts the maintenance-margin formula at the tier the
// proposed total notional resolves to, returning the size whose combined
// notional puts usage exactly at the target fraction of balance.
func sizeAtUsage(target, balance, existingNotional, price, totalNotional, rate float64) float64 {
	if price <= 0 || rate <= 0 {
		return 0
	}
	tier := margin.ResolveTier(totalNotional)
	allowedNotional := (target*balance + tier.MaintenanceDeduction) / rate
	return (allowedNotional - existingNotional) / price
}

func clampSize(s float64) float64 {
	if s < 0 {
		return 0
	}
	return s
}
