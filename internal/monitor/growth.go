package monitor

import (
	"time"

	"github.com/liamashdown/tokenradar/internal/storage"
	"github.com/shopspring/decimal"
)

// Observe folds one reading into t. The first positive reading becomes the
// initial valuation and is never changed; a reading above the all-time high
// raises it. Non-positive readings are ignored. Reports whether the
// all-time high moved.
func Observe(t *storage.TrackedToken, v decimal.Decimal, at time.Time) bool {
	if !v.IsPositive() {
		return false
	}
	if t.InitialMarketCap.Valid && !v.GreaterThan(t.AllTimeHigh) {
		return false
	}
	if !t.InitialMarketCap.Valid {
		t.InitialMarketCap = decimal.NewNullDecimal(v)
	}
	t.AllTimeHigh = v
	ts := storage.Timestamp(at)
	t.AllTimeHighAt = &ts
	return true
}

// Multiplier is floor(all_time_high / initial_market_cap), 0 before the
// first reading.
func Multiplier(t *storage.TrackedToken) int64 {
	if !t.InitialMarketCap.Valid || !t.InitialMarketCap.Decimal.IsPositive() {
		return 0
	}
	q, _ := t.AllTimeHigh.QuoRem(t.InitialMarketCap.Decimal, 0)
	return q.IntPart()
}

// DueTier returns the tier to alert, or 0 when none is due. Only the highest
// tier reached is returned; skipped tiers are never alerted separately.
func DueTier(t *storage.TrackedToken) int64 {
	m := Multiplier(t)
	if m >= 2 && m > int64(t.LastAlertMultiplier) {
		return m
	}
	return 0
}
