package storage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ContractRecord is the aggregation state of one contract in the sighting store
type ContractRecord struct {
	ContractID  string               `json:"contract_id"`
	Sources     []string             `json:"sources"`
	SourceTimes map[string]time.Time `json:"source_times"`
	SourceCount int                  `json:"source_count"`
	FirstSeen   time.Time            `json:"first_seen"`
	QuorumAt    *time.Time           `json:"quorum_at,omitempty"`
	Alerted     bool                 `json:"alerted"`
	Escalated   bool                 `json:"escalated"`

	// Temporal filter verdict, fixed at the sighting that reached quorum
	EscalationDue bool `json:"escalation_due"`
	WindowSignals int  `json:"window_signals"`
}

// Timestamp normalizes t to the precision every backend can store: UTC,
// microseconds.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// NewContractRecord creates the record for a contract's first sighting
func NewContractRecord(contractID, source string, at time.Time) *ContractRecord {
	at = Timestamp(at)
	return &ContractRecord{
		ContractID:  contractID,
		Sources:     []string{source},
		SourceTimes: map[string]time.Time{source: at},
		SourceCount: 1,
		FirstSeen:   at,
	}
}

// HasSource reports whether source has already been counted
func (r *ContractRecord) HasSource(source string) bool {
	_, ok := r.SourceTimes[source]
	return ok
}

// AddSource counts a new source. It returns false, leaving the record
// untouched, when the source was already counted.
func (r *ContractRecord) AddSource(source string, at time.Time) bool {
	if r.HasSource(source) {
		return false
	}
	at = Timestamp(at)
	if r.SourceTimes == nil {
		r.SourceTimes = make(map[string]time.Time)
	}
	r.Sources = append(r.Sources, source)
	r.SourceTimes[source] = at
	r.SourceCount = len(r.Sources)
	if at.Before(r.FirstSeen) {
		r.FirstSeen = at
	}
	return true
}

// Clone returns a deep copy
func (r *ContractRecord) Clone() *ContractRecord {
	c := *r
	c.Sources = append([]string(nil), r.Sources...)
	c.SourceTimes = make(map[string]time.Time, len(r.SourceTimes))
	for k, v := range r.SourceTimes {
		c.SourceTimes[k] = v
	}
	if r.QuorumAt != nil {
		q := *r.QuorumAt
		c.QuorumAt = &q
	}
	return &c
}

// Validate checks the record's invariants
func (r *ContractRecord) Validate() error {
	if r.ContractID == "" {
		return fmt.Errorf("contract_id is empty")
	}
	if r.FirstSeen.IsZero() {
		return fmt.Errorf("%s: first_seen is missing", r.ContractID)
	}
	if r.SourceCount != len(r.Sources) {
		return fmt.Errorf("%s: source_count %d does not match %d sources", r.ContractID, r.SourceCount, len(r.Sources))
	}
	if len(r.SourceTimes) != len(r.Sources) {
		return fmt.Errorf("%s: %d source_times for %d sources", r.ContractID, len(r.SourceTimes), len(r.Sources))
	}
	seen := make(map[string]bool, len(r.Sources))
	for _, s := range r.Sources {
		if seen[s] {
			return fmt.Errorf("%s: source %s listed twice", r.ContractID, s)
		}
		seen[s] = true
		if _, ok := r.SourceTimes[s]; !ok {
			return fmt.Errorf("%s: source %s has no time", r.ContractID, s)
		}
	}
	if r.Alerted && r.QuorumAt == nil {
		return fmt.Errorf("%s: alerted without quorum_at", r.ContractID)
	}
	if r.Escalated && !r.Alerted {
		return fmt.Errorf("%s: escalated without primary alert", r.ContractID)
	}
	if r.EscalationDue && r.QuorumAt == nil {
		return fmt.Errorf("%s: escalation_due without quorum_at", r.ContractID)
	}
	return nil
}

// TrackedToken is the growth-monitor state of one contract
type TrackedToken struct {
	ContractID          string              `json:"contract_id"`
	InitialMarketCap    decimal.NullDecimal `json:"initial_market_cap"`
	AllTimeHigh         decimal.Decimal     `json:"all_time_high"`
	AllTimeHighAt       *time.Time          `json:"all_time_high_time,omitempty"`
	LastAlertMultiplier int                 `json:"last_alert_multiplier"`
	LastMarketCap       decimal.NullDecimal `json:"last_market_cap"`
	LastCheckedAt       *time.Time          `json:"last_checked_time,omitempty"`
	AddedAt             time.Time           `json:"added_time"`
}

// NewTrackedToken starts tracking a contract with no valuation yet
func NewTrackedToken(contractID string, at time.Time) *TrackedToken {
	return &TrackedToken{
		ContractID:          contractID,
		LastAlertMultiplier: 1,
		AddedAt:             Timestamp(at),
	}
}

// Clone returns a deep copy
func (t *TrackedToken) Clone() *TrackedToken {
	c := *t
	if t.AllTimeHighAt != nil {
		v := *t.AllTimeHighAt
		c.AllTimeHighAt = &v
	}
	if t.LastCheckedAt != nil {
		v := *t.LastCheckedAt
		c.LastCheckedAt = &v
	}
	return &c
}

// Normalize applies defaults for fields absent from older snapshots
func (t *TrackedToken) Normalize() {
	if t.LastAlertMultiplier == 0 {
		t.LastAlertMultiplier = 1
	}
}

// Validate checks the record's invariants
func (t *TrackedToken) Validate() error {
	if t.ContractID == "" {
		return fmt.Errorf("contract_id is empty")
	}
	if t.AddedAt.IsZero() {
		return fmt.Errorf("%s: added_time is missing", t.ContractID)
	}
	if t.LastAlertMultiplier < 1 {
		return fmt.Errorf("%s: last_alert_multiplier %d below 1", t.ContractID, t.LastAlertMultiplier)
	}
	if t.InitialMarketCap.Valid {
		if !t.InitialMarketCap.Decimal.IsPositive() {
			return fmt.Errorf("%s: initial_market_cap must be positive", t.ContractID)
		}
		if t.AllTimeHigh.LessThan(t.InitialMarketCap.Decimal) {
			return fmt.Errorf("%s: all_time_high below initial_market_cap", t.ContractID)
		}
	}
	return nil
}
