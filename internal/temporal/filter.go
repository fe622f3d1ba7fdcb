// Package temporal implements the secondary escalation rule ("Rule1"): a
// contract escalates when enough sources reported it shortly after it was
// first seen and quorum was reached quickly.
package temporal

import (
	"time"

	"github.com/liamashdown/tokenradar/internal/storage"
)

// Filter holds the escalation thresholds
type Filter struct {
	Window     time.Duration // sources counted within Window of first_seen
	MinSignals int           // secondary threshold
	MaxAge     time.Duration // longest first_seen -> quorum delay that still escalates
}

// Result is the outcome of one evaluation
type Result struct {
	SignalsInWindow int
	Age             time.Duration
	HasQuorum       bool
	Passed          bool
}

// New builds a filter from minute-based settings
func New(windowMinutes, minSignals, maxAgeMinutes int) Filter {
	return Filter{
		Window:     time.Duration(windowMinutes) * time.Minute,
		MinSignals: minSignals,
		MaxAge:     time.Duration(maxAgeMinutes) * time.Minute,
	}
}

// Evaluate derives the metrics from the record alone. A record that has not
// reached quorum never passes.
func (f Filter) Evaluate(rec *storage.ContractRecord) Result {
	res := Result{SignalsInWindow: SignalsInWindow(rec, f.Window)}
	if rec.QuorumAt == nil {
		return res
	}
	res.HasQuorum = true
	res.Age = rec.QuorumAt.Sub(rec.FirstSeen)
	res.Passed = res.SignalsInWindow >= f.MinSignals && res.Age <= f.MaxAge
	return res
}

// SignalsInWindow counts sources first reported within window of first_seen
func SignalsInWindow(rec *storage.ContractRecord, window time.Duration) int {
	deadline := rec.FirstSeen.Add(window)
	n := 0
	for _, src := range rec.Sources {
		at, ok := rec.SourceTimes[src]
		if !ok {
			continue
		}
		if !at.Before(rec.FirstSeen) && !at.After(deadline) {
			n++
		}
	}
	return n
}
