package temporal

import (
	"fmt"
	"testing"
	"time"

	"github.com/liamashdown/tokenradar/internal/storage"
	"github.com/stretchr/testify/assert"
)

// Close to midnight on purpose: windows must work across the date change.
var start = time.Date(2025, 3, 1, 23, 55, 0, 0, time.UTC)

// record builds a contract whose i-th source reports offsets[i] after start,
// with quorum reached at quorumAfter (negative means not reached).
func record(offsets []time.Duration, quorumAfter time.Duration) *storage.ContractRecord {
	rec := storage.NewContractRecord("mint", "src0", start.Add(offsets[0]))
	for i, off := range offsets[1:] {
		rec.AddSource(fmt.Sprintf("src%d", i+1), start.Add(off))
	}
	if quorumAfter >= 0 {
		q := start.Add(quorumAfter)
		rec.QuorumAt = &q
	}
	return rec
}

func minutes(ms ...float64) []time.Duration {
	out := make([]time.Duration, len(ms))
	for i, m := range ms {
		out[i] = time.Duration(m * float64(time.Minute))
	}
	return out
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name        string
		filter      Filter
		offsets     []time.Duration
		quorumAfter time.Duration
		want        Result
	}{
		{
			// quorum met at age=6min exceeds max_age=5min
			name:        "quorum too slow",
			filter:      New(15, 8, 5),
			offsets:     minutes(0, 0.5, 1, 1.5, 2, 3, 4, 5, 6),
			quorumAfter: 6 * time.Minute,
			want:        Result{SignalsInWindow: 9, Age: 6 * time.Minute, HasQuorum: true, Passed: false},
		},
		{
			name:        "fast and broad",
			filter:      New(15, 8, 5),
			offsets:     minutes(0, 0.5, 1, 1.5, 2, 2.5, 3, 4, 14),
			quorumAfter: 4 * time.Minute,
			want:        Result{SignalsInWindow: 9, Age: 4 * time.Minute, HasQuorum: true, Passed: true},
		},
		{
			name:        "age at the limit passes",
			filter:      New(15, 2, 5),
			offsets:     minutes(0, 5),
			quorumAfter: 5 * time.Minute,
			want:        Result{SignalsInWindow: 2, Age: 5 * time.Minute, HasQuorum: true, Passed: true},
		},
		{
			name:        "late sources are outside the window",
			filter:      New(15, 3, 5),
			offsets:     minutes(0, 1, 15, 15.5, 40),
			quorumAfter: 1 * time.Minute,
			want:        Result{SignalsInWindow: 3, Age: time.Minute, HasQuorum: true, Passed: true},
		},
		{
			name:        "too few signals",
			filter:      New(15, 10, 5),
			offsets:     minutes(0, 1, 2, 3),
			quorumAfter: 3 * time.Minute,
			want:        Result{SignalsInWindow: 4, Age: 3 * time.Minute, HasQuorum: true, Passed: false},
		},
		{
			name:        "no quorum never passes",
			filter:      New(15, 1, 5),
			offsets:     minutes(0, 1),
			quorumAfter: -1,
			want:        Result{SignalsInWindow: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record(tt.offsets, tt.quorumAfter)
			assert.Equal(t, tt.want, tt.filter.Evaluate(rec))
		})
	}
}

func TestEvaluateIsPure(t *testing.T) {
	rec := record(minutes(0, 1, 2), 2*time.Minute)
	before := rec.Clone()
	f := New(15, 3, 5)

	first := f.Evaluate(rec)
	assert.Equal(t, first, f.Evaluate(rec))
	assert.Equal(t, before, rec)
}
