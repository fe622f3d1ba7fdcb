// Package export renders denormalized CSV reports of both stores. The
// output is for humans and is never read back.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/liamashdown/tokenradar/internal/monitor"
	"github.com/liamashdown/tokenradar/internal/registry"
	"github.com/liamashdown/tokenradar/internal/storage"
	"github.com/liamashdown/tokenradar/internal/temporal"
)

var SightingsHeader = []string{
	"contract_id", "first_seen", "quorum_at", "source_count", "alerted", "escalated",
	"sources", "markers", "signals_in_window", "age_minutes", "rule1_passed", "source_times",
}

var TrackedHeader = []string{
	"contract_id", "added_time", "initial_market_cap", "all_time_high", "all_time_high_time",
	"multiplier", "last_alert_multiplier", "last_market_cap", "last_checked_time",
}

// WriteSightings writes one row per contract, ordered by contract id
func WriteSightings(w io.Writer, records map[string]*storage.ContractRecord, reg *registry.Registry, filter temporal.Filter) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SightingsHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, id := range storage.SortedIDs(records) {
		rec := records[id]
		res := filter.Evaluate(rec)

		names := make([]string, 0, len(rec.Sources))
		markers := make([]string, 0, len(rec.Sources))
		times := make([]string, 0, len(rec.Sources))
		for _, src := range rec.Sources {
			ch := reg.Resolve(src)
			names = append(names, ch.Name)
			markers = append(markers, ch.Marker)
			times = append(times, ch.Name+"="+formatTime(rec.SourceTimes[src]))
		}

		// past quorum the verdict recorded at that moment is authoritative
		signals, passed := res.SignalsInWindow, res.Passed
		age := ""
		if res.HasQuorum {
			signals, passed = rec.WindowSignals, rec.EscalationDue
			age = strconv.FormatFloat(res.Age.Minutes(), 'f', 2, 64)
		}

		row := []string{
			rec.ContractID,
			formatTime(rec.FirstSeen),
			formatTimePtr(rec.QuorumAt),
			strconv.Itoa(rec.SourceCount),
			strconv.FormatBool(rec.Alerted),
			strconv.FormatBool(rec.Escalated),
			strings.Join(names, "; "),
			strings.Join(markers, ""),
			strconv.Itoa(signals),
			age,
			strconv.FormatBool(passed),
			strings.Join(times, "; "),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", id, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteTracked writes one row per tracked token, ordered by contract id
func WriteTracked(w io.Writer, records map[string]*storage.TrackedToken) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TrackedHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, id := range storage.SortedIDs(records) {
		tok := records[id]

		initial := ""
		if tok.InitialMarketCap.Valid {
			initial = tok.InitialMarketCap.Decimal.String()
		}
		ath := ""
		if tok.InitialMarketCap.Valid {
			ath = tok.AllTimeHigh.String()
		}
		last := ""
		if tok.LastMarketCap.Valid {
			last = tok.LastMarketCap.Decimal.String()
		}

		row := []string{
			tok.ContractID,
			formatTime(tok.AddedAt),
			initial,
			ath,
			formatTimePtr(tok.AllTimeHighAt),
			strconv.FormatInt(monitor.Multiplier(tok), 10),
			strconv.Itoa(tok.LastAlertMultiplier),
			last,
			formatTimePtr(tok.LastCheckedAt),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", id, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
