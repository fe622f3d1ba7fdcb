// Package aggregator counts distinct-source sightings per contract and fires
// the primary (quorum) and escalation (temporal filter) alerts at most once.
//
// The Aggregator is an actor: Run owns the sighting store and handles
// events, maintenance ticks and snapshot requests one at a time, so no lock
// protects the store.
package aggregator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/liamashdown/tokenradar/internal/alerts"
	"github.com/liamashdown/tokenradar/internal/config"
	"github.com/liamashdown/tokenradar/internal/extractor"
	"github.com/liamashdown/tokenradar/internal/ingest"
	"github.com/liamashdown/tokenradar/internal/metrics"
	"github.com/liamashdown/tokenradar/internal/registry"
	"github.com/liamashdown/tokenradar/internal/storage"
	"github.com/liamashdown/tokenradar/internal/temporal"
	"github.com/sirupsen/logrus"
)

const storeName = "sightings"

// ErrStopped is returned by Snapshot once Run has exited
var ErrStopped = errors.New("aggregator stopped")

// Saver persists a full sighting snapshot
type Saver interface {
	SaveSightings(ctx context.Context, records map[string]*storage.ContractRecord) error
}

// Tracker receives contracts whose primary alert went out
type Tracker interface {
	Track(ctx context.Context, contractID string, at time.Time) error
}

// Aggregator handles sighting aggregation and alert emission
type Aggregator struct {
	cfg      *config.Config
	store    storage.SightingStore
	saver    Saver
	registry *registry.Registry
	filter   temporal.Filter
	sender   alerts.Sender
	tracker  Tracker
	log      *logrus.Logger
	now      func() time.Time

	degraded atomic.Bool
	dirty    bool // a mutation has not been persisted yet

	drainTimeout   time.Duration
	persistTimeout time.Duration
	snapshots      chan chan map[string]*storage.ContractRecord
	done           chan struct{}
}

// New creates a new aggregator. tracker may be nil.
func New(
	cfg *config.Config,
	store storage.SightingStore,
	saver Saver,
	reg *registry.Registry,
	sender alerts.Sender,
	tracker Tracker,
	log *logrus.Logger,
) *Aggregator {
	return &Aggregator{
		cfg:            cfg,
		store:          store,
		saver:          saver,
		registry:       reg,
		filter:         temporal.New(cfg.TemporalWindowMinutes, cfg.SecondaryThreshold, cfg.MaxAgeMinutes),
		sender:         sender,
		tracker:        tracker,
		log:            log,
		now:            time.Now,
		drainTimeout:   10 * time.Second,
		persistTimeout: 10 * time.Second,
		snapshots:      make(chan chan map[string]*storage.ContractRecord),
		done:           make(chan struct{}),
	}
}

// Degraded reports whether the last persist failed. While degraded no
// alerts are sent.
func (a *Aggregator) Degraded() bool {
	return a.degraded.Load()
}

// Run processes events until ctx is cancelled or events is closed. Queued
// events are drained and the store persisted before returning.
func (a *Aggregator) Run(ctx context.Context, events <-chan ingest.Event) error {
	defer close(a.done)

	ticker := time.NewTicker(a.cfg.RetryInterval())
	defer ticker.Stop()

	a.log.WithFields(logrus.Fields{
		"contracts": a.store.Len(),
		"quorum":    a.cfg.QuorumThreshold,
	}).Info("Aggregator started")

	for {
		select {
		case <-ctx.Done():
			a.drain(ctx, events)
			a.finalPersist(ctx)
			return nil

		case ev, ok := <-events:
			if !ok {
				a.finalPersist(ctx)
				return nil
			}
			a.Process(ctx, ev)

		case <-ticker.C:
			a.Maintain(ctx)

		case reply := <-a.snapshots:
			reply <- a.store.Snapshot()
		}
	}
}

// Snapshot returns a deep copy of the store, served by the Run loop
func (a *Aggregator) Snapshot(ctx context.Context) (map[string]*storage.ContractRecord, error) {
	reply := make(chan map[string]*storage.ContractRecord, 1)
	select {
	case a.snapshots <- reply:
	case <-a.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Process applies one inbound event. It must only be called from the
// goroutine that owns the store.
func (a *Aggregator) Process(ctx context.Context, ev ingest.Event) {
	start := time.Now()
	defer func() {
		metrics.EventProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	ids := extractor.Extract(ev.Text)
	if len(ids) == 0 {
		return
	}

	source := registry.Canonical(ev.SourceID)
	if source == "" {
		a.log.WithField("contracts", len(ids)).Warn("Dropping event without source")
		return
	}

	at := ev.Timestamp
	if at.IsZero() {
		at = a.now()
	}
	at = storage.Timestamp(at)

	for _, id := range ids {
		if a.apply(id, source, at) {
			a.dirty = true
		}
	}

	if a.dirty {
		a.persist(ctx)
	}

	for _, id := range ids {
		a.evaluate(ctx, id)
	}
}

// apply records one sighting and reports whether the record changed
func (a *Aggregator) apply(contractID, source string, at time.Time) bool {
	channel := a.registry.Resolve(source)
	logger := a.log.WithFields(logrus.Fields{
		"contract": contractID,
		"source":   source,
		"channel":  channel.Name,
	})

	rec, ok := a.store.Get(contractID)
	switch {
	case !ok:
		rec = storage.NewContractRecord(contractID, source, at)
		metrics.RecordSighting("new_contract")
		logger.Info("New contract sighted")
	case rec.AddSource(source, at):
		metrics.RecordSighting("new_source")
		logger.WithField("source_count", rec.SourceCount).Info("New source for contract")
	default:
		metrics.RecordSighting("duplicate")
		logger.Debug("Duplicate sighting ignored")
		return false
	}

	if rec.QuorumAt == nil && rec.SourceCount >= a.cfg.QuorumThreshold {
		q := at
		rec.QuorumAt = &q

		// the filter is judged once, on the sources present at quorum
		res := a.filter.Evaluate(rec)
		rec.EscalationDue = res.Passed
		rec.WindowSignals = res.SignalsInWindow

		metrics.QuorumReached.Inc()
		logger.WithFields(logrus.Fields{
			"source_count":   rec.SourceCount,
			"age":            res.Age.String(),
			"window_signals": res.SignalsInWindow,
			"escalation_due": res.Passed,
		}).Info("Quorum reached")
	}

	a.store.Upsert(rec)
	return true
}

// evaluate sends whichever alerts the record is due. Flags are set only
// after the sender confirms delivery.
func (a *Aggregator) evaluate(ctx context.Context, contractID string) {
	rec, ok := a.store.Get(contractID)
	if !ok || rec.QuorumAt == nil {
		return
	}

	if !rec.Alerted {
		if a.hold(alerts.KindPrimary, rec) {
			return
		}
		alert := alerts.New(alerts.KindPrimary, a.cfg.PrimaryChat, contractID, alerts.PrimaryText(contractID))
		if !a.send(ctx, alert, rec) {
			return
		}

		rec.Alerted = true
		a.store.Upsert(rec)
		a.dirty = true
		a.persist(ctx)

		if a.tracker != nil {
			if err := a.tracker.Track(ctx, contractID, a.now().UTC()); err != nil {
				a.log.WithError(err).WithField("contract", contractID).Warn("Failed to hand contract to growth monitor")
			}
		}
	}

	if rec.Escalated || !rec.EscalationDue {
		return
	}
	if a.hold(alerts.KindEscalation, rec) {
		return
	}

	age := rec.QuorumAt.Sub(rec.FirstSeen)
	text := alerts.EscalationText(contractID, a.markers(rec), rec.WindowSignals, a.filter.Window, age)
	alert := alerts.New(alerts.KindEscalation, a.cfg.EscalationChat, contractID, text)
	if !a.send(ctx, alert, rec) {
		return
	}

	rec.Escalated = true
	a.store.Upsert(rec)
	a.dirty = true
	a.persist(ctx)
}

func (a *Aggregator) hold(kind alerts.Kind, rec *storage.ContractRecord) bool {
	if !a.degraded.Load() {
		return false
	}
	metrics.AlertsHeld.WithLabelValues(string(kind)).Inc()
	a.log.WithFields(logrus.Fields{
		"contract": rec.ContractID,
		"kind":     kind,
	}).Warn("Alert held while persistence is degraded")
	return true
}

func (a *Aggregator) send(ctx context.Context, alert *alerts.Alert, rec *storage.ContractRecord) bool {
	err := a.sender.Send(ctx, alert)
	metrics.RecordAlert(string(alert.Kind), err)

	logger := a.log.WithFields(logrus.Fields{
		"contract":     rec.ContractID,
		"kind":         alert.Kind,
		"alert_id":     alert.ID,
		"destination":  alert.Destination,
		"source_count": rec.SourceCount,
		"sources":      rec.Sources,
	})
	if err != nil {
		logger.WithError(err).Error("Alert send failed, will retry")
		return false
	}
	logger.Info("Alert sent")
	return true
}

// markers lists the category marker of every source in arrival order
func (a *Aggregator) markers(rec *storage.ContractRecord) []string {
	out := make([]string, 0, len(rec.Sources))
	for _, src := range rec.Sources {
		out = append(out, a.registry.Resolve(src).Marker)
	}
	return out
}

// Maintain retries a pending persist, prunes expired records and
// re-evaluates every record with an alert still outstanding.
func (a *Aggregator) Maintain(ctx context.Context) {
	if a.prune() > 0 {
		a.dirty = true
	}
	if a.dirty {
		a.persist(ctx)
	}

	for _, id := range storage.SortedIDs(a.store.Snapshot()) {
		rec, _ := a.store.Get(id)
		if pending(rec) {
			a.evaluate(ctx, id)
		}
	}
}

func pending(rec *storage.ContractRecord) bool {
	if rec.QuorumAt == nil {
		return false
	}
	return !rec.Alerted || (rec.EscalationDue && !rec.Escalated)
}

// prune drops records that expired before reaching quorum. Records past
// quorum are kept for good: their flags are what keeps alerts at most once.
func (a *Aggregator) prune() int {
	if a.cfg.RetentionPeriod <= 0 {
		return 0
	}
	cutoff := a.now().Add(-a.cfg.RetentionPeriod)
	n := 0
	for id, rec := range a.store.Snapshot() {
		if rec.QuorumAt == nil && rec.FirstSeen.Before(cutoff) {
			a.store.Delete(id)
			n++
		}
	}
	if n > 0 {
		a.log.WithFields(logrus.Fields{
			"pruned":    n,
			"remaining": a.store.Len(),
		}).Info("Pruned expired contracts")
	}
	return n
}

// persist saves the full store. Failure switches to degraded mode until a
// later persist succeeds.
func (a *Aggregator) persist(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, a.persistTimeout)
	defer cancel()

	start := time.Now()
	err := a.saver.SaveSightings(ctx, a.store.Snapshot())
	metrics.RecordPersist(storeName, time.Since(start), err)
	metrics.ContractsTracked.WithLabelValues(storeName).Set(float64(a.store.Len()))

	if err != nil {
		if !a.degraded.Swap(true) {
			a.log.WithError(err).Error("Failed to persist sightings, holding alerts until storage recovers")
		} else {
			a.log.WithError(err).Warn("Sightings persist still failing")
		}
		return false
	}

	if a.degraded.Swap(false) {
		a.log.Info("Sightings persistence recovered, alerts resumed")
	}
	a.dirty = false
	return true
}

// drain processes events that were already queued when shutdown began
func (a *Aggregator) drain(ctx context.Context, events <-chan ingest.Event) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.drainTimeout)
	defer cancel()

	n := 0
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				a.logDrained(n)
				return
			}
			a.Process(drainCtx, ev)
			n++
		case <-drainCtx.Done():
			a.log.WithField("processed", n).Warn("Drain timeout reached, dropping remaining events")
			return
		default:
			a.logDrained(n)
			return
		}
	}
}

func (a *Aggregator) logDrained(n int) {
	if n > 0 {
		a.log.WithField("processed", n).Info("Drained queued events")
	}
}

func (a *Aggregator) finalPersist(ctx context.Context) {
	if !a.dirty {
		return
	}
	if a.persist(context.WithoutCancel(ctx)) {
		a.log.WithField("contracts", a.store.Len()).Info("Sightings persisted on shutdown")
	}
}
