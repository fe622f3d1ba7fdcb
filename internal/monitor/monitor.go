// Package monitor polls market data for tracked contracts, ratchets their
// all-time high and raises one alert per multiplier tier reached.
package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/liamashdown/tokenradar/internal/alerts"
	"github.com/liamashdown/tokenradar/internal/config"
	"github.com/liamashdown/tokenradar/internal/metrics"
	"github.com/liamashdown/tokenradar/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const storeName = "tracked"

// ErrStopped is returned once Run has exited
var ErrStopped = errors.New("monitor stopped")

// Fetcher returns a contract's current valuation. An invalid value means
// no market data yet.
type Fetcher interface {
	Valuation(ctx context.Context, contractID string) (decimal.NullDecimal, error)
}

// Saver persists a full tracked-token snapshot
type Saver interface {
	SaveTracked(ctx context.Context, records map[string]*storage.TrackedToken) error
}

type trackRequest struct {
	contractID string
	at         time.Time
}

type fetchResult struct {
	reading decimal.NullDecimal
	err     error
}

// Monitor owns the tracked-token store. All mutation happens on the Run
// goroutine; fetches run in helper goroutines and only return data.
type Monitor struct {
	cfg     *config.Config
	store   storage.TrackerStore
	saver   Saver
	fetcher Fetcher
	sender  alerts.Sender
	log     *logrus.Logger
	now     func() time.Time

	degraded atomic.Bool
	dirty    bool

	persistTimeout time.Duration
	tracks         chan trackRequest
	snapshots      chan chan map[string]*storage.TrackedToken
	done           chan struct{}
}

// New creates a new growth monitor
func New(
	cfg *config.Config,
	store storage.TrackerStore,
	saver Saver,
	fetcher Fetcher,
	sender alerts.Sender,
	log *logrus.Logger,
) *Monitor {
	return &Monitor{
		cfg:            cfg,
		store:          store,
		saver:          saver,
		fetcher:        fetcher,
		sender:         sender,
		log:            log,
		now:            time.Now,
		persistTimeout: 10 * time.Second,
		tracks:         make(chan trackRequest, 256),
		snapshots:      make(chan chan map[string]*storage.TrackedToken),
		done:           make(chan struct{}),
	}
}

// Degraded reports whether the last persist failed
func (m *Monitor) Degraded() bool {
	return m.degraded.Load()
}

// Track queues a contract for monitoring. It returns once the request is
// queued; tracking an already tracked contract is a no-op.
func (m *Monitor) Track(ctx context.Context, contractID string, at time.Time) error {
	select {
	case <-m.done:
		return ErrStopped
	default:
	}
	select {
	case m.tracks <- trackRequest{contractID: contractID, at: at}:
		return nil
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a deep copy of the store, served by the Run loop
func (m *Monitor) Snapshot(ctx context.Context) (map[string]*storage.TrackedToken, error) {
	reply := make(chan map[string]*storage.TrackedToken, 1)
	select {
	case m.snapshots <- reply:
	case <-m.done:
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

// Run executes a cycle every poll interval until ctx is cancelled
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.PollInterval())
	defer ticker.Stop()

	m.log.WithFields(logrus.Fields{
		"tracked":       m.store.Len(),
		"poll_interval": m.cfg.PollInterval().String(),
	}).Info("Growth monitor started")

	for {
		select {
		case <-ctx.Done():
			m.drainTracks()
			if m.dirty {
				m.persist(context.WithoutCancel(ctx))
			}
			return nil

		case req := <-m.tracks:
			m.track(ctx, req)

		case <-ticker.C:
			m.Cycle(ctx)

		case reply := <-m.snapshots:
			reply <- m.store.Snapshot()
		}
	}
}

func (m *Monitor) drainTracks() {
	for {
		select {
		case req := <-m.tracks:
			m.add(req)
		default:
			return
		}
	}
}

func (m *Monitor) track(ctx context.Context, req trackRequest) {
	if m.add(req) {
		m.persist(ctx)
	}
}

func (m *Monitor) add(req trackRequest) bool {
	if _, ok := m.store.Get(req.contractID); ok {
		return false
	}
	m.store.Upsert(storage.NewTrackedToken(req.contractID, req.at))
	m.dirty = true
	m.log.WithField("contract", req.contractID).Info("Tracking contract growth")
	return true
}

// Cycle prunes, fetches every tracked contract and applies the results
func (m *Monitor) Cycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.MonitorCycleDuration.Observe(time.Since(start).Seconds())
	}()

	if m.prune() > 0 {
		m.dirty = true
	}
	if m.dirty {
		m.persist(ctx)
	}

	ids := storage.SortedIDs(m.store.Snapshot())
	results := m.fetchAll(ctx, ids)
	if ctx.Err() != nil {
		return
	}

	alerted := 0
	for i, id := range ids {
		if m.apply(ctx, id, results[i]) {
			alerted++
		}
	}

	if m.dirty {
		m.persist(ctx)
	}

	m.log.WithFields(logrus.Fields{
		"tracked":  len(ids),
		"alerts":   alerted,
		"duration": time.Since(start).String(),
	}).Debug("Growth cycle complete")
}

// fetchAll runs outside any store mutation, bounded by MonitorConcurrency
func (m *Monitor) fetchAll(ctx context.Context, ids []string) []fetchResult {
	results := make([]fetchResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MonitorConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			reading, err := m.fetcher.Valuation(gctx, id)
			results[i] = fetchResult{reading: reading, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// apply folds one fetch result into the store and sends a growth alert
// when a new tier is due. Reports whether an alert was sent.
func (m *Monitor) apply(ctx context.Context, contractID string, res fetchResult) bool {
	rec, ok := m.store.Get(contractID)
	if !ok {
		return false
	}
	logger := m.log.WithField("contract", contractID)

	if res.err != nil {
		metrics.MonitorFetches.WithLabelValues("error").Inc()
		logger.WithError(res.err).Warn("Market data fetch failed, skipping")
		return false
	}
	if !res.reading.Valid {
		metrics.MonitorFetches.WithLabelValues("empty").Inc()
		logger.Debug("No market data yet")
		return false
	}
	metrics.MonitorFetches.WithLabelValues("ok").Inc()

	now := storage.Timestamp(m.now())
	current := res.reading.Decimal
	if Observe(rec, current, now) {
		logger.WithField("all_time_high", rec.AllTimeHigh.String()).Debug("All-time high raised")
	}
	rec.LastMarketCap = res.reading
	rec.LastCheckedAt = &now
	m.store.Upsert(rec)
	m.dirty = true

	tier := DueTier(rec)
	if tier == 0 {
		return false
	}

	if m.degraded.Load() {
		metrics.AlertsHeld.WithLabelValues(string(alerts.KindGrowth)).Inc()
		logger.WithField("multiplier", tier).Warn("Growth alert held while persistence is degraded")
		return false
	}

	text := alerts.GrowthText(contractID, tier, rec.InitialMarketCap.Decimal, rec.AllTimeHigh, current)
	alert := alerts.New(alerts.KindGrowth, m.cfg.GrowthChat, contractID, text)
	alert.Multiplier = tier

	err := m.sender.Send(ctx, alert)
	metrics.RecordAlert(string(alerts.KindGrowth), err)
	if err != nil {
		logger.WithError(err).WithField("multiplier", tier).Error("Growth alert failed, will retry next cycle")
		return false
	}

	rec.LastAlertMultiplier = int(tier)
	m.store.Upsert(rec)
	logger.WithFields(logrus.Fields{
		"multiplier": tier,
		"alert_id":   alert.ID,
		"initial":    rec.InitialMarketCap.Decimal.String(),
		"ath":        rec.AllTimeHigh.String(),
	}).Info("Growth alert sent")
	return true
}

func (m *Monitor) prune() int {
	if m.cfg.RetentionPeriod <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.cfg.RetentionPeriod)
	n := 0
	for id, rec := range m.store.Snapshot() {
		if rec.AddedAt.Before(cutoff) {
			m.store.Delete(id)
			n++
		}
	}
	if n > 0 {
		m.log.WithField("pruned", n).Info("Stopped tracking expired contracts")
	}
	return n
}

func (m *Monitor) persist(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.persistTimeout)
	defer cancel()

	start := time.Now()
	err := m.saver.SaveTracked(ctx, m.store.Snapshot())
	metrics.RecordPersist(storeName, time.Since(start), err)
	metrics.ContractsTracked.WithLabelValues(storeName).Set(float64(m.store.Len()))

	if err != nil {
		if !m.degraded.Swap(true) {
			m.log.WithError(err).Error("Failed to persist tracked tokens, holding growth alerts until storage recovers")
		}
		return false
	}
	if m.degraded.Swap(false) {
		m.log.Info("Tracked token persistence recovered")
	}
	m.dirty = false
	return true
}
