package aggregator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/liamashdown/tokenradar/internal/alerts"
	"github.com/liamashdown/tokenradar/internal/config"
	"github.com/liamashdown/tokenradar/internal/ingest"
	"github.com/liamashdown/tokenradar/internal/registry"
	"github.com/liamashdown/tokenradar/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mint = "9BB6NFEcjBCtnNLFko2FqVQBq8HHM13kCyYcdQbgpump"

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type memSaver struct {
	mu    sync.Mutex
	err   error
	saves int
	last  map[string]*storage.ContractRecord
}

func (s *memSaver) SaveSightings(ctx context.Context, records map[string]*storage.ContractRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves++
	s.last = records
	return nil
}

func (s *memSaver) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type recSender struct {
	mu       sync.Mutex
	failures map[alerts.Kind]int // remaining failures per kind
	attempts int
	sent     []*alerts.Alert
}

func (s *recSender) Send(ctx context.Context, alert *alerts.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failures[alert.Kind] > 0 {
		s.failures[alert.Kind]--
		return errors.New("transport down")
	}
	s.sent = append(s.sent, alert)
	return nil
}

func (s *recSender) byKind(kind alerts.Kind) []*alerts.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*alerts.Alert
	for _, a := range s.sent {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

type recTracker struct {
	ids []string
}

func (t *recTracker) Track(ctx context.Context, contractID string, at time.Time) error {
	t.ids = append(t.ids, contractID)
	return nil
}

type fixture struct {
	agg     *Aggregator
	store   *storage.MemorySightings
	saver   *memSaver
	sender  *recSender
	tracker *recTracker
	clock   time.Time
}

func testConfig(quorum, secondary int) *config.Config {
	return &config.Config{
		QuorumThreshold:       quorum,
		SecondaryThreshold:    secondary,
		TemporalWindowMinutes: 15,
		MaxAgeMinutes:         5,
		RetentionPeriod:       24 * time.Hour,
		RetryIntervalSec:      30,
		PrimaryChat:           "@primary",
		EscalationChat:        "@fast",
	}
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	reg, err := registry.New([]registry.ChannelEntry{
		{ID: "-1001", Name: "@sniper", Category: "snipeKOL"},
		{ID: "-1002", Name: "@gems", Category: "snipeGEM"},
		{ID: "-1003", Name: "@whales", Category: "Whale Bought"},
	}, nil)
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &fixture{
		store:   storage.NewMemorySightings(nil),
		saver:   &memSaver{},
		sender:  &recSender{failures: map[alerts.Kind]int{}},
		tracker: &recTracker{},
		clock:   base,
	}
	f.agg = New(cfg, f.store, f.saver, reg, f.sender, f.tracker, log)
	f.agg.now = func() time.Time { return f.clock }
	return f
}

func sighting(source string, offset time.Duration) ingest.Event {
	return ingest.Event{
		SourceID:  source,
		Text:      "🔥 new gem just launched\n" + mint + "\nDYOR",
		Timestamp: base.Add(offset),
	}
}

func (f *fixture) process(evs ...ingest.Event) {
	for _, ev := range evs {
		f.agg.Process(context.Background(), ev)
	}
}

func (f *fixture) record(t *testing.T) *storage.ContractRecord {
	t.Helper()
	rec, ok := f.store.Get(mint)
	require.True(t, ok, "contract not in store")
	return rec
}

func TestQuorumAlertFiresOnce(t *testing.T) {
	f := newFixture(t, testConfig(5, 100))

	for i, src := range []string{"a", "b", "c", "d"} {
		f.process(sighting(src, time.Duration(i)*time.Minute))
	}
	assert.Empty(t, f.sender.sent)
	assert.Equal(t, 4, f.record(t).SourceCount)

	f.process(sighting("e", 4*time.Minute))
	primary := f.sender.byKind(alerts.KindPrimary)
	require.Len(t, primary, 1)
	assert.Equal(t, mint, primary[0].Text)
	assert.Equal(t, "@primary", primary[0].Destination)

	f.process(sighting("a", 5*time.Minute))
	assert.Len(t, f.sender.byKind(alerts.KindPrimary), 1)

	rec := f.record(t)
	assert.Equal(t, 5, rec.SourceCount)
	assert.True(t, rec.Alerted)
	require.NotNil(t, rec.QuorumAt)
	assert.Equal(t, base.Add(4*time.Minute), *rec.QuorumAt)
	assert.Equal(t, []string{mint}, f.tracker.ids)

	require.Contains(t, f.saver.last, mint)
	assert.True(t, f.saver.last[mint].Alerted, "flag persisted")
}

func TestRepeatedSightingsCountOnce(t *testing.T) {
	f := newFixture(t, testConfig(5, 100))

	f.process(sighting("a", 0))
	once := f.record(t).SourceCount
	for i := 0; i < 10; i++ {
		f.process(sighting("a", time.Duration(i)*time.Second))
	}
	assert.Equal(t, once, f.record(t).SourceCount)
	assert.Equal(t, 1, f.record(t).SourceCount)
}

func TestChannelPrefixIsOneSource(t *testing.T) {
	f := newFixture(t, testConfig(5, 100))

	f.process(sighting("-1002234923591", 0), sighting("2234923591", time.Minute))
	assert.Equal(t, []string{"2234923591"}, f.record(t).Sources)
}

func TestPrimaryAlertAtMostOnceAnyOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 25; run++ {
		f := newFixture(t, testConfig(4, 100))

		var evs []ingest.Event
		for i := 0; i < 8; i++ {
			src := fmt.Sprintf("src%d", i)
			evs = append(evs, sighting(src, time.Duration(i)*time.Minute))
			evs = append(evs, sighting(src, time.Duration(i)*time.Minute+time.Second))
		}
		rng.Shuffle(len(evs), func(i, j int) { evs[i], evs[j] = evs[j], evs[i] })
		f.process(evs...)

		assert.Len(t, f.sender.byKind(alerts.KindPrimary), 1, "run %d", run)
		assert.Equal(t, 8, f.record(t).SourceCount)
	}
}

func TestFailedSendIsRetried(t *testing.T) {
	f := newFixture(t, testConfig(3, 100))
	f.sender.failures[alerts.KindPrimary] = 1

	f.process(sighting("a", 0), sighting("b", time.Minute), sighting("c", 2*time.Minute))
	assert.False(t, f.record(t).Alerted)
	assert.Empty(t, f.sender.sent)
	assert.False(t, f.saver.last[mint].Alerted)

	// a duplicate sighting triggers re-evaluation
	f.process(sighting("b", 3*time.Minute))
	assert.True(t, f.record(t).Alerted)
	assert.Len(t, f.sender.byKind(alerts.KindPrimary), 1)
	assert.Equal(t, 2, f.sender.attempts)
	assert.Equal(t, 3, f.record(t).SourceCount)
}

func TestEscalation(t *testing.T) {
	f := newFixture(t, testConfig(3, 3))

	f.process(
		sighting("-1001", 0),
		sighting("-1002", time.Minute),
		sighting("-1003", 2*time.Minute),
	)

	require.Len(t, f.sender.byKind(alerts.KindPrimary), 1)
	esc := f.sender.byKind(alerts.KindEscalation)
	require.Len(t, esc, 1)
	assert.Equal(t, "@fast", esc[0].Destination)
	assert.True(t, strings.HasPrefix(esc[0].Text, mint))
	assert.Contains(t, esc[0].Text, "🎯💎🐋")
	assert.Contains(t, esc[0].Text, "Signals15: 3 | Age: 2.0 min")
	assert.True(t, f.record(t).Escalated)

	f.process(sighting("-1004", 3*time.Minute))
	assert.Len(t, f.sender.byKind(alerts.KindEscalation), 1)
}

func TestLateSourceNeverEscalates(t *testing.T) {
	f := newFixture(t, testConfig(3, 4))

	f.process(sighting("a", 0), sighting("b", time.Minute), sighting("c", 2*time.Minute))
	assert.Len(t, f.sender.byKind(alerts.KindPrimary), 1)
	assert.Empty(t, f.sender.byKind(alerts.KindEscalation))

	rec := f.record(t)
	assert.False(t, rec.EscalationDue)
	assert.Equal(t, 3, rec.WindowSignals)

	// inside the window, but after the quorum moment
	f.process(sighting("d", 10*time.Minute))
	f.agg.Maintain(context.Background())

	assert.Empty(t, f.sender.byKind(alerts.KindEscalation))
	rec = f.record(t)
	assert.Equal(t, 4, rec.SourceCount)
	assert.False(t, rec.EscalationDue)
	assert.False(t, rec.Escalated)
}

func TestEscalationRetryKeepsQuorumVerdict(t *testing.T) {
	f := newFixture(t, testConfig(3, 3))
	f.sender.failures[alerts.KindEscalation] = 1

	f.process(
		sighting("-1001", 0),
		sighting("-1002", time.Minute),
		sighting("-1003", 2*time.Minute),
	)
	assert.Len(t, f.sender.byKind(alerts.KindPrimary), 1)
	assert.Empty(t, f.sender.byKind(alerts.KindEscalation))
	assert.True(t, f.record(t).EscalationDue)
	assert.True(t, f.saver.last[mint].EscalationDue, "verdict persisted")

	f.process(sighting("-1004", 4*time.Minute))
	f.agg.Maintain(context.Background())

	esc := f.sender.byKind(alerts.KindEscalation)
	require.Len(t, esc, 1)
	assert.Contains(t, esc[0].Text, "🎯💎🐋🍀")
	assert.Contains(t, esc[0].Text, "Signals15: 3 | Age: 2.0 min")
	assert.True(t, f.record(t).Escalated)

	f.agg.Maintain(context.Background())
	assert.Len(t, f.sender.byKind(alerts.KindEscalation), 1)
}

func TestSlowQuorumNeverEscalates(t *testing.T) {
	f := newFixture(t, testConfig(3, 3))

	f.process(sighting("a", 0), sighting("b", 3*time.Minute), sighting("c", 6*time.Minute))
	f.process(sighting("d", 7*time.Minute))

	assert.Len(t, f.sender.byKind(alerts.KindPrimary), 1)
	assert.Empty(t, f.sender.byKind(alerts.KindEscalation))
	assert.False(t, f.record(t).Escalated)
}

func TestEscalationWaitsForPrimary(t *testing.T) {
	f := newFixture(t, testConfig(2, 2))
	f.sender.failures[alerts.KindPrimary] = 1

	f.process(sighting("a", 0), sighting("b", time.Minute))
	assert.Empty(t, f.sender.sent)
	assert.False(t, f.record(t).Escalated)

	f.agg.Maintain(context.Background())
	require.Len(t, f.sender.sent, 2)
	assert.Equal(t, alerts.KindPrimary, f.sender.sent[0].Kind)
	assert.Equal(t, alerts.KindEscalation, f.sender.sent[1].Kind)
}

func TestDegradedPersistenceHoldsAlerts(t *testing.T) {
	f := newFixture(t, testConfig(2, 100))
	f.saver.setErr(errors.New("disk full"))

	f.process(sighting("a", 0), sighting("b", time.Minute))
	assert.True(t, f.agg.Degraded())
	assert.Empty(t, f.sender.sent)
	assert.False(t, f.record(t).Alerted)

	f.saver.setErr(nil)
	f.agg.Maintain(context.Background())

	assert.False(t, f.agg.Degraded())
	assert.Len(t, f.sender.byKind(alerts.KindPrimary), 1)
	assert.True(t, f.saver.last[mint].Alerted)
}

func TestRetentionPrunesOldContracts(t *testing.T) {
	f := newFixture(t, testConfig(5, 100))
	f.process(sighting("a", 0))

	f.clock = base.Add(23 * time.Hour)
	f.agg.Maintain(context.Background())
	_, ok := f.store.Get(mint)
	assert.True(t, ok)

	f.clock = base.Add(25 * time.Hour)
	f.agg.Maintain(context.Background())
	_, ok = f.store.Get(mint)
	assert.False(t, ok)
	assert.NotContains(t, f.saver.last, mint)
}

func TestRetentionKeepsContractsPastQuorum(t *testing.T) {
	f := newFixture(t, testConfig(2, 100))
	f.process(sighting("a", 0), sighting("b", time.Minute))
	require.Len(t, f.sender.byKind(alerts.KindPrimary), 1)

	f.clock = base.Add(25 * time.Hour)
	f.agg.Maintain(context.Background())
	require.Contains(t, f.saver.last, mint)

	f.process(sighting("a", 25*time.Hour), sighting("b", 25*time.Hour+time.Minute))
	assert.Len(t, f.sender.byKind(alerts.KindPrimary), 1)
	assert.Equal(t, base, f.record(t).FirstSeen)
}

func TestMissingTimestampUsesClock(t *testing.T) {
	f := newFixture(t, testConfig(5, 100))
	f.clock = base.Add(987654321 * time.Nanosecond)

	f.process(ingest.Event{SourceID: "a", Text: mint})
	assert.Equal(t, base.Add(987654*time.Microsecond), f.record(t).FirstSeen)
}

func TestTextWithoutContractIsIgnored(t *testing.T) {
	f := newFixture(t, testConfig(1, 100))
	f.process(ingest.Event{SourceID: "a", Text: "gm, market looks hot today", Timestamp: base})
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 0, f.saver.saves)
}

func TestRunDrainsAndPersistsOnShutdown(t *testing.T) {
	f := newFixture(t, testConfig(3, 100))

	events := make(chan ingest.Event, 8)
	events <- sighting("a", 0)
	events <- sighting("b", time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.agg.Run(ctx, events) }()

	require.Eventually(t, func() bool {
		snap, err := f.agg.Snapshot(context.Background())
		return err == nil && len(snap) == 1 && snap[mint].SourceCount == 2
	}, 2*time.Second, 5*time.Millisecond)

	events <- sighting("c", 2*time.Minute)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	f.saver.mu.Lock()
	last := f.saver.last
	f.saver.mu.Unlock()
	require.Contains(t, last, mint)
	assert.Equal(t, 3, last[mint].SourceCount)
	assert.True(t, last[mint].Alerted)

	_, err := f.agg.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSnapshotIsACopy(t *testing.T) {
	f := newFixture(t, testConfig(5, 100))
	events := make(chan ingest.Event)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.agg.Run(ctx, events)

	events <- sighting("a", 0)
	snap, err := f.agg.Snapshot(ctx)
	require.NoError(t, err)
	snap[mint].Sources = append(snap[mint].Sources, "tampered")

	again, err := f.agg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again[mint].Sources)
}
