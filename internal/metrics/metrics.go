package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenradar_events_ingested_total",
			Help: "Total number of inbound events accepted by the ingest queue",
		},
		[]string{"source"}, // telegram, websocket
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tokenradar_events_dropped_total",
			Help: "Total number of inbound events dropped because the queue was full",
		},
	)

	// Aggregation metrics
	Sightings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenradar_sightings_total",
			Help: "Total number of contract sightings by outcome",
		},
		[]string{"result"}, // new_contract, new_source, duplicate
	)

	EventProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tokenradar_event_processing_duration_seconds",
			Help:    "Duration of inbound event processing",
			Buckets: prometheus.DefBuckets,
		},
	)

	QuorumReached = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tokenradar_quorum_reached_total",
			Help: "Total number of contracts that reached the source quorum",
		},
	)

	ContractsTracked = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokenradar_contracts",
			Help: "Number of records held per store",
		},
		[]string{"store"}, // sightings, tracked
	)

	// Alert metrics
	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenradar_alerts_sent_total",
			Help: "Total number of alert send attempts",
		},
		[]string{"kind", "status"}, // primary/escalation/growth, success/error
	)

	AlertsHeld = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenradar_alerts_held_total",
			Help: "Total number of alerts held back while persistence is failing",
		},
		[]string{"kind"},
	)

	SenderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenradar_sender_errors_total",
			Help: "Total number of errors returned by individual alert transports",
		},
		[]string{"sender"},
	)

	// Persistence metrics
	PersistOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenradar_persist_operations_total",
			Help: "Total number of store snapshot writes",
		},
		[]string{"store", "status"},
	)

	PersistDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokenradar_persist_duration_seconds",
			Help:    "Duration of store snapshot writes",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"store"},
	)

	PersistDegraded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokenradar_persist_degraded",
			Help: "1 while the last snapshot write of a store failed",
		},
		[]string{"store"},
	)

	// Market data metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenradar_api_requests_total",
			Help: "Total number of market data API requests",
		},
		[]string{"api", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokenradar_api_request_duration_seconds",
			Help:    "Duration of market data API requests",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"api", "endpoint"},
	)

	MonitorCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tokenradar_monitor_cycle_duration_seconds",
			Help:    "Duration of a growth monitor polling cycle",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	MonitorFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenradar_monitor_fetches_total",
			Help: "Total number of valuation fetches by outcome",
		},
		[]string{"result"}, // ok, empty, error
	)

	// System health
	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenradar_health_checks_total",
			Help: "Total number of health check requests",
		},
		[]string{"status"}, // healthy/unhealthy
	)
)

// RecordSighting records the outcome of applying one sighting
func RecordSighting(result string) {
	Sightings.WithLabelValues(result).Inc()
}

// RecordAlert records an alert send attempt
func RecordAlert(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	AlertsSent.WithLabelValues(kind, status).Inc()
}

// RecordPersist records a snapshot write and updates the degraded gauge
func RecordPersist(store string, duration time.Duration, err error) {
	status := "success"
	degraded := 0.0
	if err != nil {
		status = "error"
		degraded = 1
	}
	PersistOps.WithLabelValues(store, status).Inc()
	PersistDuration.WithLabelValues(store).Observe(duration.Seconds())
	PersistDegraded.WithLabelValues(store).Set(degraded)
}

// RecordAPIRequest records API request metrics
func RecordAPIRequest(api, endpoint string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	APIRequests.WithLabelValues(api, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(api, endpoint).Observe(duration.Seconds())
}

// RecordHealthCheck records health check status
func RecordHealthCheck(healthy bool) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	HealthChecks.WithLabelValues(status).Inc()
}
