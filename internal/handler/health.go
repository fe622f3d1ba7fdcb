package handler

import (
	"net/http"
	"sync/atomic"

	"github.com/liamashdown/tokenradar/internal/metrics"
)

// Degrader is implemented by the aggregator and the monitor
type Degrader interface {
	Degraded() bool
}

// Readiness flips to ready once stores are loaded and the loops run
type Readiness struct {
	started atomic.Bool
}

func (r *Readiness) MarkStarted() { r.started.Store(true) }

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		metrics.RecordHealthCheck(true)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}
}

// Ready fails until started and while any component cannot persist
func Ready(state *Readiness, components ...Degrader) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !state.started.Load() {
			metrics.RecordHealthCheck(false)
			http.Error(w, `{"status":"starting"}`, http.StatusServiceUnavailable)
			return
		}
		for _, c := range components {
			if c.Degraded() {
				metrics.RecordHealthCheck(false)
				http.Error(w, `{"status":"degraded"}`, http.StatusServiceUnavailable)
				return
			}
		}
		metrics.RecordHealthCheck(true)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}
