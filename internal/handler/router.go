// Package handler serves the ops HTTP surface: health, readiness,
// Prometheus metrics and CSV exports.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Deps collects what the router serves
type Deps struct {
	Readiness  *Readiness
	Components []Degrader
	Sightings  http.HandlerFunc
	Tracked    http.HandlerFunc
	Log        *logrus.Logger
}

// NewRouter wires the ops endpoints
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Log))

	r.Get("/health", Health())
	r.Get("/ready", Ready(d.Readiness, d.Components...))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/export", func(r chi.Router) {
		r.Get("/sightings.csv", d.Sightings)
		r.Get("/tracked.csv", d.Tracked)
	})
	return r
}

func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"duration": time.Since(start).String(),
			}).Debug("HTTP request")
		})
	}
}
