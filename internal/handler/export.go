package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/liamashdown/tokenradar/internal/export"
	"github.com/liamashdown/tokenradar/internal/registry"
	"github.com/liamashdown/tokenradar/internal/storage"
	"github.com/liamashdown/tokenradar/internal/temporal"
	"github.com/sirupsen/logrus"
)

// SightingSnapshotter is served by the aggregator loop
type SightingSnapshotter interface {
	Snapshot(ctx context.Context) (map[string]*storage.ContractRecord, error)
}

// TrackedSnapshotter is served by the monitor loop
type TrackedSnapshotter interface {
	Snapshot(ctx context.Context) (map[string]*storage.TrackedToken, error)
}

const snapshotTimeout = 5 * time.Second

func ExportSightings(src SightingSnapshotter, reg *registry.Registry, filter temporal.Filter, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
		defer cancel()

		records, err := src.Snapshot(ctx)
		if err != nil {
			log.WithError(err).Warn("Sightings export unavailable")
			http.Error(w, `{"error":"snapshot unavailable"}`, http.StatusServiceUnavailable)
			return
		}

		setCSVHeaders(w, "sightings")
		if err := export.WriteSightings(w, records, reg, filter); err != nil {
			log.WithError(err).Error("Failed to write sightings export")
		}
	}
}

func ExportTracked(src TrackedSnapshotter, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
		defer cancel()

		records, err := src.Snapshot(ctx)
		if err != nil {
			log.WithError(err).Warn("Tracked export unavailable")
			http.Error(w, `{"error":"snapshot unavailable"}`, http.StatusServiceUnavailable)
			return
		}

		setCSVHeaders(w, "tracked")
		if err := export.WriteTracked(w, records); err != nil {
			log.WithError(err).Error("Failed to write tracked export")
		}
	}
}

func setCSVHeaders(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s-%s.csv"`, name, time.Now().UTC().Format("20060102-150405")))
	w.WriteHeader(http.StatusOK)
}
