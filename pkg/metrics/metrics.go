// Package metrics exposes the Prometheus registry used by the harvester.
// All metrics are defined in their respective packages (client, cache,
// scheduler, assets, dataset) via promauto; this package only serves them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the harvester.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler exposing the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done. A harvest run is a batch
// job, so the endpoint only lives as long as the run.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Metrics Documentation
//
// API Metrics (pkg/client):
//   - harvester_api_requests_total{endpoint, status} (Counter)
//   - harvester_api_request_duration_seconds{endpoint} (Histogram)
//   - harvester_api_errors_total{class} (Counter)
//   - harvester_api_retries_total{error_class} (Counter)
//   - harvester_api_retry_exhausted_total{error_class} (Counter)
//
// Cache Metrics (pkg/cache):
//   - harvester_cache_hits_total{layer="redis"} (Counter)
//   - harvester_cache_misses_total (Counter)
//   - harvester_cache_size_bytes{layer="redis"} (Gauge)
//   - harvester_304_responses_total (Counter)
//   - harvester_cache_errors_total{operation} (Counter)
//
// Scheduler Metrics (pkg/scheduler):
//   - harvester_scheduler_in_flight{scheduler} (Gauge): slots currently held
//
// Dataset Metrics (pkg/dataset):
//   - harvester_dataset_records_total{result} (Counter): ok / dropped
//
// Asset Metrics (pkg/assets):
//   - harvester_asset_downloads_total{outcome} (Counter): success / skipped / failed
//   - harvester_asset_retries_total (Counter)
//   - harvester_asset_download_duration_seconds (Histogram)
//
// Example Prometheus Queries:
//
//   # Sprite failure ratio
//   sum(harvester_asset_downloads_total{outcome="failed"}) /
//   sum(harvester_asset_downloads_total)
//
//   # Scheduler saturation
//   harvester_scheduler_in_flight{scheduler="assets"}
