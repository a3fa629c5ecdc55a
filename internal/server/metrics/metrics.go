// Package metrics exposes Prometheus instrumentation for the drive layer.
// Counters are registered at init through promauto and updated from the
// service and retrieval layers.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Origin label values.
const (
	OriginLocal  = "local"
	OriginRemote = "remote"
)

var (
	filesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_files_created_total",
			Help: "Number of drive files created, by owner origin and origin host.",
		},
		[]string{"origin", "host"},
	)

	bytesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_bytes_ingested_total",
			Help: "Original bytes accepted into storage, by owner origin and origin host.",
		},
		[]string{"origin", "host"},
	)

	dedupHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drive_dedup_hits_total",
			Help: "Uploads answered with an existing identical file.",
		},
	)

	evictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drive_evictions_total",
			Help: "Files evicted to reclaim remote quota.",
		},
	)

	filesDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_files_deleted_total",
			Help: "Drive files tombstoned, by owner origin.",
		},
		[]string{"origin"},
	)

	retrievalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_retrieval_requests_total",
			Help: "File retrieval requests, by response status.",
		},
		[]string{"status"},
	)

	retrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drive_retrieval_duration_seconds",
			Help:    "File retrieval latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func origin(local bool) string {
	if local {
		return OriginLocal
	}
	return OriginRemote
}

// FileCreated records a successful ingestion. host is the remote origin
// instance, empty for local owners.
func FileCreated(local bool, host string, size int64) {
	filesCreatedTotal.WithLabelValues(origin(local), host).Inc()
	bytesIngestedTotal.WithLabelValues(origin(local), host).Add(float64(size))
}

// DedupHit records an upload that matched an existing file.
func DedupHit() { dedupHitsTotal.Inc() }

// Evicted records a quota eviction.
func Evicted() { evictionsTotal.Inc() }

// FileDeleted records a tombstoned file.
func FileDeleted(local bool) {
	filesDeletedTotal.WithLabelValues(origin(local)).Inc()
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware instruments retrieval requests with a count per status and a
// latency histogram.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		retrievalRequests.WithLabelValues(strconv.Itoa(sw.status)).Inc()
		retrievalDuration.Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
