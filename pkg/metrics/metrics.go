package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Query engine metrics
	QueryOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quilldb_query_operations_total",
			Help: "Total number of query-engine operations by table and operation",
		},
		[]string{"table", "operation"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quilldb_query_duration_seconds",
			Help:    "Query-engine operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table", "operation"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quilldb_search_duration_seconds",
			Help:    "Search latency in seconds by search kind (search, vector, hybrid)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table", "kind"},
	)

	// Index metrics
	IndexSizeRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quilldb_index_size_rows",
			Help: "Number of indexed rows by table and index kind (inverted, vector)",
		},
		[]string{"table", "kind"},
	)

	// Query cache metrics
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quilldb_cache_hits_total",
			Help: "Total number of query-cache hits",
		},
	)

	CacheQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quilldb_cache_queries_total",
			Help: "Total number of query-cache lookups",
		},
	)

	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quilldb_cache_entries",
			Help: "Current number of entries held by the query cache",
		},
	)

	// Encryption / key rotation metrics
	RotationInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quilldb_rotation_in_progress",
			Help: "Whether an encryption key rotation is currently in progress (1) or not (0)",
		},
	)

	RotationRowsRewritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quilldb_rotation_rows_rewritten_total",
			Help: "Total number of rows rewritten by key rotation passes",
		},
	)

	DecryptFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quilldb_decrypt_failures_total",
			Help: "Total number of field-decryption failures by table and column",
		},
		[]string{"table", "column"},
	)

	// Sync metrics
	SyncAdapterState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quilldb_sync_adapter_state",
			Help: "Current sync adapter state (0=idle, 1=syncing, 2=error) by adapter name",
		},
		[]string{"adapter"},
	)

	SyncPushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quilldb_sync_pushes_total",
			Help: "Total number of sync adapter push attempts by adapter and outcome",
		},
		[]string{"adapter", "outcome"},
	)

	SyncConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quilldb_sync_conflicts_total",
			Help: "Total number of inbound sync conflicts resolved by last-writer-wins",
		},
	)

	ChangelogSequence = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quilldb_changelog_sequence",
			Help: "Highest assigned change-set record sequence number",
		},
	)

	// Memory layer metrics
	MemoryConsolidationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quilldb_memory_consolidations_total",
			Help: "Total number of memory records removed by consolidation passes",
		},
	)
)

func init() {
	prometheus.MustRegister(QueryOperationsTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(IndexSizeRows)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheQueriesTotal)
	prometheus.MustRegister(CacheEntries)
	prometheus.MustRegister(RotationInProgress)
	prometheus.MustRegister(RotationRowsRewritten)
	prometheus.MustRegister(DecryptFailuresTotal)
	prometheus.MustRegister(SyncAdapterState)
	prometheus.MustRegister(SyncPushesTotal)
	prometheus.MustRegister(SyncConflictsTotal)
	prometheus.MustRegister(ChangelogSequence)
	prometheus.MustRegister(MemoryConsolidationsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
