/*
Package metrics provides Prometheus metrics collection and exposition for
quilldb.

The metrics package defines and registers every quilldb collector using the
Prometheus client library, giving an embedding application observability
into query throughput and latency, search and index footprint, cache
effectiveness, key-rotation progress, and sync adapter health. Metrics are
exposed via an http.Handler the embedding application mounts on its own
server — this package never starts one itself, since quilldb is a library,
not a daemon.

# Metrics Catalog

Query Engine:

  - quilldb_query_operations_total{table,operation} (Counter)
  - quilldb_query_duration_seconds{table,operation} (Histogram)

Search & Index:

  - quilldb_search_duration_seconds{table,kind} (Histogram) — kind is
    "search", "vector", or "hybrid"
  - quilldb_index_size_rows{table,kind} (Gauge) — kind is "inverted" or
    "vector"

Query Cache:

  - quilldb_cache_hits_total (Counter)
  - quilldb_cache_queries_total (Counter)
  - quilldb_cache_entries (Gauge)

Key Rotation:

  - quilldb_rotation_in_progress (Gauge, 0/1)
  - quilldb_rotation_rows_rewritten_total (Counter)
  - quilldb_decrypt_failures_total{table,column} (Counter)

Sync:

  - quilldb_sync_adapter_state{adapter} (Gauge, 0=idle 1=syncing 2=error)
  - quilldb_sync_pushes_total{adapter,outcome} (Counter)
  - quilldb_sync_conflicts_total (Counter)
  - quilldb_changelog_sequence (Gauge)

Memory Layer:

  - quilldb_memory_consolidations_total (Counter)

# Usage

	timer := metrics.NewTimer()
	err := engine.Insert(ctx, "notes", row)
	timer.ObserveDurationVec(metrics.QueryDuration, "notes", "insert")
	metrics.QueryOperationsTotal.WithLabelValues("notes", "insert").Inc()

	// Mount the exposition endpoint on the embedding app's own server:
	http.Handle("/metrics", metrics.Handler())
*/
package metrics
