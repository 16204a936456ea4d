package quilldb

import (
	"github.com/quilldb/quilldb/pkg/cache"
	"github.com/quilldb/quilldb/pkg/metrics"
	"github.com/quilldb/quilldb/pkg/sync"
)

// TableStats reports one table's index footprint.
type TableStats struct {
	InvertedTerms int
	VectorRows    int
}

// Stats is the snapshot returned by getStats(): cache accounting, per-table
// index sizes, and (when sync is enabled) every registered adapter's state.
type Stats struct {
	State       State
	Cache       cache.Stats
	Tables      map[string]TableStats
	SyncStates  map[string]sync.State
}

// GetStats reports the facade's point-in-time operational snapshot. Unlike
// the other data-plane methods, GetStats is callable in any state so a
// caller can inspect a database that failed to reach StateReady.
func (db *DB) GetStats() Stats {
	db.mu.RLock()
	state := db.state
	db.mu.RUnlock()

	out := Stats{State: state, Tables: map[string]TableStats{}}
	if db.cache != nil {
		out.Cache = db.cache.Stats()
	}
	for name := range db.schema {
		ti, err := db.indexes.For(name)
		if err != nil {
			continue
		}
		terms := 0
		if ti.Inverted != nil {
			terms = ti.Inverted.TermCount()
		}
		vecRows := 0
		if ti.Vector != nil {
			vecRows = ti.Vector.Len()
		}
		out.Tables[name] = TableStats{InvertedTerms: terms, VectorRows: vecRows}
		invRows := 0
		if ti.Inverted != nil {
			invRows = ti.Inverted.TotalDocs()
		}
		metrics.IndexSizeRows.WithLabelValues(name, "inverted").Set(float64(invRows))
		metrics.IndexSizeRows.WithLabelValues(name, "vector").Set(float64(vecRows))
	}
	if db.syncMgr != nil {
		out.SyncStates = map[string]sync.State{}
		for _, name := range db.syncMgr.AdapterNames() {
			if st, err := db.syncMgr.State(name); err == nil {
				out.SyncStates[name] = st
				metrics.SyncAdapterState.WithLabelValues(name).Set(syncStateValue(st))
			}
		}
	}
	return out
}

func syncStateValue(s sync.State) float64 {
	switch s {
	case sync.StateIdle:
		return 0
	case sync.StateSyncing:
		return 1
	case sync.StateError:
		return 2
	default:
		return -1
	}
}
