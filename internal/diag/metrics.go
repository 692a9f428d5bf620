// Package diag implements the diagnostics interface: a read-only storage
// report built by a parallel walk of every registered store, plus the
// engine's Prometheus metric families (spec.md §4.15, §6). A StorageReport
// walk never runs inside a commit window and never mutates anything it
// touches.
package diag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the engine's Prometheus metric family set, named in the same
// Db<Subsystem><Noun> convention the teacher's storage-engine metrics use
// (e.g. erigon-lib's DbCommit*/DbPgops* families), adapted to IcyDB's
// commit/index/query vocabulary.
type Metrics struct {
	CommitsTotal                  *prometheus.CounterVec
	CommitDurationSeconds         prometheus.Histogram
	RowsUpsertedTotal             prometheus.Counter
	RowsDeletedTotal               prometheus.Counter
	IndexOpsTotal                  *prometheus.CounterVec
	LoadQueriesTotal                *prometheus.CounterVec
	RecoveryDurationSeconds         prometheus.Histogram
	StorageReportDurationSeconds    prometheus.Histogram
}

// NewMetrics registers every metric family against reg. Callers typically
// pass prometheus.NewRegistry() so tests can construct isolated instances
// rather than colliding on the global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CommitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "icydb_commits_total",
			Help: "Completed commits, by kind (Save/Delete).",
		}, []string{"kind"}),
		CommitDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "icydb_commit_duration_seconds",
			Help:    "Wall time of begin_commit through finish_commit.",
			Buckets: prometheus.DefBuckets,
		}),
		RowsUpsertedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "icydb_rows_upserted_total",
			Help: "Rows inserted or overwritten by SaveExecutor.",
		}),
		RowsDeletedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "icydb_rows_deleted_total",
			Help: "Rows removed by DeleteExecutor.",
		}),
		IndexOpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "icydb_index_ops_total",
			Help: "Secondary-index bucket mutations, by entity and index.",
		}, []string{"entity", "index"}),
		LoadQueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "icydb_load_queries_total",
			Help: "LoadExecutor invocations, by resolved access-path shape.",
		}, []string{"access_shape"}),
		RecoveryDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "icydb_recovery_duration_seconds",
			Help:    "Wall time of EnsureRecovered's marker replay plus index rebuild.",
			Buckets: prometheus.DefBuckets,
		}),
		StorageReportDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "icydb_storage_report_duration_seconds",
			Help:    "Wall time of a full BuildStorageReport walk.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
