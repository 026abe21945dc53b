package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Chain-sync progress
	TipSlot = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hydrant_tip_slot",
			Help: "Slot number of the remote chain tip last observed",
		},
	)

	SyncedSlot = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hydrant_synced_slot",
			Help: "Slot number of the most recently applied block",
		},
	)

	SlotsBehindTip = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hydrant_slots_behind_tip",
			Help: "Difference between the remote tip slot and the locally synced slot",
		},
	)

	BlocksAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hydrant_blocks_applied_total",
			Help: "Total number of RollForward events applied",
		},
	)

	BlocksRolledBackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hydrant_blocks_rolled_back_total",
			Help: "Total number of blocks undone by RollBackward events",
		},
	)

	// Pipeline / writer queue
	WriterQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hydrant_writer_queue_depth",
			Help: "Number of SyncEvents currently buffered for the writer",
		},
	)

	WriterBufferUsageRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hydrant_writer_buffer_usage_ratio",
			Help: "Fraction (0-1) of the writer's bounded channel currently occupied",
		},
	)

	PendingFetchesDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hydrant_pending_fetches_depth",
			Help: "Number of header points buffered awaiting a batched block-fetch",
		},
	)

	BlockFetchBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hydrant_blockfetch_batch_size",
			Help:    "Size of ranged block-fetch requests issued by the pipeline",
			Buckets: prometheus.LinearBuckets(1, 20, 10),
		},
	)

	// Database / KV environment
	ResizeEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hydrant_kv_resize_events_total",
			Help: "Total number of times the KV environment considered and performed a resize",
		},
	)

	ActiveReaderConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hydrant_kv_active_reader_conflicts_total",
			Help: "Total number of resize attempts deferred because of active readers",
		},
	)

	VolatileTxCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hydrant_volatile_tx_count",
			Help: "Number of transactions currently held in the volatile window",
		},
	)

	VolatileBlockCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hydrant_volatile_block_count",
			Help: "Number of blocks currently held in the volatile window",
		},
	)

	TrimDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hydrant_trim_duration_seconds",
			Help:    "Time taken to trim the volatile store past the rollback window",
			Buckets: prometheus.DefBuckets,
		},
	)

	PersistDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hydrant_persist_duration_seconds",
			Help:    "Time taken to fsync the database to durable storage",
			Buckets: prometheus.DefBuckets,
		},
	)

	RollForwardDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hydrant_roll_forward_duration_seconds",
			Help:    "Time taken to apply a single RollForward event, including all indexers",
			Buckets: prometheus.DefBuckets,
		},
	)

	RollBackwardDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hydrant_roll_backward_duration_seconds",
			Help:    "Time taken to apply a single RollBackward event, including all indexers",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Indexer-level metrics
	IndexerTxInsertedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydrant_indexer_tx_inserted_total",
			Help: "Total number of transactions an indexer chose to retain",
		},
		[]string{"indexer_id"},
	)

	IndexerTxDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydrant_indexer_tx_deleted_total",
			Help: "Total number of transactions an indexer removed on rollback",
		},
		[]string{"indexer_id"},
	)
)

func init() {
	prometheus.MustRegister(
		TipSlot,
		SyncedSlot,
		SlotsBehindTip,
		BlocksAppliedTotal,
		BlocksRolledBackTotal,
		WriterQueueDepth,
		WriterBufferUsageRatio,
		PendingFetchesDepth,
		BlockFetchBatchSize,
		ResizeEventsTotal,
		ActiveReaderConflictsTotal,
		VolatileTxCount,
		VolatileBlockCount,
		TrimDuration,
		PersistDuration,
		RollForwardDuration,
		RollBackwardDuration,
		IndexerTxInsertedTotal,
		IndexerTxDeletedTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
