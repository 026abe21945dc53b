/*
Package metrics provides Prometheus metrics collection and exposition for
the chain-indexing engine.

Metrics are defined as package-level variables and registered once via
init()+MustRegister, then updated directly by the packages that own the
events they describe (pkg/chain, pkg/chainsync, pkg/writer, pkg/kv,
pkg/indexer) rather than through a separate polling collector.

# Metrics catalog

Sync progress:

  - hydrant_tip_slot: remote chain tip slot, as last reported by the peer.
  - hydrant_synced_slot: slot of the most recently applied block.
  - hydrant_slots_behind_tip: tip_slot - synced_slot.
  - hydrant_blocks_applied_total / hydrant_blocks_rolled_back_total

Writer backpressure:

  - hydrant_writer_queue_depth: buffered SyncEvents awaiting apply.
  - hydrant_writer_buffer_usage_ratio: queue_depth / BufferSize.

Chain-sync pipeline:

  - hydrant_pending_fetches_depth: header points buffered before flush.
  - hydrant_blockfetch_batch_size: distribution of flushed batch sizes.

KV environment:

  - hydrant_kv_resize_events_total / hydrant_kv_active_reader_conflicts_total

Volatile window and durations:

  - hydrant_volatile_tx_count / hydrant_volatile_block_count
  - hydrant_trim_duration_seconds / hydrant_persist_duration_seconds
  - hydrant_roll_forward_duration_seconds / hydrant_roll_backward_duration_seconds

Indexer activity (labeled by indexer_id):

  - hydrant_indexer_tx_inserted_total / hydrant_indexer_tx_deleted_total

# Usage

	timer := metrics.NewTimer()
	err := db.RollForward(block)
	timer.ObserveDuration(metrics.RollForwardDuration)

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
