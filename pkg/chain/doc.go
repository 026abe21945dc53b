/*
Package chain implements the database orchestrator described by the
engine's rollback-safety contract: a small set of spine tables (slots,
volatile blocks, volatile transactions, indexer identity) plus the four
operations that keep them consistent with every registered indexer.

# Architecture

	┌─────────────────────── chain.Db ────────────────────────┐
	│                                                           │
	│   slots            (slot -> block hash, BE-ordered)      │
	│   volatile_block    (block hash -> VolatileBlock)         │
	│   volatile_tx        (tx hash -> Tx)                        │
	│   indexer_ids         (frozen on first run)                  │
	│                                                           │
	│   RollForward(block)    -> apply one block, all indexers  │
	│   RollBackward(point)   -> undo blocks back to point      │
	│   TrimVolatile()        -> drop blocks past the window     │
	│   Clear()               -> wipe everything, incl. indexers │
	└───────────────────────────────────────────────────────────┘

Every mutating method runs inside a single bbolt write transaction shared
with the registered indexers, so a crash mid-apply can never leave the
spine and an indexer's projection disagreeing about which blocks were
applied. RollForward and RollBackward call env.ConsiderResize() after
their commit, the same "commit then consider growing" ordering the
original LMDB-backed engine used.

# Concurrency

Db's mutating methods are meant to be called from a single writer
goroutine (see pkg/writer). Reads (Tip, VolatileBlock, VolatileTx) may run
concurrently from any goroutine: bbolt's MVCC snapshots give a consistent
view without blocking the writer.
*/
package chain
