// Package indexer defines the pluggable projection contract the database
// orchestrator drives on every roll_forward/roll_backward/clear, plus a
// reference UTxO-set indexer built on top of it.
package indexer

import (
	bolt "go.etcd.io/bbolt"

	"github.com/Liqwid-Labs/hydrant/pkg/model"
)

// VolatileReader is the subset of the chain database an indexer needs
// while deciding how to undo a transaction: looking up an output that was
// spent earlier in the still-volatile window so it can be re-inserted.
type VolatileReader interface {
	VolatileTxOutput(tx *bolt.Tx, pointer model.TxOutputPointer) (model.TxOutput, bool, error)
}

// Indexer is a pluggable projection over the chain. Every hook runs inside
// the same bbolt write transaction the orchestrator uses to update its own
// spine tables, so an indexer's updates are atomic with roll_forward,
// roll_backward and clear.
//
// InsertTx/InsertDatum/InsertScript return whether the indexer chose to
// retain the given data. For InsertTx and InsertDatum the orchestrator ORs
// these across all indexers to decide whether the transaction/datum needs
// to stay in the volatile window at all (an indexer that returns false for
// everything effectively opts the chain database out of keeping data it
// will never need to undo). chain.Db does not call InsertScript or
// DeleteScript.
type Indexer interface {
	// ID identifies this indexer's configuration. It is recorded on first
	// run and compared on every subsequent run; a mismatch means the set
	// of indexers (or their filters) changed without a fresh database,
	// which the orchestrator treats as fatal rather than silently
	// producing an inconsistent projection.
	ID() string

	InsertTx(db VolatileReader, tx *bolt.Tx, t *model.Tx) (bool, error)
	DeleteTx(db VolatileReader, tx *bolt.Tx, t *model.Tx) error

	InsertDatum(db VolatileReader, tx *bolt.Tx, hash model.DatumHash, datum model.Datum) (bool, error)
	DeleteDatum(db VolatileReader, tx *bolt.Tx, hash model.DatumHash) error

	InsertScript(db VolatileReader, tx *bolt.Tx, hash model.ScriptHash, script model.Script) (bool, error)
	DeleteScript(db VolatileReader, tx *bolt.Tx, hash model.ScriptHash) error

	Clear(tx *bolt.Tx) error
}

// List is an ordered collection of indexers. The orchestrator always locks
// and invokes them in this order, so that two indexers touching related
// state (e.g. one deriving from another's tables) behave deterministically
// across restarts.
type List []Indexer

// IDs returns the indexer identities in list order, the shape persisted to
// and compared against the indexer_ids table.
func (l List) IDs() []string {
	ids := make([]string, len(l))
	for i, idx := range l {
		ids[i] = idx.ID()
	}
	return ids
}

// BaseIndexer provides no-op defaults for every hook so a concrete indexer
// only needs to implement the ones it cares about, mirroring the default
// trait methods the original engine's Indexer trait provided.
type BaseIndexer struct{}

func (BaseIndexer) InsertTx(VolatileReader, *bolt.Tx, *model.Tx) (bool, error) { return false, nil }
func (BaseIndexer) DeleteTx(VolatileReader, *bolt.Tx, *model.Tx) error         { return nil }

func (BaseIndexer) InsertDatum(VolatileReader, *bolt.Tx, model.DatumHash, model.Datum) (bool, error) {
	return false, nil
}
func (BaseIndexer) DeleteDatum(VolatileReader, *bolt.Tx, model.DatumHash) error { return nil }

func (BaseIndexer) InsertScript(VolatileReader, *bolt.Tx, model.ScriptHash, model.Script) (bool, error) {
	return false, nil
}
func (BaseIndexer) DeleteScript(VolatileReader, *bolt.Tx, model.ScriptHash) error { return nil }
