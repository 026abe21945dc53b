// Package chain implements the database orchestrator: the spine tables
// (slots, volatile blocks, volatile transactions, indexer identity) plus
// the atomic roll_forward/roll_backward/trim/clear operations that keep
// them and every registered indexer consistent with each other.
package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/Liqwid-Labs/hydrant/pkg/indexer"
	"github.com/Liqwid-Labs/hydrant/pkg/kv"
	"github.com/Liqwid-Labs/hydrant/pkg/model"
)

const (
	bucketSlots       = "slots"
	bucketVolatileTx  = "volatile_tx"
	bucketVolatileBlk = "volatile_block"
	bucketIndexerIDs  = "indexer_ids"
)

// ErrCorrupt indicates the database's spine tables reference data that
// cannot be found, which should only happen if the database was damaged or
// concurrently modified outside this process.
var ErrCorrupt = errors.New("chain: database appears corrupt")

// ErrRolledBackTooFar indicates a roll_backward target slot precedes the
// oldest block still held in the volatile window, which is possible after a
// chain-sync peer was misconfigured to an intersection point further back
// than this engine's retention policy, not necessarily actual corruption.
var ErrRolledBackTooFar = fmt.Errorf("chain: rolled back past retention window: %w", ErrCorrupt)

// ErrIndexerIDsMismatch indicates the configured indexer set does not match
// the one recorded the first time this database was populated.
var ErrIndexerIDsMismatch = errors.New("chain: configured indexer ids do not match database")

// Db is the rollback-safe chain database: an ordered KV spine plus the
// indexers registered against it. All mutating methods are meant to be
// called by a single writer goroutine; reads may run concurrently from any
// goroutine via bbolt's MVCC snapshots.
type Db struct {
	MaxRollbackBlocks int

	env      *kv.Env
	indexers indexer.List
	locks    []*sync.Mutex
}

// New opens (or creates) the spine tables on env and returns a Db wired to
// drive the given indexers. The indexer set's identity is asserted lazily,
// on the first RollForward or RollBackward, matching the original engine's
// behavior of recording identity the first time it is actually needed.
func New(env *kv.Env, maxRollbackBlocks int, indexers indexer.List) (*Db, error) {
	for _, name := range []string{bucketSlots, bucketVolatileTx, bucketVolatileBlk, bucketIndexerIDs} {
		if err := env.CreateDatabase(name); err != nil && !errors.Is(err, kv.ErrDatabaseExists) {
			return nil, fmt.Errorf("chain: opening spine tables: %w", err)
		}
	}

	locks := make([]*sync.Mutex, len(indexers))
	for i := range locks {
		locks[i] = &sync.Mutex{}
	}

	return &Db{
		MaxRollbackBlocks: maxRollbackBlocks,
		env:               env,
		indexers:          indexers,
		locks:             locks,
	}, nil
}

func (d *Db) lockIndexers() {
	for _, l := range d.locks {
		l.Lock()
	}
}

func (d *Db) unlockIndexers() {
	for i := len(d.locks) - 1; i >= 0; i-- {
		d.locks[i].Unlock()
	}
}

// assertIndexerIDs records the configured indexer identity on first use and
// rejects a mismatched configuration on every subsequent call.
func (d *Db) assertIndexerIDs(tx *bolt.Tx) error {
	b := tx.Bucket([]byte(bucketIndexerIDs))
	ids := d.indexers.IDs()
	if len(ids) == 0 {
		ids = []string{"empty"}
	}

	if b.Stats().KeyN == 0 {
		// Each key is the id's big-endian list position followed by the id,
		// so bbolt's byte-ordered iteration returns the ids in list order.
		for i, id := range ids {
			if err := b.Put(append(beBytes(uint64(i)), id...), nil); err != nil {
				return err
			}
		}
		return nil
	}

	var existing []string
	if err := b.ForEach(func(k, _ []byte) error {
		if len(k) < 8 {
			return fmt.Errorf("%w: malformed indexer_ids key", ErrCorrupt)
		}
		existing = append(existing, string(k[8:]))
		return nil
	}); err != nil {
		return err
	}
	if !equalStrings(existing, ids) {
		return fmt.Errorf("%w: expected %v, got %v", ErrIndexerIDsMismatch, existing, ids)
	}
	return nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Tip returns the most recently applied block's point, or the origin point
// if the database is empty.
func (d *Db) Tip() (model.Point, error) {
	var tip model.Point
	err := d.env.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketSlots)).Cursor()
		k, v := c.Last()
		if k == nil {
			tip = model.OriginPoint()
			return nil
		}
		var hash model.BlockHash
		if err := json.Unmarshal(v, &hash); err != nil {
			return err
		}
		tip = model.NewPoint(beUint64(k), hash)
		return nil
	})
	return tip, err
}

// VolatileBlock looks up a block still held in the rollback window.
func (d *Db) VolatileBlock(tx *bolt.Tx, hash model.BlockHash) (model.VolatileBlock, bool, error) {
	data := tx.Bucket([]byte(bucketVolatileBlk)).Get(hash[:])
	if data == nil {
		return model.VolatileBlock{}, false, nil
	}
	var block model.VolatileBlock
	if err := json.Unmarshal(data, &block); err != nil {
		return model.VolatileBlock{}, false, err
	}
	return block, true, nil
}

// VolatileTx looks up a transaction still held in the rollback window.
func (d *Db) VolatileTx(tx *bolt.Tx, hash model.TxHash) (model.Tx, bool, error) {
	data := tx.Bucket([]byte(bucketVolatileTx)).Get(hash[:])
	if data == nil {
		return model.Tx{}, false, nil
	}
	var t model.Tx
	if err := json.Unmarshal(data, &t); err != nil {
		return model.Tx{}, false, err
	}
	return t, true, nil
}

// VolatileTxOutput looks up a single output of a transaction still held in
// the rollback window. It satisfies indexer.VolatileReader.
func (d *Db) VolatileTxOutput(tx *bolt.Tx, pointer model.TxOutputPointer) (model.TxOutput, bool, error) {
	t, ok, err := d.VolatileTx(tx, pointer.Hash)
	if err != nil || !ok {
		return model.TxOutput{}, false, err
	}
	if int(pointer.Index) >= len(t.Outputs) {
		return model.TxOutput{}, false, nil
	}
	return t.Outputs[pointer.Index], true, nil
}
