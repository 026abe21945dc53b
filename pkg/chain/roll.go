package chain

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/Liqwid-Labs/hydrant/pkg/log"
	"github.com/Liqwid-Labs/hydrant/pkg/metrics"
	"github.com/Liqwid-Labs/hydrant/pkg/model"
)

// RollForward applies a newly announced block: every transaction (and any
// datum it carries) is offered to each registered indexer inside a single
// write transaction, and the block's envelope is recorded in the volatile
// window. A resize check runs after the commit, matching the original
// engine's "commit then consider growing" ordering.
func (d *Db) RollForward(block model.RawBlock) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RollForwardDuration)

	d.lockIndexers()
	defer d.unlockIndexers()

	err := d.env.Update(func(wtxn *bolt.Tx) error {
		if err := d.assertIndexerIDs(wtxn); err != nil {
			return err
		}

		var txHashes []model.TxHash
		var datumHashes []model.DatumHash

		for _, rawTx := range block.Txs() {
			tx, datums := model.ParseTx(rawTx)

			didInsertTx := false
			for _, idx := range d.indexers {
				did, err := idx.InsertTx(d, wtxn, &tx)
				if err != nil {
					return fmt.Errorf("indexer %q: insert_tx: %w", idx.ID(), err)
				}
				didInsertTx = didInsertTx || did
			}
			if didInsertTx {
				txHashes = append(txHashes, tx.Hash)
				data, err := json.Marshal(tx)
				if err != nil {
					return err
				}
				if err := wtxn.Bucket([]byte(bucketVolatileTx)).Put(tx.Hash[:], data); err != nil {
					return err
				}
			}

			for hash, datum := range datums {
				didInsertDatum := false
				for _, idx := range d.indexers {
					did, err := idx.InsertDatum(d, wtxn, hash, datum)
					if err != nil {
						return fmt.Errorf("indexer %q: insert_datum: %w", idx.ID(), err)
					}
					didInsertDatum = didInsertDatum || did
				}
				if didInsertDatum {
					datumHashes = append(datumHashes, hash)
				}
			}
		}

		vb := model.VolatileBlock{
			Hash:   block.Hash(),
			Number: block.Number(),
			Slot:   block.Slot(),
			Txs:    txHashes,
			Datums: datumHashes,
		}
		data, err := json.Marshal(vb)
		if err != nil {
			return err
		}
		if err := wtxn.Bucket([]byte(bucketVolatileBlk)).Put(vb.Hash[:], data); err != nil {
			return err
		}

		hashData, err := json.Marshal(vb.Hash)
		if err != nil {
			return err
		}
		return wtxn.Bucket([]byte(bucketSlots)).Put(beBytes(vb.Slot), hashData)
	})
	if err != nil {
		return fmt.Errorf("chain: roll_forward: %w", err)
	}

	metrics.BlocksAppliedTotal.Inc()
	metrics.SyncedSlot.Set(float64(block.Slot()))
	d.reportVolatileCounts()
	if err := d.env.ConsiderResize(); err != nil {
		log.WithComponent("chain").Warn().Err(err).Msg("resize deferred")
	}
	return nil
}

// RollBackward undoes every block from the current tip down to (but not
// including) the given point, in reverse order, since a transaction may
// spend outputs produced earlier in the same block. Rolling back to the
// origin point clears the database entirely.
func (d *Db) RollBackward(point model.Point) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RollBackwardDuration)

	if point.Origin {
		return d.Clear()
	}
	fromSlot := point.Slot + 1

	d.lockIndexers()
	defer d.unlockIndexers()

	var undone int
	err := d.env.Update(func(wtxn *bolt.Tx) error {
		if err := d.assertIndexerIDs(wtxn); err != nil {
			return err
		}

		slots := wtxn.Bucket([]byte(bucketSlots))
		c := slots.Cursor()

		var toUndo []struct {
			slot uint64
			hash model.BlockHash
		}
		for k, v := c.Last(); k != nil && beUint64(k) >= fromSlot; k, v = c.Prev() {
			var hash model.BlockHash
			if err := json.Unmarshal(v, &hash); err != nil {
				return err
			}
			toUndo = append(toUndo, struct {
				slot uint64
				hash model.BlockHash
			}{beUint64(k), hash})
		}

		for _, entry := range toUndo {
			block, ok, err := d.VolatileBlock(wtxn, entry.hash)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: block %s not found while rolling back", ErrRolledBackTooFar, entry.hash)
			}

			for i := len(block.Txs) - 1; i >= 0; i-- {
				tx, ok, err := d.VolatileTx(wtxn, block.Txs[i])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: tx %s not found while rolling back", ErrCorrupt, block.Txs[i])
				}
				for _, idx := range d.indexers {
					if err := idx.DeleteTx(d, wtxn, &tx); err != nil {
						return fmt.Errorf("indexer %q: delete_tx: %w", idx.ID(), err)
					}
				}
			}
			for i := len(block.Datums) - 1; i >= 0; i-- {
				for _, idx := range d.indexers {
					if err := idx.DeleteDatum(d, wtxn, block.Datums[i]); err != nil {
						return fmt.Errorf("indexer %q: delete_datum: %w", idx.ID(), err)
					}
				}
			}

			if err := slots.Delete(beBytes(entry.slot)); err != nil {
				return err
			}
			if err := wtxn.Bucket([]byte(bucketVolatileBlk)).Delete(entry.hash[:]); err != nil {
				return err
			}
			undone++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("chain: roll_backward: %w", err)
	}

	metrics.BlocksRolledBackTotal.Add(float64(undone))
	d.reportVolatileCounts()
	if err := d.env.ConsiderResize(); err != nil {
		log.WithComponent("chain").Warn().Err(err).Msg("resize deferred")
	}
	return nil
}

// TrimVolatile drops every block (and its transactions) older than
// MaxRollbackBlocks from the current tip, since those blocks can no longer
// be rolled back and their volatile-window copies are pure overhead.
func (d *Db) TrimVolatile() error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.TrimDuration)

	err := d.env.Update(func(wtxn *bolt.Tx) error {
		slots := wtxn.Bucket([]byte(bucketSlots))
		volBlocks := wtxn.Bucket([]byte(bucketVolatileBlk))
		volTx := wtxn.Bucket([]byte(bucketVolatileTx))

		c := slots.Cursor()
		i := 0
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			i++
			if i <= d.MaxRollbackBlocks {
				continue
			}
			var hash model.BlockHash
			if err := json.Unmarshal(v, &hash); err != nil {
				return err
			}
			data := volBlocks.Get(hash[:])
			if data == nil {
				// already trimmed past this point
				break
			}
			var block model.VolatileBlock
			if err := json.Unmarshal(data, &block); err != nil {
				return err
			}
			for j := len(block.Txs) - 1; j >= 0; j-- {
				if err := volTx.Delete(block.Txs[j][:]); err != nil {
					return err
				}
			}
			if err := volBlocks.Delete(hash[:]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	d.reportVolatileCounts()
	if err := d.env.ConsiderResize(); err != nil {
		log.WithComponent("chain").Warn().Err(err).Msg("resize deferred")
	}
	return nil
}

// Clear wipes every spine table and every registered indexer's state,
// returning the database to a freshly created state.
func (d *Db) Clear() error {
	d.lockIndexers()
	defer d.unlockIndexers()

	err := d.env.Update(func(wtxn *bolt.Tx) error {
		for _, name := range []string{bucketSlots, bucketVolatileBlk, bucketVolatileTx, bucketIndexerIDs} {
			if err := clearBucket(wtxn, name); err != nil {
				return err
			}
		}
		for _, idx := range d.indexers {
			if err := idx.Clear(wtxn); err != nil {
				return fmt.Errorf("indexer %q: clear: %w", idx.ID(), err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("chain: clear: %w", err)
	}
	d.reportVolatileCounts()
	return d.env.ConsiderResize()
}

// reportVolatileCounts refreshes the volatile-window size gauges from the
// live bucket key counts. Best-effort: a read failure here should not fail
// the mutating operation that just committed, so errors are only logged.
func (d *Db) reportVolatileCounts() {
	var txCount, blockCount int
	err := d.env.View(func(tx *bolt.Tx) error {
		txCount = tx.Bucket([]byte(bucketVolatileTx)).Stats().KeyN
		blockCount = tx.Bucket([]byte(bucketVolatileBlk)).Stats().KeyN
		return nil
	})
	if err != nil {
		log.WithComponent("chain").Warn().Err(err).Msg("volatile count metrics unavailable")
		return
	}
	metrics.VolatileTxCount.Set(float64(txCount))
	metrics.VolatileBlockCount.Set(float64(blockCount))
}

func clearBucket(tx *bolt.Tx, name string) error {
	c := tx.Bucket([]byte(name)).Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		if err := c.Delete(); err != nil {
			return err
		}
	}
	return nil
}

// Persist flushes the database to durable storage.
func (d *Db) Persist() error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PersistDuration)
	return d.env.Persist()
}

// Snapshot writes a consistent point-in-time copy of the database to path.
func (d *Db) Snapshot(path string, overwrite bool) error {
	return d.env.Snapshot(path, overwrite)
}
