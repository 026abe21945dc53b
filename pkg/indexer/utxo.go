package indexer

import (
	"bytes"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/Liqwid-Labs/hydrant/pkg/kv"
	"github.com/Liqwid-Labs/hydrant/pkg/log"
	"github.com/Liqwid-Labs/hydrant/pkg/metrics"
	"github.com/Liqwid-Labs/hydrant/pkg/model"
)

// UtxoIndexerBuilder configures an optional address/asset allow-list before
// constructing a UtxoIndexer. With no filters set, every output is kept.
type UtxoIndexerBuilder struct {
	id        string
	addresses []model.Address
	assets    []model.AssetID
}

// NewUtxoIndexerBuilder starts a builder for an indexer identified by id.
// id becomes part of the indexer_ids identity invariant and of this
// indexer's private bucket names, so two UtxoIndexers with different
// filters must be given different ids.
func NewUtxoIndexerBuilder(id string) *UtxoIndexerBuilder {
	return &UtxoIndexerBuilder{id: id}
}

// Address adds an address to the allow-list. Once any address is added,
// only outputs paying one of the allow-listed addresses are retained.
func (b *UtxoIndexerBuilder) Address(addr model.Address) *UtxoIndexerBuilder {
	b.addresses = append(b.addresses, addr)
	return b
}

// Asset adds an asset id to the allow-list. Once any asset is added, only
// outputs carrying one of the allow-listed assets are retained.
func (b *UtxoIndexerBuilder) Asset(asset model.AssetID) *UtxoIndexerBuilder {
	b.assets = append(b.assets, asset)
	return b
}

// Build constructs the UtxoIndexer, creating its private bucket set on env.
func (b *UtxoIndexerBuilder) Build(env *kv.Env) (*UtxoIndexer, error) {
	return newUtxoIndexer(env, b.id, b.addresses, b.assets)
}

// UtxoIndexer projects the live UTxO set, secondary-indexed by address and
// by asset, from the tx stream. The address and asset filters are
// allow-lists: an output is kept when every configured filter matches it,
// and every output is kept when no filter is configured.
type UtxoIndexer struct {
	BaseIndexer

	id                        string
	env                       *kv.Env
	utxosB, byAddrB, byAssetB string

	addresses []model.Address
	assets    []model.AssetID
}

func newUtxoIndexer(env *kv.Env, id string, addresses []model.Address, assets []model.AssetID) (*UtxoIndexer, error) {
	utxosB := "utxo:" + id + ":utxos"
	byAddrB := "utxo:" + id + ":by_address"
	byAssetB := "utxo:" + id + ":by_asset"

	for _, name := range []string{utxosB, byAddrB, byAssetB} {
		if err := env.CreateDatabase(name); err != nil {
			return nil, fmt.Errorf("indexer: utxo %q: %w", id, err)
		}
	}

	return &UtxoIndexer{
		id:        id,
		env:       env,
		utxosB:    utxosB,
		byAddrB:   byAddrB,
		byAssetB:  byAssetB,
		addresses: addresses,
		assets:    assets,
	}, nil
}

// ID returns the indexer's configured identity.
func (u *UtxoIndexer) ID() string { return u.id }

// Utxos returns every output currently held in the live set. Intended for
// tests and operator tooling, not the hot ingestion path.
func (u *UtxoIndexer) Utxos() ([]struct {
	Pointer model.TxOutputPointer
	Output  model.TxOutput
}, error) {
	var out []struct {
		Pointer model.TxOutputPointer
		Output  model.TxOutput
	}
	err := u.env.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(u.utxosB))
		return b.ForEach(func(k, v []byte) error {
			pointer, ok := decodePointer(k)
			if !ok {
				return fmt.Errorf("indexer: corrupt utxo pointer key")
			}
			var output model.TxOutput
			if err := json.Unmarshal(v, &output); err != nil {
				return err
			}
			out = append(out, struct {
				Pointer model.TxOutputPointer
				Output  model.TxOutput
			}{pointer, output})
			return nil
		})
	})
	return out, err
}

// keep reports whether an output should be retained given the configured
// address/asset allow-lists. An absent filter always matches; a present
// filter must have at least one element matching the output.
func (u *UtxoIndexer) keep(output model.TxOutput) bool {
	if len(u.addresses) > 0 {
		matched := false
		for _, addr := range u.addresses {
			if bytes.Equal(addr, output.Address) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(u.assets) > 0 {
		matched := false
		for _, want := range u.assets {
			for _, a := range output.Assets {
				if want.Matches(a) {
					matched = true
					break
				}
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func (u *UtxoIndexer) insertOutput(wtxn *bolt.Tx, pointer model.TxOutputPointer, output model.TxOutput) (bool, error) {
	if !u.keep(output) {
		return false, nil
	}

	key := encodePointer(pointer)
	data, err := json.Marshal(output)
	if err != nil {
		return false, err
	}
	if err := wtxn.Bucket([]byte(u.utxosB)).Put(key, data); err != nil {
		return false, err
	}
	if err := wtxn.Bucket([]byte(u.byAddrB)).Put(append(append([]byte{}, output.Address...), key...), nil); err != nil {
		return false, err
	}
	byAsset := wtxn.Bucket([]byte(u.byAssetB))
	for _, asset := range output.Assets {
		assetKey := append(append(append([]byte{}, asset.Policy[:]...), asset.Name...), key...)
		if err := byAsset.Put(assetKey, nil); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (u *UtxoIndexer) consumeInput(wtxn *bolt.Tx, input model.TxOutputPointer) (bool, error) {
	key := encodePointer(input)
	utxos := wtxn.Bucket([]byte(u.utxosB))
	data := utxos.Get(key)
	if data == nil {
		return false, nil
	}
	var output model.TxOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return false, err
	}

	if err := utxos.Delete(key); err != nil {
		return false, err
	}
	if err := wtxn.Bucket([]byte(u.byAddrB)).Delete(append(append([]byte{}, output.Address...), key...)); err != nil {
		return false, err
	}
	byAsset := wtxn.Bucket([]byte(u.byAssetB))
	for _, asset := range output.Assets {
		assetKey := append(append(append([]byte{}, asset.Policy[:]...), asset.Name...), key...)
		if err := byAsset.Delete(assetKey); err != nil {
			return false, err
		}
	}
	return true, nil
}

// InsertTx consumes the tx's spent inputs out of the live set and inserts
// its unspent outputs, returning whether anything changed.
func (u *UtxoIndexer) InsertTx(db VolatileReader, wtxn *bolt.Tx, tx *model.Tx) (bool, error) {
	addedSome := false
	for _, input := range tx.Spent() {
		did, err := u.consumeInput(wtxn, input)
		if err != nil {
			return false, err
		}
		addedSome = addedSome || did
	}
	for index, output := range tx.Unspent() {
		pointer := model.NewTxOutputPointer(tx.Hash, index)
		did, err := u.insertOutput(wtxn, pointer, output)
		if err != nil {
			return false, err
		}
		addedSome = addedSome || did
	}
	if addedSome {
		metrics.IndexerTxInsertedTotal.WithLabelValues(u.id).Inc()
	}
	return addedSome, nil
}

// DeleteTx undoes InsertTx: it restores the outputs the tx spent (reading
// them back from the still-volatile tx store) and removes the outputs it
// produced.
func (u *UtxoIndexer) DeleteTx(db VolatileReader, wtxn *bolt.Tx, tx *model.Tx) error {
	for _, input := range tx.Spent() {
		output, ok, err := db.VolatileTxOutput(wtxn, input)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("indexer: utxo %q: missing volatile tx output for %v while rolling back", u.id, input)
		}
		if _, err := u.insertOutput(wtxn, input, output); err != nil {
			return err
		}
	}
	for index := range tx.Unspent() {
		pointer := model.NewTxOutputPointer(tx.Hash, index)
		if _, err := u.consumeInput(wtxn, pointer); err != nil {
			return err
		}
	}
	metrics.IndexerTxDeletedTotal.WithLabelValues(u.id).Inc()
	return nil
}

// Clear drops every bucket this indexer owns.
func (u *UtxoIndexer) Clear(wtxn *bolt.Tx) error {
	for _, name := range []string{u.utxosB, u.byAddrB, u.byAssetB} {
		c := wtxn.Bucket([]byte(name)).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
	}
	log.WithIndexerID(u.id).Debug().Msg("cleared")
	return nil
}
