package chain

import (
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Liqwid-Labs/hydrant/pkg/indexer"
	"github.com/Liqwid-Labs/hydrant/pkg/kv"
	"github.com/Liqwid-Labs/hydrant/pkg/model"
)

func newTestEnv(t *testing.T) *kv.Env {
	t.Helper()
	env, err := kv.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

type fakeOutput struct {
	addr     model.Address
	lovelace uint64
}

func (o fakeOutput) Address() (model.Address, error) { return o.addr, nil }
func (o fakeOutput) Lovelace() uint64                { return o.lovelace }
func (o fakeOutput) Assets() []model.Asset           { return nil }
func (o fakeOutput) Datum() (model.DatumHash, []byte, bool, bool) {
	return model.DatumHash{}, nil, false, false
}

type fakeTx struct {
	hash    model.TxHash
	valid   bool
	inputs  []model.TxOutputPointer
	outputs []model.RawOutput
}

func (tx fakeTx) Hash() model.TxHash                        { return tx.hash }
func (tx fakeTx) IsValid() bool                             { return tx.valid }
func (tx fakeTx) InputsSorted() []model.TxOutputPointer     { return tx.inputs }
func (tx fakeTx) Outputs() []model.RawOutput                { return tx.outputs }
func (tx fakeTx) Collateral() []model.TxOutputPointer       { return nil }
func (tx fakeTx) CollateralReturn() (model.RawOutput, bool) { return nil, false }
func (tx fakeTx) ReferenceInputs() []model.TxOutputPointer  { return nil }
func (tx fakeTx) Mints() []model.Mint                       { return nil }
func (tx fakeTx) PlutusScripts() []model.Script             { return nil }
func (tx fakeTx) NativeScripts() []model.NativeScript       { return nil }

type fakeBlock struct {
	hash   model.BlockHash
	number uint64
	slot   uint64
	txs    []model.RawTx
}

func (b fakeBlock) Era() model.Era        { return model.EraConway }
func (b fakeBlock) Hash() model.BlockHash { return b.hash }
func (b fakeBlock) Number() uint64        { return b.number }
func (b fakeBlock) Slot() uint64          { return b.slot }
func (b fakeBlock) Size() int             { return 0 }
func (b fakeBlock) Txs() []model.RawTx    { return b.txs }

func newTestDb(t *testing.T, maxRollback int) (*Db, *indexer.UtxoIndexer) {
	t.Helper()
	env := newTestEnv(t)
	utxo, err := indexer.NewUtxoIndexerBuilder("utxo").Build(env)
	require.NoError(t, err)
	db, err := New(env, maxRollback, indexer.List{utxo})
	require.NoError(t, err)
	return db, utxo
}

func blockAt(slot, number uint64, hash byte, outAddr string, outLovelace uint64, txHash byte) fakeBlock {
	return fakeBlock{
		hash:   model.BlockHash{hash},
		number: number,
		slot:   slot,
		txs: []model.RawTx{
			fakeTx{
				hash:    model.TxHash{txHash},
				valid:   true,
				outputs: []model.RawOutput{fakeOutput{addr: model.Address(outAddr), lovelace: outLovelace}},
			},
		},
	}
}

func TestRollForwardAppliesBlockToIndexersAndTip(t *testing.T) {
	db, utxo := newTestDb(t, 10)

	block := blockAt(100, 1, 0xAA, "addr-a", 50, 0x01)
	require.NoError(t, db.RollForward(block))

	tip, err := db.Tip()
	require.NoError(t, err)
	assert.False(t, tip.Origin)
	assert.Equal(t, uint64(100), tip.Slot)
	assert.Equal(t, model.BlockHash{0xAA}, tip.Hash)

	utxos, err := utxo.Utxos()
	require.NoError(t, err)
	require.Len(t, utxos, 1)
	assert.Equal(t, uint64(50), utxos[0].Output.Lovelace)
}

func TestRollForwardIsIdempotentOnDoubleApply(t *testing.T) {
	db, utxo := newTestDb(t, 10)

	block := blockAt(100, 1, 0xAA, "addr-a", 50, 0x01)
	require.NoError(t, db.RollForward(block))
	require.NoError(t, db.RollForward(block))

	utxos, err := utxo.Utxos()
	require.NoError(t, err)
	assert.Len(t, utxos, 1)
}

func TestRollBackwardUndoesBlocksInReverseOrder(t *testing.T) {
	db, utxo := newTestDb(t, 10)

	first := blockAt(100, 1, 0xA1, "addr-a", 10, 0x01)
	second := blockAt(200, 2, 0xA2, "addr-b", 20, 0x02)
	require.NoError(t, db.RollForward(first))
	require.NoError(t, db.RollForward(second))

	require.NoError(t, db.RollBackward(model.NewPoint(100, model.BlockHash{0xA1})))

	tip, err := db.Tip()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), tip.Slot)

	utxos, err := utxo.Utxos()
	require.NoError(t, err)
	require.Len(t, utxos, 1)
	assert.Equal(t, uint64(10), utxos[0].Output.Lovelace)
}

func TestRollBackwardToOriginClearsDatabase(t *testing.T) {
	db, utxo := newTestDb(t, 10)
	require.NoError(t, db.RollForward(blockAt(100, 1, 0xA1, "addr-a", 10, 0x01)))

	require.NoError(t, db.RollBackward(model.OriginPoint()))

	tip, err := db.Tip()
	require.NoError(t, err)
	assert.True(t, tip.Origin)

	utxos, err := utxo.Utxos()
	require.NoError(t, err)
	assert.Empty(t, utxos)
}

func TestRollBackwardPastRetentionWindowIsFatal(t *testing.T) {
	db, _ := newTestDb(t, 10)
	require.NoError(t, db.RollForward(blockAt(100, 1, 0xA1, "addr-a", 10, 0x01)))

	require.NoError(t, db.TrimVolatile())

	db.MaxRollbackBlocks = 0
	require.NoError(t, db.TrimVolatile())

	err := db.RollBackward(model.NewPoint(50, model.BlockHash{0x00}))
	assert.ErrorIs(t, err, ErrRolledBackTooFar)
}

func TestTrimVolatileDropsBlocksOlderThanWindow(t *testing.T) {
	db, _ := newTestDb(t, 1)

	require.NoError(t, db.RollForward(blockAt(100, 1, 0xA1, "addr-a", 10, 0x01)))
	require.NoError(t, db.RollForward(blockAt(200, 2, 0xA2, "addr-b", 20, 0x02)))
	require.NoError(t, db.TrimVolatile())

	var oldFound, newFound bool
	err := db.env.View(func(wtxn *bolt.Tx) error {
		_, oldFound, _ = db.VolatileBlock(wtxn, model.BlockHash{0xA1})
		_, newFound, _ = db.VolatileBlock(wtxn, model.BlockHash{0xA2})
		return nil
	})
	require.NoError(t, err)
	assert.False(t, oldFound, "block outside the retention window should be trimmed")
	assert.True(t, newFound, "block inside the retention window should survive trim")

	tip, err := db.Tip()
	require.NoError(t, err)
	assert.Equal(t, uint64(200), tip.Slot, "trim must not touch the slots spine, only volatile copies")
}

func TestClearWipesSpineAndIndexers(t *testing.T) {
	db, utxo := newTestDb(t, 10)
	require.NoError(t, db.RollForward(blockAt(100, 1, 0xA1, "addr-a", 10, 0x01)))

	require.NoError(t, db.Clear())

	tip, err := db.Tip()
	require.NoError(t, err)
	assert.True(t, tip.Origin)

	utxos, err := utxo.Utxos()
	require.NoError(t, err)
	assert.Empty(t, utxos)
}

func TestIndexerIDMismatchIsRejected(t *testing.T) {
	env := newTestEnv(t)
	utxo, err := indexer.NewUtxoIndexerBuilder("utxo-a").Build(env)
	require.NoError(t, err)
	db, err := New(env, 10, indexer.List{utxo})
	require.NoError(t, err)
	require.NoError(t, db.RollForward(blockAt(100, 1, 0xA1, "addr-a", 10, 0x01)))

	otherUtxo, err := indexer.NewUtxoIndexerBuilder("utxo-b").Build(env)
	require.NoError(t, err)
	otherDb, err := New(env, 10, indexer.List{otherUtxo})
	require.NoError(t, err)

	err = otherDb.RollForward(blockAt(200, 2, 0xA2, "addr-b", 20, 0x02))
	assert.ErrorIs(t, err, ErrIndexerIDsMismatch)
}
