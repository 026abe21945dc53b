package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTxSpentUnspentSwitchesOnValidity(t *testing.T) {
	inputs := []TxOutputPointer{NewTxOutputPointer(TxHash{1}, 0)}
	collateral := []TxOutputPointer{NewTxOutputPointer(TxHash{2}, 0)}
	outputs := []TxOutput{{Lovelace: 10}}

	valid := Tx{Valid: true, Inputs: inputs, Collateral: collateral, Outputs: outputs}
	assert.Equal(t, inputs, valid.Spent())
	assert.Equal(t, outputs, valid.Unspent())

	invalid := Tx{Valid: false, Inputs: inputs, Collateral: collateral, Outputs: outputs}
	assert.Equal(t, collateral, invalid.Spent())
	assert.Nil(t, invalid.Unspent())
}

type fakeOutput struct {
	addr          Address
	lovelace      uint64
	assets        []Asset
	datumHash     DatumHash
	datumInline   []byte
	datumPresent  bool
	datumIsInline bool
}

func (o fakeOutput) Address() (Address, error) { return o.addr, nil }
func (o fakeOutput) Lovelace() uint64          { return o.lovelace }
func (o fakeOutput) Assets() []Asset           { return o.assets }
func (o fakeOutput) Datum() (DatumHash, []byte, bool, bool) {
	return o.datumHash, o.datumInline, o.datumPresent, o.datumIsInline
}

type fakeTx struct {
	hash             TxHash
	valid            bool
	inputs           []TxOutputPointer
	outputs          []RawOutput
	collateral       []TxOutputPointer
	collateralReturn RawOutput
	hasCollReturn    bool
	referenceInputs  []TxOutputPointer
	mints            []Mint
	scripts          []Script
	nativeScripts    []NativeScript
}

func (tx fakeTx) Hash() TxHash                        { return tx.hash }
func (tx fakeTx) IsValid() bool                       { return tx.valid }
func (tx fakeTx) InputsSorted() []TxOutputPointer     { return tx.inputs }
func (tx fakeTx) Outputs() []RawOutput                { return tx.outputs }
func (tx fakeTx) Collateral() []TxOutputPointer       { return tx.collateral }
func (tx fakeTx) ReferenceInputs() []TxOutputPointer  { return tx.referenceInputs }
func (tx fakeTx) Mints() []Mint                       { return tx.mints }
func (tx fakeTx) PlutusScripts() []Script             { return tx.scripts }
func (tx fakeTx) NativeScripts() []NativeScript       { return tx.nativeScripts }
func (tx fakeTx) CollateralReturn() (RawOutput, bool) { return tx.collateralReturn, tx.hasCollReturn }

func TestParseTxCollectsInlineDatumsOnly(t *testing.T) {
	inlineHash := DatumHash{9}
	hashOnly := DatumHash{7}

	raw := fakeTx{
		hash:  TxHash{1},
		valid: true,
		outputs: []RawOutput{
			fakeOutput{addr: Address("addr0"), lovelace: 5, datumPresent: true, datumIsInline: true, datumHash: inlineHash, datumInline: []byte("inline-bytes")},
			fakeOutput{addr: Address("addr1"), lovelace: 6, datumPresent: true, datumIsInline: false, datumHash: hashOnly},
			fakeOutput{addr: Address("addr2"), lovelace: 7},
		},
	}

	tx, datums := ParseTx(raw)

	assert.Equal(t, TxHash{1}, tx.Hash)
	assert.True(t, tx.Valid)
	assert.Len(t, tx.Outputs, 3)
	assert.Equal(t, &inlineHash, tx.Outputs[0].DatumHash)
	assert.Equal(t, &hashOnly, tx.Outputs[1].DatumHash)
	assert.Nil(t, tx.Outputs[2].DatumHash)

	assert.Len(t, datums, 1)
	assert.Equal(t, Datum("inline-bytes"), datums[inlineHash])
}

func TestParseTxCapturesCollateralReturnDatumOnlyWhenInvalid(t *testing.T) {
	crHash := DatumHash{3}
	cr := fakeOutput{addr: Address("collateral-return"), lovelace: 2, datumPresent: true, datumIsInline: true, datumHash: crHash, datumInline: []byte("cr-bytes")}

	invalid := fakeTx{hash: TxHash{2}, valid: false, collateralReturn: cr, hasCollReturn: true}
	_, datums := ParseTx(invalid)
	assert.Equal(t, Datum("cr-bytes"), datums[crHash])

	valid := fakeTx{hash: TxHash{3}, valid: true, collateralReturn: cr, hasCollReturn: true}
	_, datums = ParseTx(valid)
	assert.Empty(t, datums)
}
