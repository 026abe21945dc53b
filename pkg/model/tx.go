package model

// Tx is the projection of a single on-chain transaction relevant to
// indexing: its effective inputs/outputs plus the witness material an
// indexer may need (mints, scripts).
//
// Reference inputs may legitimately contain duplicates (an upstream ledger
// quirk: https://github.com/input-output-hk/cardano-ledger), so callers
// must not assume ReferenceInputs is a set.
type Tx struct {
	Hash TxHash

	Inputs  []TxOutputPointer
	Outputs []TxOutput

	Collateral       []TxOutputPointer
	CollateralReturn *TxOutput
	ReferenceInputs  []TxOutputPointer
	Mints            []Mint

	Scripts       []Script
	NativeScripts []NativeScript

	// Valid is false when the transaction failed phase-2 validation; in
	// that case only the collateral inputs/return take effect.
	Valid bool
}

// Spent returns the outputs this transaction actually consumes: its normal
// inputs if it is valid, or its collateral inputs if phase-2 validation
// failed.
func (tx *Tx) Spent() []TxOutputPointer {
	if tx.Valid {
		return tx.Inputs
	}
	return tx.Collateral
}

// Unspent returns the outputs this transaction actually produces: its
// normal outputs if valid, or none if phase-2 validation failed. The
// collateral return output of a failed transaction is not included, and
// no indexer in this module adds it to its projection.
func (tx *Tx) Unspent() []TxOutput {
	if tx.Valid {
		return tx.Outputs
	}
	return nil
}

// RawTx is implemented by an embedding binary's CBOR decoder. Concrete
// multi-era transaction decoding is out of scope for this module: only the
// fields needed to build a Tx are required here.
type RawTx interface {
	Hash() TxHash
	IsValid() bool
	InputsSorted() []TxOutputPointer
	Outputs() []RawOutput
	Collateral() []TxOutputPointer
	CollateralReturn() (RawOutput, bool)
	ReferenceInputs() []TxOutputPointer
	Mints() []Mint
	PlutusScripts() []Script
	NativeScripts() []NativeScript
}

// RawOutput is implemented by an embedding binary's CBOR decoder for a
// single transaction output, including its optional datum.
type RawOutput interface {
	Address() (Address, error)
	Lovelace() uint64
	Assets() []Asset
	// Datum returns the datum hash, the inline datum bytes if the datum is
	// embedded directly (in which case hash is the hash of those bytes and
	// isInline is true), and whether any datum is present at all.
	Datum() (hash DatumHash, inline []byte, present bool, isInline bool)
}

// ParseTx converts a decoded RawTx into a Tx plus the set of datums it
// carries, keyed by hash: the inline datums of its outputs and, only when
// the transaction is invalid, the inline datum of its collateral return
// output. Outputs that reference a datum by hash alone contribute no entry.
func ParseTx(raw RawTx) (Tx, map[DatumHash]Datum) {
	datums := map[DatumHash]Datum{}

	outputs := make([]TxOutput, 0, len(raw.Outputs()))
	for _, ro := range raw.Outputs() {
		out, hash, datum, has := parseOutput(ro)
		outputs = append(outputs, out)
		if has {
			datums[hash] = datum
		}
	}

	var collateralReturn *TxOutput
	if cr, ok := raw.CollateralReturn(); ok {
		out, hash, datum, has := parseOutput(cr)
		collateralReturn = &out
		if has && !raw.IsValid() {
			datums[hash] = datum
		}
	}

	return Tx{
		Hash:             raw.Hash(),
		Valid:            raw.IsValid(),
		Inputs:           raw.InputsSorted(),
		Outputs:          outputs,
		Collateral:       raw.Collateral(),
		CollateralReturn: collateralReturn,
		ReferenceInputs:  raw.ReferenceInputs(),
		Mints:            raw.Mints(),
		Scripts:          raw.PlutusScripts(),
		NativeScripts:    raw.NativeScripts(),
	}, datums
}

func parseOutput(ro RawOutput) (out TxOutput, hash DatumHash, datum Datum, has bool) {
	addr, err := ro.Address()
	if err != nil {
		addr = nil
	}
	out = TxOutput{
		Address:  addr,
		Lovelace: ro.Lovelace(),
		Assets:   ro.Assets(),
	}
	dh, inline, present, isInline := ro.Datum()
	if !present {
		return out, DatumHash{}, nil, false
	}
	out.DatumHash = &dh
	if isInline {
		return out, dh, inline, true
	}
	return out, DatumHash{}, nil, false
}
