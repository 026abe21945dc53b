package model

// Datum is the raw CBOR-encoded plutus data attached to an output, either
// inline or resolvable by hash from a witness set.
type Datum = []byte

// Address is the raw (not bech32-encoded) address bytes of an output.
type Address = []byte

// TxOutput is a single transaction output: destination, value and an
// optional datum reference.
type TxOutput struct {
	Address   Address
	Lovelace  uint64
	Assets    []Asset
	DatumHash *DatumHash
}

// TxOutputPointer identifies an output by the hash of the transaction that
// produced it plus its index within that transaction's output list.
type TxOutputPointer struct {
	Hash  TxHash
	Index uint64
}

// NewTxOutputPointer builds a pointer from a tx hash and an output index.
func NewTxOutputPointer(hash TxHash, index int) TxOutputPointer {
	return TxOutputPointer{Hash: hash, Index: uint64(index)}
}

// RangeStart and RangeEnd bound the closed interval of pointers that belong
// to the same transaction, letting a KV range scan enumerate every output
// produced by a given tx without an explicit secondary index.
func (h TxHash) RangeStart() TxOutputPointer { return TxOutputPointer{Hash: h, Index: 0} }
func (h TxHash) RangeEnd() TxOutputPointer   { return TxOutputPointer{Hash: h, Index: ^uint64(0)} }
