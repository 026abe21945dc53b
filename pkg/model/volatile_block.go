package model

// VolatileBlock is the block envelope retained in the rollback window: just
// enough to replay or undo the block's effects (slot ordering, and the
// hashes of the txs/datums it introduced) without re-decoding CBOR.
type VolatileBlock struct {
	Hash   BlockHash
	Number uint64
	Slot   uint64
	Txs    []TxHash
	Datums []DatumHash
}

// RawBlock is implemented by an embedding binary's CBOR decoder. Concrete
// multi-era block decoding is out of scope for this module.
type RawBlock interface {
	Era() Era
	Hash() BlockHash
	Number() uint64
	Slot() uint64
	Size() int
	Txs() []RawTx
}
