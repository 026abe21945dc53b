package indexer

import (
	"encoding/binary"

	"github.com/Liqwid-Labs/hydrant/pkg/model"
)

// encodePointer lays out a TxOutputPointer as its 32-byte tx hash followed
// by its big-endian uint64 index, so that a bbolt key-ordered scan of all
// pointers with a given tx-hash prefix enumerates every output of that tx
// in index order.
func encodePointer(p model.TxOutputPointer) []byte {
	b := make([]byte, 40)
	copy(b[:32], p.Hash[:])
	binary.BigEndian.PutUint64(b[32:], p.Index)
	return b
}

func decodePointer(b []byte) (model.TxOutputPointer, bool) {
	if len(b) != 40 {
		return model.TxOutputPointer{}, false
	}
	var p model.TxOutputPointer
	copy(p.Hash[:], b[:32])
	p.Index = binary.BigEndian.Uint64(b[32:])
	return p, true
}
