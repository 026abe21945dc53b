package chain

import "encoding/binary"

// slots keys are big-endian uint64 slot numbers: bbolt orders keys
// byte-wise, so this makes the slots bucket a naturally slot-ordered index
// without any secondary sort step.

func beBytes(slot uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, slot)
	return b
}

func beUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
