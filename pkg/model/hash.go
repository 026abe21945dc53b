// Package model holds the primitive chain data types shared by the
// database, indexer and chain-sync layers: hashes, points, assets,
// transactions and the volatile block envelope.
package model

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash28 is a 28-byte hash: policy IDs, script hashes, payment key hashes.
type Hash28 [28]byte

// Hash32 is a 32-byte hash: block hashes, tx hashes, datum hashes.
type Hash32 [32]byte

func (h Hash28) String() string { return hex.EncodeToString(h[:]) }
func (h Hash32) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns a copy of the hash as a slice.
func (h Hash28) Bytes() []byte { b := make([]byte, 28); copy(b, h[:]); return b }
func (h Hash32) Bytes() []byte { b := make([]byte, 32); copy(b, h[:]); return b }

// NewHash28 copies bytes into a Hash28, erroring if the length doesn't match.
func NewHash28(b []byte) (Hash28, error) {
	var h Hash28
	if len(b) != 28 {
		return h, fmt.Errorf("model: invalid hash length %d, want 28", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// NewHash32 copies bytes into a Hash32, erroring if the length doesn't match.
func NewHash32(b []byte) (Hash32, error) {
	var h Hash32
	if len(b) != 32 {
		return h, fmt.Errorf("model: invalid hash length %d, want 32", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// MarshalJSON encodes the hash as a lowercase-hex JSON string.
func (h Hash28) MarshalJSON() ([]byte, error) { return json.Marshal(h.String()) }

// UnmarshalJSON decodes a lowercase-hex JSON string into the hash.
func (h *Hash28) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("model: decoding Hash28: %w", err)
	}
	decoded, err := NewHash28(b)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

// MarshalJSON encodes the hash as a lowercase-hex JSON string.
func (h Hash32) MarshalJSON() ([]byte, error) { return json.Marshal(h.String()) }

// UnmarshalJSON decodes a lowercase-hex JSON string into the hash.
func (h *Hash32) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("model: decoding Hash32: %w", err)
	}
	decoded, err := NewHash32(b)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

// Policy is the policy ID hash of a native asset.
type Policy = Hash28

// ScriptHash identifies a Plutus script.
type ScriptHash = Hash28

// AddressKeyHash identifies a verification key used in a native script.
type AddressKeyHash = Hash28

// BlockHash identifies a block.
type BlockHash = Hash32

// TxHash identifies a transaction.
type TxHash = Hash32

// DatumHash identifies a datum by its hash.
type DatumHash = Hash32
