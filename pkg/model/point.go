package model

import "fmt"

// Point identifies a location on the chain: either the origin (before any
// block) or a specific slot/hash pair, mirroring the chain-sync protocol's
// intersection point.
type Point struct {
	Origin bool
	Slot   uint64
	Hash   BlockHash
}

// OriginPoint returns the point preceding the first block of the chain.
func OriginPoint() Point {
	return Point{Origin: true}
}

// NewPoint returns a specific slot/hash point.
func NewPoint(slot uint64, hash BlockHash) Point {
	return Point{Slot: slot, Hash: hash}
}

func (p Point) String() string {
	if p.Origin {
		return "origin"
	}
	return fmt.Sprintf("%d@%s", p.Slot, p.Hash)
}
