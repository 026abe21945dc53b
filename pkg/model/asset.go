package model

// AssetName is the raw asset-name bytes within a policy (may be empty).
type AssetName = []byte

// AssetID identifies an asset class, optionally narrowed to a specific
// asset name within a policy. A nil Name matches any asset under Policy.
type AssetID struct {
	Policy Policy
	Name   AssetName
}

// Matches reports whether the asset id matches the given asset, treating a
// nil Name as "any asset under this policy".
func (id AssetID) Matches(a Asset) bool {
	if id.Policy != a.Policy {
		return false
	}
	if id.Name == nil {
		return true
	}
	return string(id.Name) == string(a.Name)
}

// Mint records a minted (or burned, if Quantity is negative) asset quantity.
type Mint struct {
	Policy   Policy
	Name     AssetName
	Quantity int64
}

// Asset records a non-ADA asset quantity held in a transaction output.
type Asset struct {
	Policy   Policy
	Name     AssetName
	Quantity uint64
}
