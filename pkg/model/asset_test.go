package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssetIDMatches(t *testing.T) {
	policyA := Policy{1}
	policyB := Policy{2}

	tests := []struct {
		name string
		id   AssetID
		a    Asset
		want bool
	}{
		{"any name under matching policy", AssetID{Policy: policyA}, Asset{Policy: policyA, Name: []byte("tok")}, true},
		{"different policy", AssetID{Policy: policyA}, Asset{Policy: policyB, Name: []byte("tok")}, false},
		{"specific name matches", AssetID{Policy: policyA, Name: []byte("tok")}, Asset{Policy: policyA, Name: []byte("tok")}, true},
		{"specific name mismatches", AssetID{Policy: policyA, Name: []byte("tok")}, Asset{Policy: policyA, Name: []byte("other")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.Matches(tt.a))
		})
	}
}
