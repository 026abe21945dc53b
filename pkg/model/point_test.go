package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointString(t *testing.T) {
	assert.Equal(t, "origin", OriginPoint().String())

	hash := BlockHash{0xab}
	p := NewPoint(42, hash)
	assert.False(t, p.Origin)
	assert.Equal(t, "42@"+hash.String(), p.String())
}
