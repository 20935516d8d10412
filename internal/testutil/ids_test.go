package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceIDGenerator_Sequential(t *testing.T) {
	gen := NewSequenceIDGenerator("e")

	assert.Equal(t, "e-0001", gen.Generate())
	assert.Equal(t, "e-0002", gen.Generate())
}

func TestSequenceIDGenerator_DefaultPrefix(t *testing.T) {
	gen := NewSequenceIDGenerator("")

	assert.Equal(t, "entry-0001", gen.Generate())
}
