package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDGenerator mints "<prefix>-0001", "<prefix>-0002", ... and never
// runs out.
//
// Unlike engine.FixedGenerator, which returns a predetermined list, this
// generator suits tests that write an unknown number of entries but still
// need byte-identical output across runs.
//
// Thread-safety: SequenceIDGenerator is safe for concurrent use via internal mutex.
type SequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDGenerator creates a generator. An empty prefix defaults to
// "entry".
func NewSequenceIDGenerator(prefix string) *SequenceIDGenerator {
	if prefix == "" {
		prefix = "entry"
	}
	return &SequenceIDGenerator{prefix: prefix}
}

// Generate returns the next id.
//
// Implements engine.IDGenerator interface.
func (g *SequenceIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
