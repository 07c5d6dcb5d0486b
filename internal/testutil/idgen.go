package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDGenerator yields "id-1", "id-2", ... for deterministic tests.
// Safe for concurrent use.
type SequenceIDGenerator struct {
	mu sync.Mutex
	n  int
}

func NewSequenceIDGenerator() *SequenceIDGenerator { return &SequenceIDGenerator{} }

func (g *SequenceIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}
