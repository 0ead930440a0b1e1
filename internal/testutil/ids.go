package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDGenerator returns ids of the form "<prefix>-0001", "<prefix>-0002", ...
//
// This enables deterministic test execution and golden trace comparison:
// the same scenario produces byte-identical snapshots and commit logs.
//
// Thread-safety: SequentialIDGenerator is safe for concurrent use via internal mutex.
type SequentialIDGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequentialIDGenerator creates a generator. An empty prefix becomes "id".
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SequentialIDGenerator{prefix: prefix, next: 1}
}

// Generate returns the next id in sequence.
func (g *SequentialIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("%s-%04d", g.prefix, g.next)
	g.next++
	return id
}

// Reset restarts the sequence at 1.
func (g *SequentialIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next = 1
}
