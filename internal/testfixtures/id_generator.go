package testfixtures

import (
	"fmt"
	"sync"
)

// IDGenerator hands out predictable identifiers to the services built by a
// ServiceFactory, so tests can name the booking, room or member a call created.
type IDGenerator struct {
	mu     sync.Mutex
	prefix string
	issued int
}

// NewIDGenerator yields "<prefix>-1", "<prefix>-2" and so on; the prefix defaults to "id".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// Next returns the next identifier in the sequence.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.issued++
	return g.format(g.issued)
}

// Last returns the most recently issued identifier, or "" before the first one.
func (g *IDGenerator) Last() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.issued == 0 {
		return ""
	}
	return g.format(g.issued)
}

// NextFunc exposes Next as the func() string the application services take.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

func (g *IDGenerator) format(n int) string {
	return fmt.Sprintf("%s-%d", g.prefix, n)
}
