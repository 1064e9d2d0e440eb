package session

import (
	"fmt"
	"sync/atomic"
	"time"
)

// GameIDGenerator issues session identifiers. IDs are monotonic, seeded from
// the wall clock at construction, and never reused; a failed launch that is
// retried gets a fresh id.
type GameIDGenerator struct {
	next atomic.Int64
}

// NewGameIDGenerator creates a generator seeded from the current time.
func NewGameIDGenerator() *GameIDGenerator {
	g := &GameIDGenerator{}
	g.next.Store(time.Now().UnixMilli())
	return g
}

// Next returns a fresh gameId.
func (g *GameIDGenerator) Next() string {
	return fmt.Sprintf("GM-%d", g.next.Add(1))
}
