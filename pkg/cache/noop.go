package cache

import (
	"sync/atomic"
	"time"

	"georesolve/pkg/model"
)

// NoOp satisfies Backend without storing anything. Every Get is a miss.
type NoOp struct {
	misses atomic.Int64
}

// NewNoOp creates a cache that never holds entries
func NewNoOp() *NoOp {
	return &NoOp{}
}

func (n *NoOp) Get(string) (*model.Record, bool) {
	n.misses.Add(1)
	return nil, false
}

func (n *NoOp) Set(string, *model.Record, time.Duration) {}

func (n *NoOp) Delete(string) {}

func (n *NoOp) Stats() Stats {
	return Stats{Misses: n.misses.Load()}
}

func (n *NoOp) Clear() {
	n.misses.Store(0)
}
