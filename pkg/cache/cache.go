// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package cache holds the lookup cache that sits in front of every backend.
package cache

import (
	"net/netip"
	"time"

	"georesolve/pkg/model"
)

// Backend is a key -> record cache with TTL and hit/miss accounting.
// Every Get counts exactly one hit or one miss.
type Backend interface {
	Get(key string) (*model.Record, bool)
	Set(key string, rec *model.Record, ttl time.Duration)
	Delete(key string)
	Stats() Stats
	Clear()
}

// Stats is a point-in-time snapshot of cache counters
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Size    int   `json:"size"`
	MaxSize int   `json:"max_size"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Key builds the cache key for ip as answered by backend
func Key(ip netip.Addr, backend string) string {
	return backend + "|" + ip.Unmap().String()
}

// New returns the cache described by cfg
func New(cfg model.CacheConfig) Backend {
	if !cfg.Enabled || cfg.Backend == model.CacheNone {
		return NewNoOp()
	}
	return NewLRU(cfg.MaxSize, cfg.TTL)
}
