package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"georesolve/pkg/model"
)

func TestNoOpAlwaysMisses(t *testing.T) {
	c := NewNoOp()
	c.Set("k", &model.Record{CountryCode: "US"}, time.Hour)

	_, ok := c.Get("k")
	assert.False(t, ok)
	_, ok = c.Get("k")
	assert.False(t, ok)

	assert.Equal(t, Stats{Misses: 2}, c.Stats())
	c.Clear()
	assert.Equal(t, Stats{}, c.Stats())
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     model.CacheConfig
		wantLRU bool
	}{
		{"default", model.DefaultCacheConfig(), true},
		{"disabled", model.CacheConfig{Enabled: false, Backend: model.CacheLRU}, false},
		{"none backend", model.CacheConfig{Enabled: true, Backend: model.CacheNone}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, isLRU := New(tt.cfg).(*LRU)
			assert.Equal(t, tt.wantLRU, isLRU)
		})
	}
}
