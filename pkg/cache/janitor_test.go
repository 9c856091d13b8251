package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunJanitorPurgesExpired(t *testing.T) {
	clock := newClock()
	c := NewLRU(10, time.Minute).WithClock(clock.Now)
	c.Set("short", rec("US", ""), time.Second)
	c.Set("long", rec("DE", ""), time.Hour)
	clock.Advance(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunJanitor(ctx, c, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return c.Stats().Size == 1 }, time.Second, time.Millisecond)
	cancel()
	<-done

	// Purging is not a lookup
	stats := c.Stats()
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)
}

func TestRunJanitorIgnoresNoOp(t *testing.T) {
	done := make(chan struct{})
	go func() {
		RunJanitor(context.Background(), NewNoOp(), time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor kept running for a cache without expiry")
	}
}
