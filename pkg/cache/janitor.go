package cache

import (
	"context"
	"time"

	"georesolve/pkg/logging"
)

// purger is implemented by caches that can drop expired entries eagerly
type purger interface {
	Purge() int
}

// RunJanitor purges expired entries from c every interval until ctx is
// done. Caches without expiry are left alone.
func RunJanitor(ctx context.Context, c Backend, every time.Duration) {
	p, ok := c.(purger)
	if !ok || every <= 0 {
		return
	}
	log := logging.Component("cache")

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.Purge(); n > 0 {
				log.Debug().Int("removed", n).Msg("purged expired entries")
			}
		}
	}
}
