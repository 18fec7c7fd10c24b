package session

import (
	"context"
	"time"
)

// Drive feeds Tick messages at the given interval until ctx ends or the
// session closes. Ticks are dropped rather than queued when the loop is
// behind; the next one carries the full elapsed time anyway.
func Drive(ctx context.Context, s *Session, interval time.Duration) {
	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Done():
			return
		case <-ticker.C:
			now := float64(time.Since(start)) / float64(time.Millisecond)
			select {
			case s.inbox <- Tick{NowMs: now}:
			default:
			}
		}
	}
}
