// services/hal/platform/ticker.go
package platform

import (
	"context"
	"time"
)

// StartTicker invokes fn once per millisecond until the context is cancelled.
// This is the tick source on targets whose runtime owns the hardware timer;
// fn must stay short, it runs on the tick goroutine.
func StartTicker(ctx context.Context, fn func()) {
	go func() {
		tick := time.NewTicker(1 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				fn()
			}
		}
	}()
}
