// services/powerseq/internal/tick/counter.go
package tick

import (
	"runtime"
	"sync/atomic"

	"loadswitch-go/x/timex"
)

// Counter is the shared tick state. Tick runs in the tick context (an ISR on
// a bare-metal part, the ticker goroutine here); everything else runs on the
// foreground control loop. Every shared word is a single atomic cell, the
// lock-free discipline the two-context model requires.
type Counter struct {
	millis     atomic.Uint64
	msInSecond atomic.Uint32
	seconds    atomic.Uint64

	delayActive  atomic.Bool
	delayTarget  atomic.Uint32
	delayElapsed atomic.Uint32
	stopped      atomic.Bool

	// Second handlers run inside the tick context on each 1000-tick
	// boundary. Registration must finish before ticking starts.
	onSecond []func()
}

func NewCounter() *Counter { return &Counter{} }

// OnSecond registers fn to run on every one-second boundary, in the tick
// context. Not safe to call once Tick is being driven.
func (c *Counter) OnSecond(fn func()) {
	c.onSecond = append(c.onSecond, fn)
}

// Tick advances the counter by one millisecond. It services any armed delay
// and derives the one-second boundary.
func (c *Counter) Tick() {
	c.millis.Add(1)

	if c.delayActive.Load() {
		if c.delayElapsed.Add(1) >= c.delayTarget.Load() {
			c.delayElapsed.Store(0)
			c.delayActive.Store(false)
		}
	}

	if c.msInSecond.Add(1) >= timex.MsPerSecond {
		c.msInSecond.Store(0)
		c.seconds.Add(1)
		for _, fn := range c.onSecond {
			fn()
		}
	}
}

// Millis returns the monotonic tick count.
func (c *Counter) Millis() uint64 { return c.millis.Load() }

// Seconds returns the number of completed one-second windows.
func (c *Counter) Seconds() uint64 { return c.seconds.Load() }

// Delay blocks the calling goroutine until ms ticks have elapsed. It is the
// only suspension mechanism the control loop uses; there is no cancellation,
// a delay always runs to completion. Delay(0) is a documented no-op and
// returns immediately. Single foreground caller only.
func (c *Counter) Delay(ms uint32) {
	if ms == 0 || c.stopped.Load() {
		return
	}
	c.delayElapsed.Store(0)
	c.delayTarget.Store(ms)
	c.delayActive.Store(true)
	for c.delayActive.Load() {
		if c.stopped.Load() {
			c.delayActive.Store(false)
			return
		}
		runtime.Gosched()
	}
}

// Stop marks the tick source as ceased: any blocked Delay returns and later
// delays are no-ops. Without it a caller parked in Delay would spin forever
// once ticks stop arriving.
func (c *Counter) Stop() { c.stopped.Store(true) }

// DelayPending reports whether a delay is currently armed. Exposed so tests
// can synchronize with the delay arming.
func (c *Counter) DelayPending() bool { return c.delayActive.Load() }
