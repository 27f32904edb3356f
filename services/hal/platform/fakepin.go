// services/hal/platform/fakepin.go
package platform

import (
	"sync"

	"loadswitch-go/services/hal/halcore"
)

// FakePin implements halcore.GPIOPin for host-side tests and the simulator.
type FakePin struct {
	mu      sync.RWMutex
	number  int
	level   bool
	modeOut bool
	pull    halcore.Pull

	// History of output levels written via Set, for pulse assertions.
	writes []bool
}

func (p *FakePin) ConfigureInput(pull halcore.Pull) error {
	p.mu.Lock()
	p.modeOut = false
	p.pull = pull
	p.mu.Unlock()
	return nil
}

func (p *FakePin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.modeOut = true
	p.level = initial
	p.mu.Unlock()
	return nil
}

func (p *FakePin) Set(level bool) {
	p.mu.Lock()
	p.level = level
	p.writes = append(p.writes, level)
	p.mu.Unlock()
}

func (p *FakePin) Get() bool {
	p.mu.RLock()
	v := p.level
	p.mu.RUnlock()
	return v
}

func (p *FakePin) Toggle() { p.Set(!p.Get()) }

func (p *FakePin) Number() int { return p.number }

// SetLevel drives the pin from "outside" (as the external circuit would),
// without recording an output write.
func (p *FakePin) SetLevel(level bool) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
}

// IsOutput reports whether the pin was configured as an output.
func (p *FakePin) IsOutput() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modeOut
}

// Writes returns a copy of all output levels written so far.
func (p *FakePin) Writes() []bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]bool(nil), p.writes...)
}

// HostPinFactory returns stable *FakePin instances per number.
type HostPinFactory struct {
	mu   sync.Mutex
	pins map[int]*FakePin
}

func NewHostPinFactory() *HostPinFactory {
	return &HostPinFactory{pins: make(map[int]*FakePin)}
}

func (f *HostPinFactory) ByNumber(n int) (halcore.GPIOPin, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pins[n]
	if !ok {
		p = &FakePin{number: n}
		f.pins[n] = p
	}
	return p, true
}

// Get exposes the underlying *FakePin for tests (e.g. to drive input levels).
func (f *HostPinFactory) Get(n int) (*FakePin, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pins[n]
	return p, ok
}

// Pin is Get plus implicit creation, convenient in test setup.
func (f *HostPinFactory) Pin(n int) *FakePin {
	p, _ := f.ByNumber(n)
	return p.(*FakePin)
}
