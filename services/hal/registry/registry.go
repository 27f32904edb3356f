// services/hal/registry/registry.go
package registry

import (
	"sync"

	"loadswitch-go/errcode"
	"loadswitch-go/services/hal/halcore"
)

// Pins grants exclusive ownership of GPIO pins. Two owners asking for the
// same pin number is a wiring bug and is rejected, not arbitrated.
type Pins struct {
	mu      sync.Mutex
	factory halcore.PinFactory
	owners  map[int]string
}

func NewPins(factory halcore.PinFactory) *Pins {
	return &Pins{
		factory: factory,
		owners:  map[int]string{},
	}
}

// Claim reserves pin n for owner and returns the pin handle.
func (r *Pins) Claim(owner string, n int) (halcore.GPIOPin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.owners[n]; ok && prev != owner {
		return nil, errcode.PinInUse
	}
	p, ok := r.factory.ByNumber(n)
	if !ok {
		return nil, errcode.UnknownPin
	}
	r.owners[n] = owner
	return p, nil
}

// Release frees every pin held by owner.
func (r *Pins) Release(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n, o := range r.owners {
		if o == owner {
			delete(r.owners, n)
		}
	}
}

// Owner reports the current owner of pin n, if any.
func (r *Pins) Owner(n int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.owners[n]
	return o, ok
}
