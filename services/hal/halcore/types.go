// services/hal/halcore/types.go
package halcore

// ---- GPIO abstractions ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// GPIOPin is the pin surface the sequencer drives. Implementations exist per
// target: TinyGo machine pins, Linux gpiocdev lines, host fakes.
type GPIOPin interface {
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
	Toggle()
	Number() int
}

// PinFactory supplies GPIO pins by the platform pin numbering scheme.
type PinFactory interface {
	ByNumber(n int) (GPIOPin, bool)
}

// ---- Activation input ----

// Input is a boolean "activation active" provider. It stands in for whatever
// produces the raw signal: a pushbutton pin, the capacitive-sense routine, or
// a scripted fake. The sequencer only ever sees the boolean.
type Input interface {
	Active() bool
}

// PinInput adapts a GPIO input pin to Input, optionally inverting the level
// for active-low wiring.
type PinInput struct {
	Pin    GPIOPin
	Invert bool
}

func (p PinInput) Active() bool {
	level := p.Pin.Get()
	if p.Invert {
		return !level
	}
	return level
}

// InputFunc adapts a plain function to Input.
type InputFunc func() bool

func (f InputFunc) Active() bool { return f() }
