// services/powerseq/internal/tick/plan.go
package tick

import "errors"

// The tick unit is modelled on an 8-bit counter/compare timer: a prescaler
// divides the core clock and the compare register sets how many divided
// counts make one tick. Plan selection is pure arithmetic so it can be
// validated long before any hardware is touched.

const (
	// TargetHz is the tick rate every plan must produce: 1 kHz, one tick
	// per millisecond.
	TargetHz = 1000

	// compareMax is the largest value the 8-bit compare register holds.
	compareMax = 255
)

// Plan is a validated timer configuration for a given core clock.
type Plan struct {
	Divisor uint16 // prescaler divisor applied to the core clock
	Bits    uint8  // clock-select bits encoding the divisor
	Compare uint8  // compare value; the timer counts 0..Compare per tick
}

// prescalers lists the divisors the counter unit supports, smallest first,
// with their clock-select bit encodings.
var prescalers = []struct {
	div  uint16
	bits uint8
}{
	{1, 0b001},
	{8, 0b010},
	{64, 0b011},
	{256, 0b100},
	{1024, 0b101},
}

// ErrOutOfRange reports that no prescaler/compare pair can represent a 1 ms
// period for the given clock. Treated as a fatal configuration error.
var ErrOutOfRange = errors.New("tick: no prescaler/compare pair yields a 1 ms period")

// NewPlan computes the prescaler bits and compare value that produce a 1 ms
// tick for the given effective core clock. The smallest divisor whose rounded
// compare value fits the register wins, which keeps tick resolution highest.
// Returns ErrOutOfRange when the clock is zero or too slow for even the
// unity divisor.
func NewPlan(clockHz uint32) (Plan, error) {
	if clockHz == 0 {
		return Plan{}, ErrOutOfRange
	}
	for _, p := range prescalers {
		den := uint64(p.div) * TargetHz
		counts := (uint64(clockHz) + den/2) / den // rounded counts per tick
		if counts < 1 {
			// Slower divisors only make this worse.
			break
		}
		if counts > compareMax+1 {
			continue
		}
		return Plan{Divisor: p.div, Bits: p.bits, Compare: uint8(counts - 1)}, nil
	}
	return Plan{}, ErrOutOfRange
}

// PeriodNs returns the actual tick period the plan produces on the given
// clock, in nanoseconds. Useful for asserting rounding error bounds.
func (p Plan) PeriodNs(clockHz uint32) uint64 {
	if clockHz == 0 {
		return 0
	}
	counts := uint64(p.Divisor) * uint64(p.Compare+1)
	return counts * 1_000_000_000 / uint64(clockHz)
}
