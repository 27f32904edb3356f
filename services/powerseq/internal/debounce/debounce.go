// services/powerseq/internal/debounce/debounce.go

// Package debounce accepts an input as genuine only after enough consecutive
// positive samples. Sampling cadence is the caller's; the sequencer samples
// once per control-loop cycle.
package debounce

// Debouncer counts consecutive positive samples and reports an activation
// event once the streak strictly exceeds the threshold. There is no leaky
// decay: one negative sample zeroes the streak.
type Debouncer struct {
	threshold uint8
	count     uint8
}

// New returns a debouncer with the given threshold. 3 suits a mechanical
// pushbutton, 2 a capacitive-sense input. A zero threshold is coerced to 1.
func New(threshold uint8) *Debouncer {
	if threshold == 0 {
		threshold = 1
	}
	return &Debouncer{threshold: threshold}
}

// Sample feeds one raw reading. It returns true exactly when the consecutive
// positive count strictly exceeds the threshold; the count then resets, so
// a held input produces a stream of events spaced threshold+1 samples apart.
func (d *Debouncer) Sample(raw bool) bool {
	if !raw {
		d.count = 0
		return false
	}
	if d.count < 255 {
		d.count++
	}
	if d.count > d.threshold {
		d.count = 0
		return true
	}
	return false
}

// Count exposes the current streak length.
func (d *Debouncer) Count() uint8 { return d.count }

// Reset zeroes the streak.
func (d *Debouncer) Reset() { d.count = 0 }
