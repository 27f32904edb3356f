// services/hal/platform/factories_linux.go
//go:build linux && (arm || arm64) && !rp2040 && !rp2350

package platform

import (
	"github.com/warthog618/go-gpiocdev"

	"loadswitch-go/services/hal/halcore"
)

// DefaultPinFactory drives real GPIO through the Linux character device.
// Pin numbers are line offsets on gpiochip0 (BCM numbering on Raspberry Pi).
func DefaultPinFactory() halcore.PinFactory {
	return &linuxPinFactory{chipName: "gpiochip0"}
}

type linuxPinFactory struct {
	chipName string
	chip     *gpiocdev.Chip
}

func (f *linuxPinFactory) ByNumber(n int) (halcore.GPIOPin, bool) {
	if f.chip == nil {
		c, err := gpiocdev.NewChip(f.chipName)
		if err != nil {
			println("Error: open", f.chipName, "failed:", err.Error())
			return nil, false
		}
		f.chip = c
	}
	if n < 0 {
		return nil, false
	}
	return &linuxPin{chip: f.chip, n: n}, true
}

// linuxPin requests its line lazily on the first Configure call; direction is
// fixed by the request, so reconfiguring re-requests the line.
type linuxPin struct {
	chip  *gpiocdev.Chip
	n     int
	line  *gpiocdev.Line
	out   bool
	level bool
}

func (p *linuxPin) ConfigureInput(pull halcore.Pull) error {
	if p.line != nil {
		_ = p.line.Close()
		p.line = nil
	}
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	switch pull {
	case halcore.PullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case halcore.PullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	}
	l, err := p.chip.RequestLine(p.n, opts...)
	if err != nil {
		return err
	}
	p.line = l
	p.out = false
	return nil
}

func (p *linuxPin) ConfigureOutput(initial bool) error {
	if p.line != nil {
		_ = p.line.Close()
		p.line = nil
	}
	l, err := p.chip.RequestLine(p.n, gpiocdev.AsOutput(boolToInt(initial)))
	if err != nil {
		return err
	}
	p.line = l
	p.out = true
	p.level = initial
	return nil
}

func (p *linuxPin) Set(level bool) {
	if p.line == nil || !p.out {
		return
	}
	if err := p.line.SetValue(boolToInt(level)); err != nil {
		println("Error: set gpio", p.n, "failed:", err.Error())
		return
	}
	p.level = level
}

func (p *linuxPin) Get() bool {
	if p.line == nil {
		return false
	}
	if p.out {
		return p.level
	}
	v, err := p.line.Value()
	if err != nil {
		println("Error: read gpio", p.n, "failed:", err.Error())
		return false
	}
	return v != 0
}

func (p *linuxPin) Toggle() { p.Set(!p.Get()) }

func (p *linuxPin) Number() int { return p.n }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
