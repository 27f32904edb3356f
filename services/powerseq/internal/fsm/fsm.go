// services/powerseq/internal/fsm/fsm.go

// Package fsm holds the four-state power sequencer. The state word and the
// elapsed-second counters are shared between the tick context (OnSecond) and
// the foreground control loop (Apply), so every shared word is an atomic cell.
package fsm

import (
	"sync/atomic"

	"loadswitch-go/services/hal/halcore"
)

type State uint8

const (
	Off State = iota
	Boot
	Running
	Halt
)

func (s State) String() string {
	switch s {
	case Off:
		return "off"
	case Boot:
		return "boot"
	case Running:
		return "running"
	case Halt:
		return "halt"
	default:
		return "invalid"
	}
}

type Config struct {
	BootTimeoutS uint32 // BOOT -> RUNNING after this many elapsed seconds
	HaltTimeoutS uint32 // HALT -> OFF after this many elapsed seconds
	PulseMs      uint32 // shutdown-request pulse width
}

// Machine owns the switched-load line and the shutdown-request line.
type Machine struct {
	cfg      Config
	load     halcore.GPIOPin
	shutdown halcore.GPIOPin
	delay    func(ms uint32)

	state atomic.Uint32
	bootS atomic.Uint32
	haltS atomic.Uint32

	notify func(from, to State)
}

// New wires the machine to its two output lines. delay is the blocking
// millisecond delay used for the shutdown pulse.
func New(cfg Config, load, shutdown halcore.GPIOPin, delay func(ms uint32)) *Machine {
	return &Machine{
		cfg:      cfg,
		load:     load,
		shutdown: shutdown,
		delay:    delay,
	}
}

// Notify registers a transition observer. Called with interrupts conceptually
// live: OnSecond transitions invoke it from the tick context.
func (m *Machine) Notify(fn func(from, to State)) { m.notify = fn }

func (m *Machine) State() State { return State(m.state.Load()) }

// LoadOn reports the level of the switched-load line.
func (m *Machine) LoadOn() bool { return m.load.Get() }

// BootSeconds and HaltSeconds expose the elapsed counters. Non-zero only
// while the owning state is current.
func (m *Machine) BootSeconds() uint32 { return m.bootS.Load() }
func (m *Machine) HaltSeconds() uint32 { return m.haltS.Load() }

// PowerOn performs OFF -> BOOT: assert the load line, zero the elapsed
// counters, arm the boot timer. Also the forced initial transition at
// startup, after the stabilization delay.
func (m *Machine) PowerOn() {
	m.bootS.Store(0)
	m.haltS.Store(0)
	m.load.Set(true)
	m.set(Boot)
}

// RequestShutdown performs RUNNING -> HALT: pulse the shutdown-request line
// high for the configured width, then restore its prior level. The halt
// timer starts with the transition; the pulse blocks the foreground loop.
func (m *Machine) RequestShutdown() {
	m.haltS.Store(0)
	m.set(Halt)

	prior := m.shutdown.Get()
	m.shutdown.Set(true)
	m.delay(m.cfg.PulseMs)
	m.shutdown.Set(prior)
}

// Apply evaluates one control-loop cycle. activation is a debounced
// activation event; peerHalting is the raw peer status line. Requests are
// only honoured in RUNNING (shut down) and OFF (power on). Anything arriving
// mid-BOOT or mid-HALT is dropped; that is the double-trigger guard, not an
// oversight.
func (m *Machine) Apply(activation, peerHalting bool) {
	loadOn := m.load.Get()
	st := m.State()

	request := activation && (st == Running || st == Off)
	peer := peerHalting && st == Running
	if !request && !peer {
		return
	}

	if loadOn && st == Running {
		m.RequestShutdown()
	} else if !loadOn {
		m.PowerOn()
	}
}

// OnSecond runs in the tick context on each one-second boundary. It advances
// the elapsed counter of the current state and performs the timeout
// transitions with a reached-once comparison, so a threshold fires exactly
// one transition.
func (m *Machine) OnSecond() {
	switch m.State() {
	case Boot:
		if m.bootS.Add(1) >= m.cfg.BootTimeoutS {
			m.bootS.Store(0)
			m.set(Running)
		}
	case Halt:
		if m.haltS.Add(1) >= m.cfg.HaltTimeoutS {
			m.haltS.Store(0)
			m.load.Set(false)
			m.set(Off)
		}
	default:
		m.bootS.Store(0)
		m.haltS.Store(0)
	}
}

func (m *Machine) set(to State) {
	from := State(m.state.Swap(uint32(to)))
	if m.notify != nil && from != to {
		m.notify(from, to)
	}
}
