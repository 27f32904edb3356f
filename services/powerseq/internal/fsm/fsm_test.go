package fsm

import (
	"testing"

	"loadswitch-go/services/hal/halcore"
)

// ---- Test fakes ----

type fakePin struct {
	level  bool
	writes []bool
}

func (p *fakePin) ConfigureInput(_ halcore.Pull) error { return nil }
func (p *fakePin) ConfigureOutput(initial bool) error  { p.level = initial; return nil }
func (p *fakePin) Set(level bool)                      { p.level = level; p.writes = append(p.writes, level) }
func (p *fakePin) Get() bool                           { return p.level }
func (p *fakePin) Toggle()                             { p.Set(!p.level) }
func (p *fakePin) Number() int                         { return 0 }

var _ halcore.GPIOPin = (*fakePin)(nil)

func newTestMachine(bootS, haltS, pulseMs uint32) (*Machine, *fakePin, *fakePin, *[]uint32) {
	load := &fakePin{}
	shutdown := &fakePin{}
	delays := &[]uint32{}
	m := New(Config{BootTimeoutS: bootS, HaltTimeoutS: haltS, PulseMs: pulseMs},
		load, shutdown,
		func(ms uint32) { *delays = append(*delays, ms) })
	return m, load, shutdown, delays
}

func seconds(m *Machine, n int) {
	for i := 0; i < n; i++ {
		m.OnSecond()
	}
}

// ---- Tests ----

func TestOffToBootOnActivation(t *testing.T) {
	m, load, _, _ := newTestMachine(45, 15, 300)

	m.Apply(true, false)

	if m.State() != Boot {
		t.Fatalf("state = %v, want boot", m.State())
	}
	if !load.Get() {
		t.Error("load line not asserted on the same cycle")
	}
}

func TestBootAdvancesOnlyAtThreshold(t *testing.T) {
	m, _, _, _ := newTestMachine(45, 15, 300)
	m.PowerOn()

	seconds(m, 44)
	if m.State() != Boot {
		t.Fatalf("advanced to %v after 44 s, threshold is 45", m.State())
	}
	if m.BootSeconds() != 44 {
		t.Errorf("boot counter = %d, want 44", m.BootSeconds())
	}

	seconds(m, 1)
	if m.State() != Running {
		t.Fatalf("state = %v after 45 s, want running", m.State())
	}
	if m.BootSeconds() != 0 {
		t.Errorf("boot counter = %d after leaving BOOT, want 0", m.BootSeconds())
	}
}

func TestThresholdFiresExactlyOnce(t *testing.T) {
	m, _, _, _ := newTestMachine(3, 15, 300)
	transitions := 0
	m.Notify(func(from, to State) {
		if from == Boot && to == Running {
			transitions++
		}
	})
	m.PowerOn()

	// Well past the threshold: the reached-once comparison must not re-fire
	// the way the modulo form would every multiple of the threshold.
	seconds(m, 12)
	if transitions != 1 {
		t.Errorf("boot->running fired %d times, want 1", transitions)
	}
}

func TestRunningToHaltPulsesShutdownLine(t *testing.T) {
	m, load, shutdown, delays := newTestMachine(1, 15, 300)
	m.PowerOn()
	seconds(m, 1)
	if m.State() != Running {
		t.Fatalf("setup: state = %v, want running", m.State())
	}

	m.Apply(true, false)

	if m.State() != Halt {
		t.Fatalf("state = %v, want halt", m.State())
	}
	if got := shutdown.writes; len(got) != 2 || got[0] != true || got[1] != false {
		t.Errorf("shutdown line writes = %v, want [true false]", got)
	}
	if len(*delays) != 1 || (*delays)[0] != 300 {
		t.Errorf("pulse delay = %v, want [300]", *delays)
	}
	if !load.Get() {
		t.Error("load line dropped during HALT; it must stay on")
	}
}

func TestPeerHaltingTriggersShutdown(t *testing.T) {
	m, _, shutdown, _ := newTestMachine(1, 15, 300)
	m.PowerOn()
	seconds(m, 1)

	m.Apply(false, true)

	if m.State() != Halt {
		t.Fatalf("state = %v, want halt", m.State())
	}
	if len(shutdown.writes) != 2 {
		t.Errorf("expected one pulse, got writes %v", shutdown.writes)
	}
}

func TestPeerHaltingIgnoredOutsideRunning(t *testing.T) {
	m, _, shutdown, _ := newTestMachine(45, 15, 300)

	// OFF: the peer line is only valid in RUNNING.
	m.Apply(false, true)
	if m.State() != Off {
		t.Fatalf("state = %v, want off", m.State())
	}

	m.PowerOn()
	m.Apply(false, true)
	if m.State() != Boot {
		t.Errorf("peer signal honoured mid-BOOT: state = %v", m.State())
	}
	if len(shutdown.writes) != 0 {
		t.Errorf("unexpected shutdown writes %v", shutdown.writes)
	}
}

func TestRequestsIgnoredDuringBootAndHalt(t *testing.T) {
	m, _, shutdown, delays := newTestMachine(5, 5, 300)
	m.PowerOn()

	m.Apply(true, false) // mid-BOOT
	if m.State() != Boot {
		t.Fatalf("activation honoured mid-BOOT: state = %v", m.State())
	}
	if m.BootSeconds() != 0 {
		t.Errorf("boot counter disturbed by ignored request: %d", m.BootSeconds())
	}

	seconds(m, 5)
	m.Apply(true, false) // RUNNING -> HALT, one pulse
	m.Apply(true, false) // mid-HALT: no state change, no duplicate pulse
	m.Apply(false, true)

	if m.State() != Halt {
		t.Fatalf("state = %v, want halt", m.State())
	}
	if len(*delays) != 1 {
		t.Errorf("duplicate shutdown pulse: delays = %v", *delays)
	}
	if len(shutdown.writes) != 2 {
		t.Errorf("shutdown line written %d times, want 2 (one pulse)", len(shutdown.writes))
	}
}

func TestHaltToOffAtThreshold(t *testing.T) {
	m, load, _, _ := newTestMachine(1, 15, 300)
	m.PowerOn()
	seconds(m, 1)
	m.Apply(true, false)

	seconds(m, 14)
	if m.State() != Halt {
		t.Fatalf("left HALT after 14 s, threshold is 15")
	}
	seconds(m, 1)
	if m.State() != Off {
		t.Fatalf("state = %v after 15 s, want off", m.State())
	}
	if load.Get() {
		t.Error("load line still on in OFF")
	}
	if m.HaltSeconds() != 0 {
		t.Errorf("halt counter = %d after leaving HALT, want 0", m.HaltSeconds())
	}
}

func TestRoundTrip(t *testing.T) {
	m, load, _, _ := newTestMachine(45, 15, 300)

	var loadTrace []bool
	loadTrace = append(loadTrace, load.Get()) // OFF

	m.Apply(true, false) // OFF -> BOOT
	loadTrace = append(loadTrace, load.Get())

	seconds(m, 45) // BOOT -> RUNNING
	if m.State() != Running {
		t.Fatalf("state = %v, want running", m.State())
	}
	loadTrace = append(loadTrace, load.Get())

	m.Apply(true, false) // RUNNING -> HALT
	if m.State() != Halt {
		t.Fatalf("state = %v, want halt", m.State())
	}
	loadTrace = append(loadTrace, load.Get())

	seconds(m, 15) // HALT -> OFF
	if m.State() != Off {
		t.Fatalf("state = %v, want off", m.State())
	}
	loadTrace = append(loadTrace, load.Get())

	want := []bool{false, true, true, true, false}
	for i := range want {
		if loadTrace[i] != want[i] {
			t.Fatalf("load trace = %v, want %v", loadTrace, want)
		}
	}
}

func TestNoCounterLeakBetweenEpisodes(t *testing.T) {
	m, _, _, _ := newTestMachine(5, 2, 300)

	// First full episode.
	m.PowerOn()
	seconds(m, 5)
	m.Apply(true, false)
	seconds(m, 2)
	if m.State() != Off {
		t.Fatalf("setup: state = %v, want off", m.State())
	}

	// Second episode must need the full threshold again.
	m.Apply(true, false)
	seconds(m, 4)
	if m.State() != Boot {
		t.Errorf("second BOOT advanced early: state = %v", m.State())
	}
	seconds(m, 1)
	if m.State() != Running {
		t.Errorf("second BOOT did not advance at threshold: state = %v", m.State())
	}
}

func TestShutdownLinePriorLevelRestored(t *testing.T) {
	m, _, shutdown, _ := newTestMachine(1, 15, 300)
	// Wired active-low elsewhere: line idles high.
	shutdown.level = true
	m.PowerOn()
	seconds(m, 1)

	m.Apply(true, false)

	if !shutdown.Get() {
		t.Error("shutdown line not restored to its prior level after the pulse")
	}
}
