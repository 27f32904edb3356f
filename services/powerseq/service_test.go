package powerseq

import (
	"context"
	"testing"
	"time"

	"loadswitch-go/bus"
	"loadswitch-go/services/hal/platform"
	"loadswitch-go/services/hal/registry"
	"loadswitch-go/types"
)

// fastDriver ticks far faster than real time so a full power episode fits in
// a test run. The ratios between timeouts are what matter, not wall time.
func fastDriver(ctx context.Context, tickFn func()) {
	go func() {
		for ctx.Err() == nil {
			tickFn()
			time.Sleep(20 * time.Microsecond)
		}
	}()
}

func testConfig() types.SequencerConfig {
	return types.SequencerConfig{
		ClockHz:         8_000_000,
		BootTimeoutS:    1,
		HaltTimeoutS:    1,
		CycleMs:         5,
		StabilizeMs:     10,
		PulseMs:         20,
		DebounceSamples: 1,
		Pins:            types.PinsConfig{Load: 10, Shutdown: 11, Activate: 12, PeerHalt: 13},
	}
}

type harness struct {
	factory *platform.HostPinFactory
	conn    *bus.Connection
	states  *bus.Subscription
	events  *bus.Subscription
	cancel  context.CancelFunc
}

func startService(t *testing.T, cfg types.SequencerConfig) *harness {
	t.Helper()

	b := bus.NewBus(32)
	factory := platform.NewHostPinFactory()
	pins := registry.NewPins(factory)

	watcher := b.NewConnection("test-watcher")
	states := watcher.Subscribe(bus.T("power", "seq", "state"))
	events := watcher.Subscribe(bus.T("power", "seq", "event", bus.Wildcard))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := New(cfg, pins, fastDriver)
	if err := svc.Start(ctx, b.NewConnection("powerseq")); err != nil {
		t.Fatalf("Start: %v", err)
	}

	return &harness{factory: factory, conn: watcher, states: states, events: events, cancel: cancel}
}

// waitForTransition blocks until a transition into want arrives.
func (h *harness) waitForTransition(t *testing.T, want types.PowerState) types.SeqTransition {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-h.events.Channel():
			tr, ok := msg.Payload.(types.SeqTransition)
			if !ok {
				t.Fatalf("event payload %T, want SeqTransition", msg.Payload)
			}
			if tr.To == want {
				return tr
			}
		case <-deadline:
			t.Fatalf("no transition into %q", want)
		}
	}
}

func TestStartupPowersLoadOn(t *testing.T) {
	h := startService(t, testConfig())

	tr := h.waitForTransition(t, types.PowerBoot)
	if tr.From != types.PowerOff {
		t.Errorf("initial transition from %q, want off", tr.From)
	}
	if !h.factory.Pin(10).Get() {
		t.Error("load pin not driven high in BOOT")
	}
}

func TestBootTimesOutIntoRunning(t *testing.T) {
	h := startService(t, testConfig())

	h.waitForTransition(t, types.PowerBoot)
	tr := h.waitForTransition(t, types.PowerRunning)
	if tr.From != types.PowerBoot {
		t.Errorf("running entered from %q, want boot", tr.From)
	}
	if !h.factory.Pin(10).Get() {
		t.Error("load pin dropped on BOOT -> RUNNING")
	}
}

func TestActivationRequestsShutdownAndPowersOff(t *testing.T) {
	h := startService(t, testConfig())
	h.waitForTransition(t, types.PowerRunning)

	// Press and hold the activation line.
	h.factory.Pin(12).SetLevel(true)

	h.waitForTransition(t, types.PowerHalt)
	h.factory.Pin(12).SetLevel(false)

	writes := h.factory.Pin(11).Writes()
	// ConfigureOutput does not record; the pulse is the first Set pair.
	if len(writes) < 2 || writes[0] != true || writes[1] != false {
		t.Errorf("shutdown pin writes = %v, want pulse [true false ...]", writes)
	}
	if !h.factory.Pin(10).Get() {
		t.Error("load pin dropped during HALT grace window")
	}

	h.waitForTransition(t, types.PowerOff)
	if h.factory.Pin(10).Get() {
		t.Error("load pin still high in OFF")
	}
}

func TestPeerHaltLineRequestsShutdown(t *testing.T) {
	h := startService(t, testConfig())
	h.waitForTransition(t, types.PowerRunning)

	h.factory.Pin(13).SetLevel(true)

	h.waitForTransition(t, types.PowerHalt)
}

func TestBusRequestRestartsAfterOff(t *testing.T) {
	h := startService(t, testConfig())
	h.waitForTransition(t, types.PowerRunning)

	h.factory.Pin(12).SetLevel(true)
	h.waitForTransition(t, types.PowerHalt)
	h.factory.Pin(12).SetLevel(false)
	h.waitForTransition(t, types.PowerOff)

	h.conn.Publish(&bus.Message{
		Topic:   bus.T("power", "seq", "control", "request"),
		Payload: nil,
	})

	tr := h.waitForTransition(t, types.PowerBoot)
	if tr.From != types.PowerOff {
		t.Errorf("restart transition from %q, want off", tr.From)
	}
}

func TestReadVerbRepublishesRetainedState(t *testing.T) {
	h := startService(t, testConfig())
	h.waitForTransition(t, types.PowerBoot)

	// Drain whatever state publications startup produced.
	for {
		select {
		case <-h.states.Channel():
			continue
		case <-time.After(50 * time.Millisecond):
		}
		break
	}

	reply := h.conn.Subscribe(bus.T("test", "reply"))
	h.conn.Publish(&bus.Message{
		Topic:   bus.T("power", "seq", "control", "read"),
		ReplyTo: bus.T("test", "reply"),
	})

	select {
	case msg := <-h.states.Channel():
		st, ok := msg.Payload.(types.SeqState)
		if !ok {
			t.Fatalf("state payload %T, want SeqState", msg.Payload)
		}
		if !st.Load {
			t.Error("read reported load off while sequencing")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read verb produced no state publication")
	}

	select {
	case msg := <-reply.Channel():
		if _, ok := msg.Payload.(types.OKReply); !ok {
			t.Errorf("reply payload %T, want OKReply", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read verb produced no reply")
	}
}

func TestUnsupportedVerbRejected(t *testing.T) {
	h := startService(t, testConfig())
	h.waitForTransition(t, types.PowerBoot)

	reply := h.conn.Subscribe(bus.T("test", "reply"))
	h.conn.Publish(&bus.Message{
		Topic:   bus.T("power", "seq", "control", "reboot"),
		ReplyTo: bus.T("test", "reply"),
	})

	select {
	case msg := <-reply.Channel():
		er, ok := msg.Payload.(types.ErrorReply)
		if !ok {
			t.Fatalf("reply payload %T, want ErrorReply", msg.Payload)
		}
		if er.OK {
			t.Error("unsupported verb acknowledged as OK")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("unsupported verb produced no reply")
	}
}

func TestCancelStopsControlLoop(t *testing.T) {
	h := startService(t, testConfig())
	h.waitForTransition(t, types.PowerBoot)

	status := h.conn.Subscribe(bus.T("power", "seq", "status"))

	// Cancel mid-cycle: the driver stops ticking, so the loop is parked in
	// a delay that no tick will ever complete.
	h.cancel()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-status.Channel():
			st, ok := msg.Payload.(types.ServiceState)
			if !ok {
				t.Fatalf("status payload %T, want ServiceState", msg.Payload)
			}
			if st.Level == "stopped" {
				return
			}
		case <-deadline:
			t.Fatal("loop never observed cancellation")
		}
	}
}

func TestInvalidClockFailsSafe(t *testing.T) {
	cfg := testConfig()
	cfg.ClockHz = 100 // below what any prescaler can stretch to 1 ms

	b := bus.NewBus(8)
	factory := platform.NewHostPinFactory()
	pins := registry.NewPins(factory)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := New(cfg, pins, fastDriver)
	if err := svc.Start(ctx, b.NewConnection("powerseq")); err != nil {
		t.Fatalf("Start: %v", err)
	}

	watcher := b.NewConnection("test-watcher")
	status := watcher.Subscribe(bus.T("power", "seq", "status"))
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-status.Channel():
			st, ok := msg.Payload.(types.ServiceState)
			if !ok {
				t.Fatalf("status payload %T, want ServiceState", msg.Payload)
			}
			if st.Level == "error" {
				if factory.Pin(10).Get() {
					t.Error("load pin driven despite fatal config")
				}
				return
			}
		case <-deadline:
			t.Fatal("no error status for unrepresentable clock")
		}
	}
}

func TestConfigOverridesFromRetainedDocument(t *testing.T) {
	cfg := types.SequencerConfig{}
	applyOverrides(&cfg, map[string]any{
		"clock_hz":         float64(16_000_000),
		"boot_timeout_s":   float64(30),
		"debounce_samples": float64(3),
		"activate_invert":  true,
		"pins": map[string]any{
			"load":      float64(5),
			"peer_halt": float64(7),
		},
	})

	if cfg.ClockHz != 16_000_000 || cfg.BootTimeoutS != 30 {
		t.Errorf("timing overrides not applied: %+v", cfg)
	}
	if cfg.DebounceSamples != 3 || !cfg.ActivateInvert {
		t.Errorf("input overrides not applied: %+v", cfg)
	}
	if cfg.Pins.Load != 5 || cfg.Pins.PeerHalt != 7 {
		t.Errorf("pin overrides not applied: %+v", cfg.Pins)
	}
}

func TestSanitizeFillsAndClamps(t *testing.T) {
	cfg := types.SequencerConfig{CycleMs: 100_000, PulseMs: 1}
	sanitize(&cfg)

	d := types.DefaultSequencerConfig()
	if cfg.ClockHz != d.ClockHz || cfg.BootTimeoutS != d.BootTimeoutS {
		t.Errorf("defaults not filled: %+v", cfg)
	}
	if cfg.CycleMs != 1000 {
		t.Errorf("CycleMs = %d, want clamped to 1000", cfg.CycleMs)
	}
	if cfg.PulseMs != 10 {
		t.Errorf("PulseMs = %d, want clamped to 10", cfg.PulseMs)
	}
}
