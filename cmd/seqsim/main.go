// Command seqsim runs the power sequencer on the host against fake pins,
// with time accelerated, and replays a scripted scenario of input edges.
// Useful for trying out timing configurations without flashing a board.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"loadswitch-go/bus"
	"loadswitch-go/services/hal/platform"
	"loadswitch-go/services/hal/registry"
	"loadswitch-go/services/powerseq"
	"loadswitch-go/types"
	"loadswitch-go/x/timex"
)

// scriptEvent drives one input edge at a point in simulated time.
type scriptEvent struct {
	AtMs  uint64 `mapstructure:"at_ms"`
	Line  string `mapstructure:"line"` // "activate" or "peer"
	Level bool   `mapstructure:"level"`
}

type scenario struct {
	Speedup uint32        `mapstructure:"speedup"`
	RunForS uint32        `mapstructure:"run_for_s"` // simulated seconds, 0 = until signal
	Seq     seqOverrides  `mapstructure:"sequencer"`
	Script  []scriptEvent `mapstructure:"script"`
}

type seqOverrides struct {
	BootTimeoutS    uint32 `mapstructure:"boot_timeout_s"`
	HaltTimeoutS    uint32 `mapstructure:"halt_timeout_s"`
	CycleMs         uint32 `mapstructure:"cycle_ms"`
	StabilizeMs     uint32 `mapstructure:"stabilize_ms"`
	PulseMs         uint32 `mapstructure:"pulse_ms"`
	DebounceSamples uint8  `mapstructure:"debounce_samples"`
}

func main() {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	sc, err := loadScenario()
	if err != nil {
		log.Fatalw("error reading scenario", "err", err)
	}
	if sc.Speedup == 0 {
		sc.Speedup = 100
	}

	cfg := types.DefaultSequencerConfig()
	applyScenario(&cfg, sc.Seq)
	cfg.Pins = types.PinsConfig{Load: 0, Shutdown: 1, Activate: 2, PeerHalt: 3}

	b := bus.NewBus(32)
	factory := platform.NewHostPinFactory()
	pins := registry.NewPins(factory)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Simulated millisecond clock, advanced by the tick driver.
	var simMs atomic.Uint64
	driver := func(ctx context.Context, tickFn func()) {
		go func() {
			// Simulated ticks arrive at speedup kHz.
			period := time.Duration(timex.PeriodFromHz(1000 * sc.Speedup))
			if period <= 0 {
				period = time.Microsecond
			}
			tick := time.NewTicker(period)
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-tick.C:
					tickFn()
					simMs.Add(1)
				}
			}
		}()
	}

	go watchSequencer(ctx, b, factory, &simMs, log)
	go playScript(ctx, sc.Script, factory, &simMs, log)

	svc := powerseq.New(cfg, pins, driver)
	if err := svc.Start(ctx, b.NewConnection("powerseq")); err != nil {
		log.Fatalw("error starting sequencer", "err", err)
	}
	log.Infow("sequencer started",
		"speedup", sc.Speedup,
		"boot_timeout_s", cfg.BootTimeoutS,
		"halt_timeout_s", cfg.HaltTimeoutS,
	)

	waitForEnd(sc, &simMs, log)
}

// watchSequencer logs every transition and retained state update.
func watchSequencer(ctx context.Context, b *bus.Bus, factory *platform.HostPinFactory, simMs *atomic.Uint64, log *zap.SugaredLogger) {
	conn := b.NewConnection("seqsim-watch")
	events := conn.Subscribe(bus.T("power", "seq", "event", bus.Wildcard))
	status := conn.Subscribe(bus.T("power", "seq", "status"))

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-events.Channel():
			tr, ok := msg.Payload.(types.SeqTransition)
			if !ok {
				continue
			}
			log.Infow("transition",
				"sim_ms", simMs.Load(),
				"from", tr.From,
				"to", tr.To,
				"load", factory.Pin(0).Get(),
			)
		case msg := <-status.Channel():
			st, ok := msg.Payload.(types.ServiceState)
			if !ok {
				continue
			}
			log.Infow("status", "sim_ms", simMs.Load(), "level", st.Level, "status", st.Status)
		}
	}
}

// playScript fires each scripted edge once its simulated time arrives.
func playScript(ctx context.Context, script []scriptEvent, factory *platform.HostPinFactory, simMs *atomic.Uint64, log *zap.SugaredLogger) {
	next := 0
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()

	for next < len(script) {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			now := simMs.Load()
			for next < len(script) && script[next].AtMs <= now {
				ev := script[next]
				next++
				pin := pinForLine(ev.Line)
				if pin < 0 {
					log.Warnw("unknown script line", "line", ev.Line)
					continue
				}
				factory.Pin(pin).SetLevel(ev.Level)
				log.Infow("script edge", "sim_ms", now, "line", ev.Line, "level", ev.Level)
			}
		}
	}
}

func pinForLine(line string) int {
	switch line {
	case "activate":
		return 2
	case "peer":
		return 3
	default:
		return -1
	}
}

func waitForEnd(sc scenario, simMs *atomic.Uint64, log *zap.SugaredLogger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if sc.RunForS == 0 {
		<-quit
		log.Infow("interrupted", "sim_ms", simMs.Load())
		return
	}

	end := uint64(sc.RunForS) * 1000
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-quit:
			log.Infow("interrupted", "sim_ms", simMs.Load())
			return
		case <-tick.C:
			if simMs.Load() >= end {
				log.Infow("scenario complete", "sim_ms", simMs.Load())
				return
			}
		}
	}
}

func loadScenario() (scenario, error) {
	viper.AddConfigPath("configs") // configs/seqsim.yml
	viper.SetConfigName("seqsim")
	viper.SetDefault("speedup", 100)
	if err := viper.ReadInConfig(); err != nil {
		// A missing scenario file just means defaults and an empty script.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return scenario{}, err
		}
	}
	var sc scenario
	if err := viper.Unmarshal(&sc); err != nil {
		return scenario{}, err
	}
	return sc, nil
}

func applyScenario(cfg *types.SequencerConfig, o seqOverrides) {
	if o.BootTimeoutS > 0 {
		cfg.BootTimeoutS = o.BootTimeoutS
	}
	if o.HaltTimeoutS > 0 {
		cfg.HaltTimeoutS = o.HaltTimeoutS
	}
	if o.CycleMs > 0 {
		cfg.CycleMs = o.CycleMs
	}
	if o.StabilizeMs > 0 {
		cfg.StabilizeMs = o.StabilizeMs
	}
	if o.PulseMs > 0 {
		cfg.PulseMs = o.PulseMs
	}
	if o.DebounceSamples > 0 {
		cfg.DebounceSamples = o.DebounceSamples
	}
}

func newLogger() *zap.SugaredLogger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	encoder := zapcore.NewConsoleEncoder(cfg)
	ws := zapcore.Lock(os.Stdout)
	core := zapcore.NewCore(encoder, zapcore.AddSync(ws), zap.NewAtomicLevelAt(zapcore.InfoLevel))
	return zap.New(core).Sugar()
}
