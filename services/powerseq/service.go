// services/powerseq/service.go

// Package powerseq sequences power for one switched DC load. A debounced
// activation input powers the load and, once it is running, requests a
// graceful shutdown over a pulsed line; the peer's own halting status line
// can request the same. Timing comes exclusively from a 1 ms tick.
package powerseq

import (
	"context"
	"sync/atomic"
	"time"

	"loadswitch-go/bus"
	"loadswitch-go/errcode"
	"loadswitch-go/services/hal/halcore"
	"loadswitch-go/services/hal/registry"
	"loadswitch-go/services/powerseq/internal/debounce"
	"loadswitch-go/services/powerseq/internal/fsm"
	"loadswitch-go/services/powerseq/internal/tick"
	"loadswitch-go/types"
	"loadswitch-go/x/timex"
)

const serviceName = "powerseq"

// configWait bounds how long startup waits for a retained config document
// before proceeding with compiled-in defaults.
const configWait = 500 * time.Millisecond

// TickDriver invokes tickFn once per millisecond until ctx is cancelled.
// platform.StartTicker is the production driver; tests substitute faster ones.
type TickDriver func(ctx context.Context, tickFn func())

type Service struct {
	cfg   types.SequencerConfig
	pins  *registry.Pins
	drive TickDriver

	// Activation provider. Defaults to the claimed activation pin; SetInput
	// substitutes e.g. a capacitive-sense routine.
	touch halcore.Input
	peer  halcore.Input

	loadPin     halcore.GPIOPin
	shutdownPin halcore.GPIOPin

	counter *tick.Counter
	machine *fsm.Machine
	conn    *bus.Connection

	// Software activation requests arriving over the bus, consumed once per
	// control cycle. The same state-validity rules apply as for the pin.
	reqPending atomic.Bool
}

func New(cfg types.SequencerConfig, pins *registry.Pins, drive TickDriver) *Service {
	return &Service{cfg: cfg, pins: pins, drive: drive}
}

// SetInput overrides the activation provider. Call before Start.
func (s *Service) SetInput(in halcore.Input) { s.touch = in }

// Start launches the sequencer in a goroutine.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	s.conn = conn
	go s.run(ctx)
	return nil
}

func (s *Service) run(ctx context.Context) {
	s.publishStatus("idle", "starting")

	s.awaitConfig(ctx)
	sanitize(&s.cfg)

	// Fail safe, not silent: a clock the timer unit cannot represent is a
	// fatal configuration error, detected before anything is driven.
	if _, err := tick.NewPlan(s.cfg.ClockHz); err != nil {
		println("Error: powerseq:", err.Error())
		s.publishStatus("error", string(errcode.TimerOutOfRange))
		return
	}

	if err := s.claimPins(); err != nil {
		println("Error: powerseq: pin claim failed:", err.Error())
		s.publishStatus("error", string(errcode.Of(err)))
		return
	}

	s.counter = tick.NewCounter()
	s.machine = fsm.New(fsm.Config{
		BootTimeoutS: s.cfg.BootTimeoutS,
		HaltTimeoutS: s.cfg.HaltTimeoutS,
		PulseMs:      s.cfg.PulseMs,
	}, s.loadPin, s.shutdownPin, s.counter.Delay)
	s.machine.Notify(s.onTransition)
	s.counter.OnSecond(s.machine.OnSecond)

	s.drive(ctx, s.counter.Tick)

	// Cancellation stops the tick driver; release any Delay parked on ticks
	// that will never arrive so the loop can observe ctx and exit.
	go func() {
		<-ctx.Done()
		s.counter.Stop()
	}()

	s.publishSeqState()
	s.publishStatus("ready", "configured")
	go s.controlFrontend(ctx)

	// Let the supply stabilize, then force the initial OFF -> BOOT: the
	// load is powered on every cold start.
	s.counter.Delay(s.cfg.StabilizeMs)
	s.machine.PowerOn()

	s.loop(ctx)
}

// loop is the foreground control cycle, self-paced through the blocking
// delay. One iteration per cycle period: sample, evaluate, transition, wait.
func (s *Service) loop(ctx context.Context) {
	deb := debounce.New(s.cfg.DebounceSamples)
	for {
		if ctx.Err() != nil {
			println("Info: powerseq stopping")
			s.publishStatus("stopped", "context_cancelled")
			return
		}

		activation := deb.Sample(s.touch.Active())
		if s.reqPending.Swap(false) {
			// A bus request is already deliberate; it skips the sampler
			// but obeys the same state-validity rules in Apply.
			activation = true
		}
		s.machine.Apply(activation, s.peer.Active())

		s.counter.Delay(s.cfg.CycleMs)
	}
}

// controlFrontend services bus verbs. It runs apart from the foreground loop
// because the loop spends almost all of its time inside the blocking delay.
func (s *Service) controlFrontend(ctx context.Context) {
	sub := s.conn.Subscribe(topicCtrlWildcard())
	defer s.conn.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.Channel():
			if len(msg.Topic) < 4 {
				continue
			}
			switch verb := msg.Topic[len(msg.Topic)-1]; verb {
			case "request":
				s.reqPending.Store(true)
				s.reply(msg, types.OKReply{OK: true}, nil)
			case "read":
				s.publishSeqState()
				s.reply(msg, types.OKReply{OK: true}, nil)
			default:
				s.reply(msg, nil, errcode.Unsupported)
			}
		}
	}
}

// awaitConfig applies a retained config/powerseq document if one shows up
// within the startup window; otherwise the compiled-in defaults stand.
func (s *Service) awaitConfig(ctx context.Context) {
	sub := s.conn.Subscribe(topicConfig())
	defer s.conn.Unsubscribe(sub)

	select {
	case <-ctx.Done():
	case msg := <-sub.Channel():
		applyOverrides(&s.cfg, msg.Payload)
	case <-time.After(configWait):
	}
}

// ---- Pins ----

// claimPins takes exclusive ownership of the four control lines and
// configures their directions and pulls.
func (s *Service) claimPins() error {
	var err error
	if s.loadPin, err = s.pins.Claim(serviceName, s.cfg.Pins.Load); err != nil {
		return err
	}
	if s.shutdownPin, err = s.pins.Claim(serviceName, s.cfg.Pins.Shutdown); err != nil {
		return err
	}
	activatePin, err := s.pins.Claim(serviceName, s.cfg.Pins.Activate)
	if err != nil {
		return err
	}
	peerPin, err := s.pins.Claim(serviceName, s.cfg.Pins.PeerHalt)
	if err != nil {
		return err
	}

	if err := s.loadPin.ConfigureOutput(false); err != nil {
		return err
	}
	if err := s.shutdownPin.ConfigureOutput(false); err != nil {
		return err
	}
	if err := activatePin.ConfigureInput(pullFor(s.cfg.ActivateInvert)); err != nil {
		return err
	}
	if err := peerPin.ConfigureInput(pullFor(s.cfg.PeerInvert)); err != nil {
		return err
	}

	if s.touch == nil {
		s.touch = halcore.PinInput{Pin: activatePin, Invert: s.cfg.ActivateInvert}
	}
	s.peer = halcore.PinInput{Pin: peerPin, Invert: s.cfg.PeerInvert}
	return nil
}

// pullFor biases an input against its active level so a floating line reads
// inactive.
func pullFor(invert bool) halcore.Pull {
	if invert {
		return halcore.PullUp
	}
	return halcore.PullDown
}

// ---- Publications ----

func (s *Service) onTransition(from, to fsm.State) {
	println("Info: powerseq:", from.String(), "->", to.String())
	s.publishSeqState()
	s.conn.Publish(&bus.Message{
		Topic: topicEvent(to.String()),
		Payload: types.SeqTransition{
			From: types.PowerState(from.String()),
			To:   types.PowerState(to.String()),
			TS:   timex.NowMs(),
		},
	})
}

func (s *Service) publishSeqState() {
	s.conn.Publish(&bus.Message{
		Topic: topicState(),
		Payload: types.SeqState{
			State: types.PowerState(s.machine.State().String()),
			Load:  s.machine.LoadOn(),
			TS:    timex.NowMs(),
		},
		Retained: true,
	})
}

func (s *Service) publishStatus(level, status string) {
	s.conn.Publish(&bus.Message{
		Topic:    topicStatus(),
		Payload:  types.ServiceState{Level: level, Status: status, TS: timex.NowMs()},
		Retained: true,
	})
}

func (s *Service) reply(msg *bus.Message, ok any, err error) {
	if msg.ReplyTo == nil {
		return
	}
	payload := ok
	if err != nil {
		payload = types.ErrorReply{OK: false, Error: string(errcode.Of(err))}
	}
	s.conn.Publish(&bus.Message{Topic: msg.ReplyTo, Payload: payload})
}
