// cmd/boardtest/main.go

// Command boardtest exercises the four sequencer control lines so wiring can
// be verified with a multimeter or LEDs before the sequencer itself runs.
// Outputs are toggled in a walking pattern; inputs are sampled and printed.
package main

import (
	"time"

	"loadswitch-go/services/hal/halcore"
	"loadswitch-go/services/hal/platform"
	"loadswitch-go/services/hal/registry"
	"loadswitch-go/types"
)

const (
	stepDelay = 300 * time.Millisecond
	dwell     = 2 * time.Second

	// Cycles: 0 = loop forever
	cyclesToRun = 0
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boardtest")

	cfg := types.DefaultSequencerConfig()
	pins := registry.NewPins(platform.DefaultPinFactory())

	load, err := pins.Claim("boardtest", cfg.Pins.Load)
	if err != nil {
		println("Error: claim load:", err.Error())
		return
	}
	shutdown, err := pins.Claim("boardtest", cfg.Pins.Shutdown)
	if err != nil {
		println("Error: claim shutdown:", err.Error())
		return
	}
	activate, err := pins.Claim("boardtest", cfg.Pins.Activate)
	if err != nil {
		println("Error: claim activate:", err.Error())
		return
	}
	peer, err := pins.Claim("boardtest", cfg.Pins.PeerHalt)
	if err != nil {
		println("Error: claim peer_halt:", err.Error())
		return
	}

	if err := load.ConfigureOutput(false); err != nil {
		println("Error: configure load:", err.Error())
		return
	}
	if err := shutdown.ConfigureOutput(false); err != nil {
		println("Error: configure shutdown:", err.Error())
		return
	}
	_ = activate.ConfigureInput(pullFor(cfg.ActivateInvert))
	_ = peer.ConfigureInput(pullFor(cfg.PeerInvert))

	cycle := 0
	for {
		cycle++
		println("=== boardtest: cycle", cycle, "===")

		println("load up")
		load.Set(true)
		time.Sleep(stepDelay)
		println("shutdown up")
		shutdown.Set(true)
		time.Sleep(dwell)

		println("shutdown down")
		shutdown.Set(false)
		time.Sleep(stepDelay)
		println("load down")
		load.Set(false)

		println("activate =", levelStr(activate.Get()), " peer_halt =", levelStr(peer.Get()))
		time.Sleep(dwell)

		if cyclesToRun > 0 && cycle >= cyclesToRun {
			println("completed", cycle, "cycles; halting")
			return
		}
	}
}

// pullFor biases an input against its active level so a floating line reads
// inactive.
func pullFor(invert bool) halcore.Pull {
	if invert {
		return halcore.PullUp
	}
	return halcore.PullDown
}

func levelStr(level bool) string {
	if level {
		return "high"
	}
	return "low"
}
