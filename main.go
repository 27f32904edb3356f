package main

import (
	"context"
	"time"

	"loadswitch-go/bus"
	"loadswitch-go/services/config"
	"loadswitch-go/services/hal/platform"
	"loadswitch-go/services/hal/registry"
	"loadswitch-go/services/heartbeat"
	"loadswitch-go/services/powerseq"
	"loadswitch-go/types"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot")

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, "pico")

	b := bus.NewBus(8)

	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	hb := &heartbeat.Service{}
	if err := hb.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		println("Error: heartbeat start:", err.Error())
	}

	pins := registry.NewPins(platform.DefaultPinFactory())
	seq := powerseq.New(types.DefaultSequencerConfig(), pins, platform.StartTicker)
	if err := seq.Start(ctx, b.NewConnection("powerseq")); err != nil {
		println("Error: powerseq start:", err.Error())
	}

	select {}
}
