package config

import (
	"context"
	"encoding/json"

	"loadswitch-go/bus"
	"loadswitch-go/errcode"
)

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key carrying the device ID
)

// EmbeddedConfigLookup resolves a device ID to its raw JSON document. Tests
// and the simulator override it.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// ConfigService publishes the embedded per-device configuration as one
// retained message per top-level key, at config/<key>. Services pick up
// their section on subscribe regardless of start order.
type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return &errcode.E{C: errcode.NotConfigured, Op: serviceName, Msg: "missing device ID in context"}
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return &errcode.E{C: errcode.NotConfigured, Op: serviceName, Msg: "no embedded config for device: " + device}
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return &errcode.E{C: errcode.InvalidPayload, Op: serviceName, Msg: err.Error(), Err: err}
	}

	for k, v := range m {
		conn.Publish(&bus.Message{
			Topic:    bus.T(configPrefix, k),
			Payload:  v,
			Retained: true,
		})
	}
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			println("Error: config:", err.Error())
		}
	}()
}
