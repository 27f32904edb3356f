// services/powerseq/util.go
package powerseq

import (
	"loadswitch-go/types"
	"loadswitch-go/x/mathx"
)

// applyOverrides merges a decoded config document (map form, as the config
// service publishes it) into cfg. Unknown keys are ignored.
func applyOverrides(cfg *types.SequencerConfig, payload any) {
	m, ok := payload.(map[string]any)
	if !ok {
		return
	}
	setU32(m, "clock_hz", &cfg.ClockHz)
	setU32(m, "boot_timeout_s", &cfg.BootTimeoutS)
	setU32(m, "halt_timeout_s", &cfg.HaltTimeoutS)
	setU32(m, "cycle_ms", &cfg.CycleMs)
	setU32(m, "stabilize_ms", &cfg.StabilizeMs)
	setU32(m, "pulse_ms", &cfg.PulseMs)
	setU8(m, "debounce_samples", &cfg.DebounceSamples)
	setBool(m, "activate_invert", &cfg.ActivateInvert)
	setBool(m, "peer_invert", &cfg.PeerInvert)

	if pm, ok := m["pins"].(map[string]any); ok {
		setInt(pm, "load", &cfg.Pins.Load)
		setInt(pm, "shutdown", &cfg.Pins.Shutdown)
		setInt(pm, "activate", &cfg.Pins.Activate)
		setInt(pm, "peer_halt", &cfg.Pins.PeerHalt)
	}
}

// sanitize fills zero fields with defaults and clamps every timing value to a
// sane band. ClockHz is deliberately not clamped: a clock the tick plan
// cannot represent must fail loudly, not be silently bent into range.
func sanitize(cfg *types.SequencerConfig) {
	d := types.DefaultSequencerConfig()
	if cfg.ClockHz == 0 {
		cfg.ClockHz = d.ClockHz
	}
	if cfg.BootTimeoutS == 0 {
		cfg.BootTimeoutS = d.BootTimeoutS
	}
	if cfg.HaltTimeoutS == 0 {
		cfg.HaltTimeoutS = d.HaltTimeoutS
	}
	if cfg.CycleMs == 0 {
		cfg.CycleMs = d.CycleMs
	}
	if cfg.PulseMs == 0 {
		cfg.PulseMs = d.PulseMs
	}
	if cfg.DebounceSamples == 0 {
		cfg.DebounceSamples = d.DebounceSamples
	}

	cfg.BootTimeoutS = mathx.Clamp(cfg.BootTimeoutS, 1, 3600)
	cfg.HaltTimeoutS = mathx.Clamp(cfg.HaltTimeoutS, 1, 3600)
	cfg.CycleMs = mathx.Clamp(cfg.CycleMs, 5, 1000)
	cfg.StabilizeMs = mathx.Clamp(cfg.StabilizeMs, 0, 10_000)
	cfg.PulseMs = mathx.Clamp(cfg.PulseMs, 10, 5000)
	cfg.DebounceSamples = mathx.Clamp(cfg.DebounceSamples, 1, 10)
}

// ---- decoded-JSON field readers ----

func setU32(m map[string]any, key string, dst *uint32) {
	if v, ok := asInt64(m[key]); ok && v >= 0 {
		*dst = uint32(v)
	}
}

func setU8(m map[string]any, key string, dst *uint8) {
	if v, ok := asInt64(m[key]); ok && v >= 0 && v <= 255 {
		*dst = uint8(v)
	}
}

func setInt(m map[string]any, key string, dst *int) {
	if v, ok := asInt64(m[key]); ok {
		*dst = int(v)
	}
}

func setBool(m map[string]any, key string, dst *bool) {
	if v, ok := m[key].(bool); ok {
		*dst = v
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}
