package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Populate embeddedConfigs at build time (e.g. via code generation) or
// manually during development.
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgPico = `{
  "powerseq": {
    "clock_hz": 8000000,
    "boot_timeout_s": 45,
    "halt_timeout_s": 15,
    "cycle_ms": 100,
    "stabilize_ms": 1000,
    "pulse_ms": 300,
    "debounce_samples": 2,
    "pins": {
      "load": 15,
      "shutdown": 14,
      "activate": 16,
      "peer_halt": 17
    }
  },
  "heartbeat": {
    "interval": 2
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
}
