package types

// ---- Power sequencer configuration ----

// PinsConfig names the four control lines by the platform pin numbering
// scheme (BCM numbers on Linux, GPIO numbers on RP2xxx, arbitrary on host).
type PinsConfig struct {
	Load     int `json:"load"`      // gate of the switching element
	Shutdown int `json:"shutdown"`  // shutdown-request line to the peer
	Activate int `json:"activate"`  // raw activation input (button / touch)
	PeerHalt int `json:"peer_halt"` // peer reports shutdown complete
}

// SequencerConfig is the full timing surface of the power sequencer.
// Zero values are replaced by the documented defaults.
type SequencerConfig struct {
	// Effective core clock the 1 ms tick plan is derived from.
	ClockHz uint32 `json:"clock_hz"`

	BootTimeoutS uint32 `json:"boot_timeout_s"` // BOOT -> RUNNING
	HaltTimeoutS uint32 `json:"halt_timeout_s"` // HALT -> OFF

	CycleMs     uint32 `json:"cycle_ms"`     // control loop period
	StabilizeMs uint32 `json:"stabilize_ms"` // power-on stabilization delay
	PulseMs     uint32 `json:"pulse_ms"`     // shutdown-request pulse width

	// Consecutive positive samples that must be strictly exceeded before an
	// activation event fires. 2 suits a capacitive-sense input, 3 a
	// mechanical pushbutton.
	DebounceSamples uint8 `json:"debounce_samples"`

	// ActivateInvert is true when the raw input reads low while active.
	ActivateInvert bool `json:"activate_invert"`
	PeerInvert     bool `json:"peer_invert"`

	Pins PinsConfig `json:"pins"`
}

// DefaultSequencerConfig returns the documented defaults: 45 s boot,
// 15 s halt, 100 ms cycle, 1000 ms stabilization, 300 ms pulse, capacitive
// debounce profile, 8 MHz effective clock.
func DefaultSequencerConfig() SequencerConfig {
	return SequencerConfig{
		ClockHz:         8_000_000,
		BootTimeoutS:    45,
		HaltTimeoutS:    15,
		CycleMs:         100,
		StabilizeMs:     1000,
		PulseMs:         300,
		DebounceSamples: 2,
		Pins: PinsConfig{
			Load:     0,
			Shutdown: 1,
			Activate: 2,
			PeerHalt: 3,
		},
	}
}
