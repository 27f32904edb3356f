package types

// ---- Power sequencer state (retained) ----

// PowerState names the sequencer states on the bus.
type PowerState string

const (
	PowerOff     PowerState = "off"
	PowerBoot    PowerState = "boot"
	PowerRunning PowerState = "running"
	PowerHalt    PowerState = "halt"
)

// SeqState is the retained document published at power/seq/state.
type SeqState struct {
	State PowerState `json:"state"`
	Load  bool       `json:"load"` // whether the switched load is powered
	TS    int64      `json:"ts_ms"`
}

// SeqTransition is the payload published at power/seq/event/<name>.
type SeqTransition struct {
	From PowerState `json:"from"`
	To   PowerState `json:"to"`
	TS   int64      `json:"ts_ms"`
}

// ---- Service state (retained) ----

type ServiceState struct {
	Level  string `json:"level"`  // "idle", "ready", "stopped", "error"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ms"`
}

// ---- Input payloads ----

type ButtonValue struct{ Pressed bool }

type PeerValue struct{ Halting bool }

// ---- Generic replies ----

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
