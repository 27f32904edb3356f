package heartbeat

import (
	"context"
	"time"

	"loadswitch-go/bus"
	"loadswitch-go/types"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicSeqState        = bus.T("power", "seq", "state")
)

// Service prints a periodic liveness line that includes the sequencer state,
// picked up from the retained power/seq/state document. It is the only sign
// of life on an otherwise quiet console.
type Service struct{}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	stateSub := conn.Subscribe(topicSeqState)
	defer conn.Unsubscribe(stateSub)

	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	seq := "unknown"
	load := false

	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case t := <-tick.C:
			println("Info:", t.Format("15:04:05"), "Heartbeat seq="+seq, "load="+boolStr(load))
		case msg := <-stateSub.Channel():
			if st, ok := msg.Payload.(types.SeqState); ok {
				seq = string(st.State)
				load = st.Load
			}
		case msg := <-cfgSub.Channel():
			if interval, ok := intervalFrom(msg.Payload); ok {
				tick.Reset(interval)
				println("Info:", "Heartbeat interval set to", int64(interval/time.Second), "seconds")
			}
		}
	}
}

// intervalFrom extracts a positive interval in seconds from a config payload.
// JSON decoding yields float64, but other producers may publish integer types.
func intervalFrom(payload any) (time.Duration, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return 0, false
	}
	var secs int64
	switch v := m["interval"].(type) {
	case float64:
		secs = int64(v)
	case float32:
		secs = int64(v)
	case int:
		secs = int64(v)
	case int64:
		secs = v
	case uint32:
		secs = int64(v)
	case uint64:
		secs = int64(v)
	default:
		return 0, false
	}
	if secs <= 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func boolStr(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
