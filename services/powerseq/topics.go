// services/powerseq/topics.go
package powerseq

import "loadswitch-go/bus"

func topicConfig() bus.Topic { return bus.T("config", "powerseq") }

func topicStatus() bus.Topic { return bus.T("power", "seq", "status") }
func topicState() bus.Topic  { return bus.T("power", "seq", "state") }

// power/seq/event/<to-state>
func topicEvent(tag string) bus.Topic { return bus.T("power", "seq", "event", tag) }

// power/seq/control/<verb>
func topicCtrlWildcard() bus.Topic { return bus.T("power", "seq", "control", bus.Wildcard) }
