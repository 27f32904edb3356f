// bus/cmd/selftest/main.go

// On-target check of the message bus, for boards where `go test` cannot run.
// Prints PASS/FAIL per case; the LED stays solid when everything passed and
// blinks otherwise.
package main

import (
	"sort"
	"time"

	"loadswitch-go/bus"
	"loadswitch-go/services/hal/platform"
)

const ledPin = 25 // onboard LED on the Pico

// --- helpers mirroring the package tests --------------------------------------

func expectOneOf(sub *bus.Subscription, want string, timeout time.Duration) (ok bool, why string) {
	select {
	case got := <-sub.Channel():
		s, ok := got.Payload.(string)
		if !ok || s != want {
			return false, "unexpected payload"
		}
		return true, ""
	case <-time.After(timeout):
		return false, "timeout"
	}
}

func expectNoMessage(sub *bus.Subscription, timeout time.Duration) (ok bool, why string) {
	select {
	case <-sub.Channel():
		return false, "unexpected message"
	case <-time.After(timeout):
		return true, ""
	}
}

func drainPayloads(sub *bus.Subscription, n int, deadline time.Time) ([]string, bool) {
	var out []string
	for len(out) < n && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			s, ok := m.Payload.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		case <-time.After(10 * time.Millisecond):
		}
	}
	return out, len(out) == n
}

func unorderedEqual(got, want []string) bool {
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// --- individual tests (return bool pass/fail) --------------------------------

func TestBasicPubSub() bool {
	b := bus.NewBus(4)
	conn := b.NewConnection("selftest")
	sub := conn.Subscribe(bus.T("power", "seq", "state"))

	conn.Publish(conn.NewMessage(bus.T("power", "seq", "state"), "hello", false))

	ok, why := expectOneOf(sub, "hello", 100*time.Millisecond)
	if !ok {
		println("TestBasicPubSub:", why)
	}
	return ok
}

func TestRetainedMessage() bool {
	b := bus.NewBus(2)
	conn := b.NewConnection("selftest")

	conn.Publish(conn.NewMessage(bus.T("config", "powerseq"), "persist", true))
	sub := conn.Subscribe(bus.T("config", "powerseq"))

	ok, why := expectOneOf(sub, "persist", 100*time.Millisecond)
	if !ok {
		println("TestRetainedMessage:", why)
	}
	return ok
}

func TestWildcardSingleLevel() bool {
	b := bus.NewBus(16)
	c := b.NewConnection("selftest")

	s1 := c.Subscribe(bus.T("a", bus.Wildcard, "c"))
	s2 := c.Subscribe(bus.T("a", bus.Wildcard, bus.Wildcard))
	sNo := c.Subscribe(bus.T("a", bus.Wildcard, "d"))

	c.Publish(c.NewMessage(bus.T("a", "b", "c"), "m1", false))
	if ok, _ := expectOneOf(s1, "m1", 200*time.Millisecond); !ok {
		println("TestWildcardSingleLevel: s1 failed")
		return false
	}
	if ok, _ := expectOneOf(s2, "m1", 200*time.Millisecond); !ok {
		println("TestWildcardSingleLevel: s2 failed")
		return false
	}
	if ok, _ := expectNoMessage(sNo, 60*time.Millisecond); !ok {
		println("TestWildcardSingleLevel: sNo got unexpected")
		return false
	}

	// A shorter topic matches nothing.
	c.Publish(c.NewMessage(bus.T("a", "c"), "m2", false))
	ok1, _ := expectNoMessage(s1, 60*time.Millisecond)
	ok2, _ := expectNoMessage(s2, 60*time.Millisecond)
	if !(ok1 && ok2) {
		println("TestWildcardSingleLevel: unexpected messages on short topic")
		return false
	}
	return true
}

func TestWildcardRetainedDelivery() bool {
	b := bus.NewBus(32)
	c := b.NewConnection("selftest")

	c.Publish(c.NewMessage(bus.T("power", "seq", "event", "boot"), "r1", true))
	c.Publish(c.NewMessage(bus.T("power", "seq", "event", "halt"), "r2", true))

	s := c.Subscribe(bus.T("power", "seq", "event", bus.Wildcard))
	got, ok := drainPayloads(s, 2, time.Now().Add(300*time.Millisecond))
	if !ok || !unorderedEqual(got, []string{"r1", "r2"}) {
		println("TestWildcardRetainedDelivery: mismatch")
		return false
	}
	return true
}

func TestRetainedClear() bool {
	b := bus.NewBus(16)
	c := b.NewConnection("selftest")

	c.Publish(c.NewMessage(bus.T("a", "b"), "stale", true))
	c.Publish(c.NewMessage(bus.T("a", "y"), "other", true))
	c.Publish(c.NewMessage(bus.T("a", "b"), nil, true))

	s := c.Subscribe(bus.T("a", bus.Wildcard))
	got, ok := drainPayloads(s, 1, time.Now().Add(300*time.Millisecond))
	if !ok || got[0] != "other" {
		println("TestRetainedClear: expected only 'other'")
		return false
	}
	return true
}

func TestOverflowKeepsNewest() bool {
	b := bus.NewBus(2)
	c := b.NewConnection("selftest")
	s := c.Subscribe(bus.T("flood"))

	for _, p := range []string{"1", "2", "3", "4"} {
		c.Publish(c.NewMessage(bus.T("flood"), p, false))
	}

	got, ok := drainPayloads(s, 2, time.Now().Add(200*time.Millisecond))
	if !ok || got[len(got)-1] != "4" {
		println("TestOverflowKeepsNewest: newest message lost")
		return false
	}
	return true
}

func TestUnsubscribeClosesChannel() bool {
	b := bus.NewBus(4)
	c := b.NewConnection("selftest")
	s := c.Subscribe(bus.T("a"))
	c.Unsubscribe(s)

	select {
	case _, open := <-s.Channel():
		if open {
			println("TestUnsubscribeClosesChannel: channel still delivering")
			return false
		}
	case <-time.After(100 * time.Millisecond):
		println("TestUnsubscribeClosesChannel: channel not closed")
		return false
	}
	return true
}

// --- main: run all tests, report, signal result on the LED --------------------

type testFn struct {
	name string
	fn   func() bool
}

func main() {
	// Give the USB CDC time to enumerate so logs show up reliably.
	time.Sleep(250 * time.Millisecond)

	led, _ := platform.DefaultPinFactory().ByNumber(ledPin)
	_ = led.ConfigureOutput(true) // signal "running"

	tests := []testFn{
		{"TestBasicPubSub", TestBasicPubSub},
		{"TestRetainedMessage", TestRetainedMessage},
		{"TestWildcardSingleLevel", TestWildcardSingleLevel},
		{"TestWildcardRetainedDelivery", TestWildcardRetainedDelivery},
		{"TestRetainedClear", TestRetainedClear},
		{"TestOverflowKeepsNewest", TestOverflowKeepsNewest},
		{"TestUnsubscribeClosesChannel", TestUnsubscribeClosesChannel},
	}

	passed, failed := 0, 0
	println("== bus self-test starting ==")
	for _, tc := range tests {
		if tc.fn() {
			println("[PASS]", tc.name)
			passed++
		} else {
			println("[FAIL]", tc.name)
			failed++
		}
		// tiny pause between tests to keep timings sane on MCU
		time.Sleep(10 * time.Millisecond)
	}
	println("== done:", passed, "passed,", failed, "failed ==")

	// LED: solid ON if all passed, otherwise slow blink forever.
	if failed == 0 {
		for {
			led.Set(true)
			time.Sleep(2 * time.Second)
		}
	}
	for {
		led.Set(true)
		time.Sleep(250 * time.Millisecond)
		led.Set(false)
		time.Sleep(250 * time.Millisecond)
	}
}
