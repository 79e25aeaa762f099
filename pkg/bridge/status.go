// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

// Event is a discrete signal for the status indicator
type Event int

const (
	EventBooting Event = iota
	EventSearching
	EventSuccess
	EventError
	EventHeartbeat
)

func (e Event) String() string {
	switch e {
	case EventBooting:
		return "BOOTING"
	case EventSearching:
		return "SEARCHING"
	case EventSuccess:
		return "SUCCESS"
	case EventError:
		return "ERROR"
	case EventHeartbeat:
		return "HEARTBEAT"
	default:
		return "UNKNOWN"
	}
}

// StatusSink receives status events. Rendering them (LED ramps, blink
// cadence) is entirely the sink's concern. Signal is called from the control
// loop and must not block.
type StatusSink interface {
	Signal(Event)
}

// SinkFunc adapts a function to StatusSink
type SinkFunc func(Event)

// Signal calls f(e)
func (f SinkFunc) Signal(e Event) {
	f(e)
}

// Sinks fans an event out to several sinks
type Sinks []StatusSink

// Signal forwards e to every sink
func (s Sinks) Signal(e Event) {
	for _, sink := range s {
		sink.Signal(e)
	}
}

// Discard is a sink that drops every event
var Discard StatusSink = SinkFunc(func(Event) {})
