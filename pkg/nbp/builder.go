// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nbp

import (
	"strconv"
	"time"
)

// Channel declares a telemetry channel
type Channel struct {
	Name      string
	Unit      string
	Kind      ValueKind
	Precision int // decimals for Float channels, DefaultPrecision when zero
}

// Format renders v the way the channel is written on the wire
func (c Channel) Format(v float64) string {
	if c.Kind == Integer {
		return strconv.FormatInt(int64(v), 10)
	}
	prec := c.Precision
	if prec <= 0 {
		prec = DefaultPrecision
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// normalize maps v onto the values the channel can represent
func (c Channel) normalize(v float64) float64 {
	if c.Kind == Integer {
		return float64(int64(v))
	}
	return v
}

// Sample is a freshly read channel value
type Sample struct {
	Name  string
	Value float64
}

type channelState struct {
	Channel
	current  float64
	lastSent float64
	sent     bool
}

// Builder assembles NBP packets and tracks the last value sent per channel.
// It has a single writer.
type Builder struct {
	device   string
	counter  Channel
	channels []*channelState
	index    map[string]*channelState
}

// NewBuilder creates a builder for device. The counter channel is written on
// every packet; the remaining channels only when changed or on a full snapshot.
func NewBuilder(device string, counter Channel, channels ...Channel) *Builder {
	b := &Builder{
		device:  device,
		counter: counter,
		index:   make(map[string]*channelState, len(channels)),
	}
	for _, c := range channels {
		if _, dup := b.index[c.Name]; dup {
			continue
		}
		cs := &channelState{Channel: c}
		b.channels = append(b.channels, cs)
		b.index[c.Name] = cs
	}
	return b
}

// Device returns the identity written on full snapshots
func (b *Builder) Device() string {
	return b.device
}

// Channels returns the declared channels in packet order
func (b *Builder) Channels() []Channel {
	out := make([]Channel, len(b.channels))
	for i, cs := range b.channels {
		out[i] = cs.Channel
	}
	return out
}

// Build assembles a packet from samples.
//
// A channel line is included when full is set or when its sampled value
// differs from the value last sent; the last-sent value is updated on
// inclusion. Channels without a sample keep their previous value. Samples
// for undeclared channels are ignored.
func (b *Builder) Build(full bool, elapsed time.Duration, counter uint64, samples []Sample) *Packet {
	for _, s := range samples {
		if cs, ok := b.index[s.Name]; ok {
			cs.current = cs.normalize(s.Value)
		}
	}

	kind := Update
	if full {
		kind = UpdateAll
	}

	readings := make([]Reading, 0, len(b.channels)+1)
	for _, cs := range b.channels {
		if !full && cs.sent && cs.current == cs.lastSent {
			continue
		}
		readings = append(readings, Reading{Name: cs.Name, Unit: cs.Unit, Value: cs.Format(cs.current)})
		cs.lastSent = cs.current
		cs.sent = true
	}
	readings = append(readings, Reading{
		Name:  b.counter.Name,
		Unit:  b.counter.Unit,
		Value: strconv.FormatUint(counter, 10),
	})

	return newUpdatePacket(kind, elapsed, readings, b.device)
}

// Forget clears the last-sent values so the next delta reports every channel
func (b *Builder) Forget() {
	for _, cs := range b.channels {
		cs.sent = false
		cs.lastSent = 0
	}
}
