// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nbp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Line is one serialized line of a packet, without the newline
type Line struct {
	Kind LineKind
	Text string
}

// Reading is one channel line
type Reading struct {
	Name  string
	Unit  string
	Value string
}

// Float parses the reading's value
func (r Reading) Float() (float64, error) {
	return strconv.ParseFloat(r.Value, 64)
}

// Packet is an NBP packet. Packets are never modified after construction.
type Packet struct {
	control    bool
	kind       UpdateKind
	elapsed    time.Duration
	readings   []Reading
	device     string
	directives []string
	lines      []Line
	timestamp  time.Time
}

// newUpdatePacket assembles the line records of a telemetry packet
func newUpdatePacket(kind UpdateKind, elapsed time.Duration, readings []Reading, device string) *Packet {
	p := &Packet{
		kind:      kind,
		elapsed:   elapsed,
		readings:  readings,
		device:    device,
		timestamp: time.Now(),
	}

	p.lines = make([]Line, 0, len(readings)+3)
	p.lines = append(p.lines, Line{Kind: LineHeader, Text: formatHeader(kind, elapsed)})
	for _, r := range readings {
		p.lines = append(p.lines, Line{Kind: LineChannel, Text: formatReading(r)})
	}
	p.lines = append(p.lines, Line{Kind: LineTerminator, Text: Terminator})
	if kind == UpdateAll {
		p.lines = append(p.lines, Line{Kind: LineIdentity, Text: NamePrefix + device})
	}
	return p
}

// ControlPacket builds the per-connection control packet announcing the
// device name and turning the client's keepalive off
func ControlPacket(device string) *Packet {
	return newControlPacket(device, []string{KeepalivePfx + KeepaliveOff})
}

func newControlPacket(device string, directives []string) *Packet {
	p := &Packet{
		control:    true,
		device:     device,
		directives: directives,
		timestamp:  time.Now(),
	}
	p.lines = append(p.lines, Line{Kind: LineIdentity, Text: NamePrefix + device})
	for _, d := range directives {
		p.lines = append(p.lines, Line{Kind: LineDirective, Text: d})
	}
	return p
}

func formatHeader(kind UpdateKind, elapsed time.Duration) string {
	return fmt.Sprintf("%s,%s,%.3f", Tag, kind, elapsed.Seconds())
}

func formatReading(r Reading) string {
	return fmt.Sprintf("%q,%q:%s", r.Name, r.Unit, r.Value)
}

// IsControl reports whether this is a control packet
func (p *Packet) IsControl() bool {
	return p.control
}

// Kind returns the update kind (meaningless for control packets)
func (p *Packet) Kind() UpdateKind {
	return p.kind
}

// IsFull reports whether the packet is a full snapshot
func (p *Packet) IsFull() bool {
	return !p.control && p.kind == UpdateAll
}

// Elapsed returns the elapsed time carried in the header
func (p *Packet) Elapsed() time.Duration {
	return p.elapsed
}

// Readings returns a copy of the channel readings in packet order
func (p *Packet) Readings() []Reading {
	out := make([]Reading, len(p.readings))
	copy(out, p.readings)
	return out
}

// Reading looks up a channel by name
func (p *Packet) Reading(name string) (Reading, bool) {
	for _, r := range p.readings {
		if r.Name == name {
			return r, true
		}
	}
	return Reading{}, false
}

// Device returns the identity carried by the packet, if any
func (p *Packet) Device() string {
	return p.device
}

// Directives returns the control directives
func (p *Packet) Directives() []string {
	out := make([]string, len(p.directives))
	copy(out, p.directives)
	return out
}

// Lines returns a copy of the packet's line records
func (p *Packet) Lines() []Line {
	out := make([]Line, len(p.lines))
	copy(out, p.lines)
	return out
}

// Timestamp returns when the packet was built or decoded
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// String serializes the packet, one newline-terminated line per record
func (p *Packet) String() string {
	var sb strings.Builder
	for _, l := range p.lines {
		sb.WriteString(l.Text)
		sb.WriteString(Newline)
	}
	return sb.String()
}

// Bytes serializes the packet for transmission
func (p *Packet) Bytes() []byte {
	return []byte(p.String())
}
