// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nbp

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed is wrapped by every decode error
var ErrMalformed = errors.New("nbp: malformed packet")

// maxElapsedSeconds keeps decoded header times within time.Duration
const maxElapsedSeconds = 1e9

// Decoder states
const (
	stateIdle = iota
	stateContent
	stateIdentity
	stateDirectives
)

// Decoder reassembles packets from a byte stream, one line at a time
type Decoder struct {
	state int
	line  []byte

	kind       UpdateKind
	elapsed    time.Duration
	readings   []Reading
	device     string
	directives []string
}

// NewDecoder creates a decoder waiting for a header or control line
func NewDecoder() *Decoder {
	return &Decoder{line: make([]byte, 0, MaxLineLength)}
}

// Reset drops any partially decoded packet
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.line = d.line[:0]
	d.readings = nil
	d.device = ""
	d.directives = nil
}

// DecodeByte feeds one byte. It returns a packet when one completes and an
// error when the stream violates the grammar; after an error the decoder
// resynchronizes on the next header.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	switch b {
	case '\r':
		return nil, nil
	case '\n':
		line := string(d.line)
		d.line = d.line[:0]
		return d.decodeLine(line)
	}

	if len(d.line) >= MaxLineLength {
		d.Reset()
		return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrMalformed, MaxLineLength)
	}
	d.line = append(d.line, b)
	return nil, nil
}

// Flush completes a pending name-only control packet at end of stream
func (d *Decoder) Flush() *Packet {
	if d.state == stateDirectives {
		p := newControlPacket(d.device, d.directives)
		d.Reset()
		return p
	}
	return nil
}

func (d *Decoder) decodeLine(line string) (*Packet, error) {
	if line == "" {
		return nil, nil
	}

	// A control packet completes on its keepalive directive, or carries the
	// name alone when anything else follows
	if d.state == stateDirectives {
		if strings.HasPrefix(line, KeepalivePfx) {
			d.directives = append(d.directives, line)
			p := newControlPacket(d.device, d.directives)
			d.Reset()
			return p, nil
		}
		p := newControlPacket(d.device, d.directives)
		d.Reset()
		if _, err := d.decodeLine(line); err != nil {
			return p, err
		}
		return p, nil
	}

	// A header always starts a new packet, whatever state we were in
	if strings.HasPrefix(line, Tag+",") {
		interrupted := d.state != stateIdle
		d.Reset()
		if err := d.startPacket(line); err != nil {
			return nil, err
		}
		if interrupted {
			return nil, fmt.Errorf("%w: packet interrupted by new header", ErrMalformed)
		}
		return nil, nil
	}

	switch d.state {
	case stateIdle:
		if name, ok := strings.CutPrefix(line, NamePrefix); ok {
			d.device = name
			d.state = stateDirectives
			return nil, nil
		}
		return nil, fmt.Errorf("%w: unexpected line outside packet: %q", ErrMalformed, line)

	case stateContent:
		if line == Terminator {
			if d.kind == UpdateAll {
				d.state = stateIdentity
				return nil, nil
			}
			return d.complete(), nil
		}
		r, err := ParseReading(line)
		if err != nil {
			d.Reset()
			return nil, err
		}
		d.readings = append(d.readings, r)
		return nil, nil

	case stateIdentity:
		name, ok := strings.CutPrefix(line, NamePrefix)
		if !ok {
			d.Reset()
			return nil, fmt.Errorf("%w: full snapshot without identity line", ErrMalformed)
		}
		d.device = name
		return d.complete(), nil
	}

	d.Reset()
	return nil, fmt.Errorf("%w: invalid decoder state %d", ErrMalformed, d.state)
}

func (d *Decoder) startPacket(line string) error {
	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return fmt.Errorf("%w: header has %d fields: %q", ErrMalformed, len(fields), line)
	}
	kind, ok := ParseUpdateKind(fields[1])
	if !ok {
		return fmt.Errorf("%w: unknown update kind %q", ErrMalformed, fields[1])
	}
	secs, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || math.IsNaN(secs) || secs < 0 || secs > maxElapsedSeconds {
		return fmt.Errorf("%w: bad elapsed time %q", ErrMalformed, fields[2])
	}

	d.kind = kind
	d.elapsed = time.Duration(secs * float64(time.Second)).Round(time.Millisecond)
	d.state = stateContent
	return nil
}

func (d *Decoder) complete() *Packet {
	p := newUpdatePacket(d.kind, d.elapsed, d.readings, d.device)
	d.Reset()
	return p
}

// ParseReading parses a channel line of the form "name","unit":value
func ParseReading(line string) (Reading, error) {
	bad := func() (Reading, error) {
		return Reading{}, fmt.Errorf("%w: bad channel line %q", ErrMalformed, line)
	}

	quoted, value, ok := cutLast(line, ":")
	if !ok || value == "" {
		return bad()
	}
	qname, qunit, ok := strings.Cut(quoted, `","`)
	if !ok {
		return bad()
	}
	name, err := strconv.Unquote(qname + `"`)
	if err != nil {
		return bad()
	}
	unit, err := strconv.Unquote(`"` + qunit)
	if err != nil {
		return bad()
	}
	return Reading{Name: name, Unit: unit, Value: value}, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
