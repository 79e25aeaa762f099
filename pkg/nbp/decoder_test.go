// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nbp

import (
	"errors"
	"testing"
	"time"
)

// decodeAll feeds data and collects packets and errors
func decodeAll(d *Decoder, data []byte) ([]*Packet, []error) {
	var packets []*Packet
	var errs []error
	for _, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if p != nil {
			packets = append(packets, p)
		}
	}
	return packets, errs
}

func TestDecoder_RoundTrip(t *testing.T) {
	b := newTestBuilder()
	built := []*Packet{
		ControlPacket("bench-1"),
		b.Build(true, 1500*time.Millisecond, 1, samples(3.3, 42, 50)),
		b.Build(false, 1600*time.Millisecond, 2, samples(3.3, 43, 50)),
		b.Build(false, 1700*time.Millisecond, 3, samples(3.3, 43, 50)),
	}

	var stream []byte
	for _, p := range built {
		stream = append(stream, p.Bytes()...)
	}

	packets, errs := decodeAll(NewDecoder(), stream)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(packets) != len(built) {
		t.Fatalf("expected %d packets, got %d", len(built), len(packets))
	}
	for i := range built {
		if packets[i].String() != built[i].String() {
			t.Errorf("packet %d mismatch:\n%s\nvs\n%s", i, packets[i], built[i])
		}
	}

	if !packets[0].IsControl() || packets[0].Device() != "bench-1" {
		t.Errorf("control packet decoded wrong: %+v", packets[0])
	}
	if packets[1].Elapsed() != 1500*time.Millisecond {
		t.Errorf("expected elapsed 1.5s, got %v", packets[1].Elapsed())
	}
	if r, ok := packets[2].Reading("Random"); !ok || r.Value != "43" {
		t.Errorf("expected Random=43, got %+v", r)
	}
}

func TestDecoder_CRLFTolerated(t *testing.T) {
	stream := "*NBP1,UPDATE,0.100\r\n\"Counter\",\"\":1\r\n#\r\n"

	packets, errs := decodeAll(NewDecoder(), []byte(stream))
	if len(errs) != 0 || len(packets) != 1 {
		t.Fatalf("expected one packet, got %d packets, errors %v", len(packets), errs)
	}
}

func TestDecoder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		stream string
	}{
		{"bad update kind", "*NBP1,UPDATESOME,0.000\n"},
		{"bad elapsed", "*NBP1,UPDATE,soon\n"},
		{"short header", "*NBP1,UPDATE\n"},
		{"bad channel line", "*NBP1,UPDATE,0.000\nVoltage=3\n"},
		{"missing identity", "*NBP1,UPDATEALL,0.000\n#\n*NBP1,UPDATE,0.100\n"},
		{"stray line", "hello\n"},
		{"interrupted packet", "*NBP1,UPDATE,0.000\n\"A\",\"\":1\n*NBP1,UPDATE,0.100\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := decodeAll(NewDecoder(), []byte(tt.stream))
			if len(errs) == 0 {
				t.Fatal("expected a decode error")
			}
			if !errors.Is(errs[0], ErrMalformed) {
				t.Errorf("error should wrap ErrMalformed: %v", errs[0])
			}
		})
	}
}

func TestDecoder_ResyncAfterError(t *testing.T) {
	stream := "garbage\n*NBP1,UPDATE,0.000\n\"Counter\",\"\":5\n#\n"

	packets, errs := decodeAll(NewDecoder(), []byte(stream))
	if len(errs) != 1 {
		t.Errorf("expected one error, got %v", errs)
	}
	if len(packets) != 1 {
		t.Fatalf("expected decoder to resync, got %d packets", len(packets))
	}
}

func TestDecoder_LineTooLong(t *testing.T) {
	d := NewDecoder()
	var err error
	for i := 0; i <= MaxLineLength && err == nil; i++ {
		_, err = d.DecodeByte('x')
	}
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected overflow error, got %v", err)
	}
}

func TestDecoder_FlushNameOnlyControl(t *testing.T) {
	d := NewDecoder()
	packets, errs := decodeAll(d, []byte("@NAME:solo\n"))
	if len(packets) != 0 || len(errs) != 0 {
		t.Fatalf("name line alone should stay pending, got %v %v", packets, errs)
	}

	p := d.Flush()
	if p == nil || !p.IsControl() || p.Device() != "solo" {
		t.Fatalf("expected name-only control packet, got %+v", p)
	}
	if d.Flush() != nil {
		t.Error("second flush should be empty")
	}
}

func TestDecoder_NameOnlyControlFollowedByHeader(t *testing.T) {
	stream := "@NAME:solo\n*NBP1,UPDATE,0.000\n\"Counter\",\"\":1\n#\n"

	packets, errs := decodeAll(NewDecoder(), []byte(stream))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(packets) != 2 || !packets[0].IsControl() || packets[1].IsControl() {
		t.Fatalf("expected control then update, got %d packets", len(packets))
	}
}

func TestParseReading(t *testing.T) {
	tests := []struct {
		line     string
		expected Reading
		wantErr  bool
	}{
		{`"Voltage","V":3.30`, Reading{"Voltage", "V", "3.30"}, false},
		{`"Counter","":12`, Reading{"Counter", "", "12"}, false},
		{`"Ratio","m:s":1`, Reading{"Ratio", "m:s", "1"}, false},
		{`"Empty","V":`, Reading{}, true},
		{`Voltage,V:1`, Reading{}, true},
		{`"Voltage":1`, Reading{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseReading(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.expected {
				t.Errorf("expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}
