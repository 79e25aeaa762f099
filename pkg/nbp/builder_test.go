// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nbp

import (
	"strings"
	"testing"
	"time"
)

var (
	testCounter  = Channel{Name: "Counter"}
	testChannels = []Channel{
		{Name: "Voltage", Unit: "V", Kind: Float},
		{Name: "Random", Kind: Integer},
		{Name: "Frequency", Unit: "Hz", Kind: Float},
	}
)

func newTestBuilder() *Builder {
	return NewBuilder("bench-1", testCounter, testChannels...)
}

func samples(voltage, random, freq float64) []Sample {
	return []Sample{
		{Name: "Voltage", Value: voltage},
		{Name: "Random", Value: random},
		{Name: "Frequency", Value: freq},
	}
}

func linesOfKind(p *Packet, kind LineKind) []string {
	out := []string{}
	for _, l := range p.Lines() {
		if l.Kind == kind {
			out = append(out, l.Text)
		}
	}
	return out
}

func TestBuild_FullSnapshotWireFormat(t *testing.T) {
	b := newTestBuilder()

	p := b.Build(true, 1234567*time.Microsecond, 7, samples(3.3, 42, 49.987))

	expected := "*NBP1,UPDATEALL,1.235\n" +
		"\"Voltage\",\"V\":3.30\n" +
		"\"Random\",\"\":42\n" +
		"\"Frequency\",\"Hz\":49.99\n" +
		"\"Counter\",\"\":7\n" +
		"#\n" +
		"@NAME:bench-1\n"
	if got := p.String(); got != expected {
		t.Errorf("unexpected wire format:\n%s\nexpected:\n%s", got, expected)
	}
	if !p.IsFull() || p.Kind() != UpdateAll {
		t.Error("packet should be a full snapshot")
	}
}

func TestBuild_FullSnapshotAlwaysHasEveryChannel(t *testing.T) {
	b := newTestBuilder()
	b.Build(true, time.Second, 1, samples(1, 2, 3))

	p := b.Build(true, 2*time.Second, 2, samples(1, 2, 3))

	channels := linesOfKind(p, LineChannel)
	if len(channels) != len(testChannels)+1 {
		t.Fatalf("expected %d channel lines, got %d: %v", len(testChannels)+1, len(channels), channels)
	}
	if ids := linesOfKind(p, LineIdentity); len(ids) != 1 || ids[0] != "@NAME:bench-1" {
		t.Errorf("expected identity line, got %v", ids)
	}
}

func TestBuild_DeltaWithoutChangesHasOnlyCounter(t *testing.T) {
	b := newTestBuilder()
	b.Build(true, time.Second, 1, samples(1.5, 2, 50))

	p := b.Build(false, 2*time.Second, 2, samples(1.5, 2, 50))

	expected := "*NBP1,UPDATE,2.000\n\"Counter\",\"\":2\n#\n"
	if got := p.String(); got != expected {
		t.Errorf("expected:\n%s\ngot:\n%s", expected, got)
	}
	if len(linesOfKind(p, LineIdentity)) != 0 {
		t.Error("delta packet must not carry identity line")
	}
}

func TestBuild_DeltaIncludesOnlyChanged(t *testing.T) {
	b := newTestBuilder()
	b.Build(true, 0, 1, samples(1.5, 2, 50))

	p := b.Build(false, time.Second, 2, samples(1.5, 9, 50))
	channels := linesOfKind(p, LineChannel)
	if len(channels) != 2 || channels[0] != `"Random","":9` {
		t.Fatalf("expected Random and Counter lines, got %v", channels)
	}

	// Last-sent value was updated on inclusion
	p = b.Build(false, 2*time.Second, 3, samples(1.5, 9, 50))
	if channels := linesOfKind(p, LineChannel); len(channels) != 1 {
		t.Errorf("expected only the counter line, got %v", channels)
	}
}

func TestBuild_IntegerChannelIgnoresFraction(t *testing.T) {
	b := newTestBuilder()
	b.Build(true, 0, 1, samples(1, 2.2, 3))

	p := b.Build(false, time.Second, 2, samples(1, 2.7, 3))
	if channels := linesOfKind(p, LineChannel); len(channels) != 1 {
		t.Errorf("integer channel should not report a fractional change, got %v", channels)
	}
}

func TestBuild_FirstDeltaReportsEverything(t *testing.T) {
	b := newTestBuilder()

	p := b.Build(false, 0, 1, samples(0, 0, 0))
	if channels := linesOfKind(p, LineChannel); len(channels) != len(testChannels)+1 {
		t.Errorf("never-sent channels should be included, got %v", channels)
	}
}

func TestBuild_MissingAndUnknownSamples(t *testing.T) {
	b := newTestBuilder()
	b.Build(true, 0, 1, samples(1, 2, 3))

	p := b.Build(true, time.Second, 2, []Sample{{Name: "Bogus", Value: 99}, {Name: "Random", Value: 5}})

	r, ok := p.Reading("Voltage")
	if !ok || r.Value != "1.00" {
		t.Errorf("missing sample should keep previous value, got %+v", r)
	}
	if _, ok := p.Reading("Bogus"); ok {
		t.Error("undeclared channel should be ignored")
	}
}

func TestBuild_SuccessiveSnapshotsDifferOnlyInTimeAndCounter(t *testing.T) {
	b := newTestBuilder()
	s := samples(3.3, 42, 50)

	first := b.Build(true, time.Second, 10, s).Lines()
	second := b.Build(true, 2*time.Second, 11, s).Lines()

	if len(first) != len(second) {
		t.Fatalf("line counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		same := first[i].Text == second[i].Text
		isHeader := first[i].Kind == LineHeader
		isCounter := strings.HasPrefix(first[i].Text, `"Counter"`)
		if !same && !isHeader && !isCounter {
			t.Errorf("line %d differs: %q vs %q", i, first[i].Text, second[i].Text)
		}
		if same && (isHeader || isCounter) {
			t.Errorf("line %d should differ: %q", i, first[i].Text)
		}
	}
}

func TestBuild_PacketIsImmutable(t *testing.T) {
	b := newTestBuilder()
	p := b.Build(true, 0, 1, samples(1, 2, 3))
	before := p.String()

	lines := p.Lines()
	lines[0].Text = "tampered"
	readings := p.Readings()
	readings[0].Value = "tampered"
	b.Build(true, time.Second, 2, samples(4, 5, 6))

	if p.String() != before {
		t.Error("packet changed after construction")
	}
}

func TestBuilder_Forget(t *testing.T) {
	b := newTestBuilder()
	b.Build(true, 0, 1, samples(1, 2, 3))
	b.Forget()

	p := b.Build(false, time.Second, 2, samples(1, 2, 3))
	if channels := linesOfKind(p, LineChannel); len(channels) != len(testChannels)+1 {
		t.Errorf("after Forget every channel should be reported, got %v", channels)
	}
}

func TestNewBuilder_DuplicateChannelsIgnored(t *testing.T) {
	b := NewBuilder("x", testCounter, Channel{Name: "A"}, Channel{Name: "A", Unit: "dup"})
	if got := b.Channels(); len(got) != 1 || got[0].Unit != "" {
		t.Errorf("expected first declaration to win, got %+v", got)
	}
}

func TestControlPacket(t *testing.T) {
	p := ControlPacket("bench-1")

	if got := p.String(); got != "@NAME:bench-1\n@KEEPALIVE:OFF\n" {
		t.Errorf("unexpected control packet %q", got)
	}
	if !p.IsControl() || p.IsFull() {
		t.Error("control packet flags wrong")
	}
}

func TestChannelFormat(t *testing.T) {
	tests := []struct {
		name     string
		channel  Channel
		value    float64
		expected string
	}{
		{"default precision", Channel{Kind: Float}, 1.005, "1.00"},
		{"custom precision", Channel{Kind: Float, Precision: 4}, 3.14159, "3.1416"},
		{"integer truncates", Channel{Kind: Integer}, 7.9, "7"},
		{"negative integer", Channel{Kind: Integer}, -12, "-12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.channel.Format(tt.value); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
