// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nbp

import (
	"strings"
	"testing"
	"time"
)

func decodeOne(t *testing.T, stream string) *Packet {
	t.Helper()
	packets, errs := decodeAll(NewDecoder(), []byte(stream))
	if len(errs) != 0 || len(packets) != 1 {
		t.Fatalf("expected one packet from %q, got %d packets, errors %v", stream, len(packets), errs)
	}
	return packets[0]
}

func hasAnomaly(errs []ValidationError, kind AnomalyType) bool {
	for _, e := range errs {
		if e.Type == kind {
			return true
		}
	}
	return false
}

func TestValidatePacket(t *testing.T) {
	tests := []struct {
		name     string
		stream   string
		expected []AnomalyType
	}{
		{
			name:   "valid delta",
			stream: "*NBP1,UPDATE,1.000\n\"Voltage\",\"V\":3.30\n\"Counter\",\"\":4\n#\n",
		},
		{
			name:     "non-numeric value",
			stream:   "*NBP1,UPDATE,1.000\n\"Voltage\",\"V\":high\n#\n",
			expected: []AnomalyType{AnomalyInvalidValue},
		},
		{
			name:     "duplicate channel",
			stream:   "*NBP1,UPDATE,1.000\n\"A\",\"\":1\n\"A\",\"\":2\n#\n",
			expected: []AnomalyType{AnomalyDuplicateChannel},
		},
		{
			name:     "empty name",
			stream:   "*NBP1,UPDATE,1.000\n\"\",\"\":1\n#\n",
			expected: []AnomalyType{AnomalyEmptyName},
		},
		{
			name:     "full snapshot with empty identity",
			stream:   "*NBP1,UPDATEALL,1.000\n#\n@NAME:\n",
			expected: []AnomalyType{AnomalyMissingIdentity},
		},
		{
			name:     "control with empty identity",
			stream:   "@NAME:\n@KEEPALIVE:OFF\n",
			expected: []AnomalyType{AnomalyMissingIdentity},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidatePacket(decodeOne(t, tt.stream))
			if len(errs) != len(tt.expected) {
				t.Fatalf("expected %d anomalies, got %v", len(tt.expected), errs)
			}
			for _, kind := range tt.expected {
				if !hasAnomaly(errs, kind) {
					t.Errorf("missing anomaly %d in %v", kind, errs)
				}
			}
		})
	}
}

func TestStreamValidator(t *testing.T) {
	b := newTestBuilder()
	v := NewStreamValidator("Counter")

	if errs := v.Validate(b.Build(true, time.Second, 1, samples(1, 2, 3))); len(errs) != 0 {
		t.Fatalf("first packet should be valid, got %v", errs)
	}
	if errs := v.Validate(b.Build(false, 2*time.Second, 2, samples(1, 2, 3))); len(errs) != 0 {
		t.Fatalf("monotonic packet should be valid, got %v", errs)
	}

	errs := v.Validate(b.Build(false, time.Second, 2, samples(1, 2, 3)))
	if !hasAnomaly(errs, AnomalyCounterRegression) || !hasAnomaly(errs, AnomalyTimeRegression) {
		t.Errorf("expected counter and time regressions, got %v", errs)
	}

	// A control packet starts a new connection
	v.Validate(ControlPacket("bench-1"))
	if errs := v.Validate(b.Build(true, 0, 1, samples(1, 2, 3))); len(errs) != 0 {
		t.Errorf("counter restart after control packet should be valid, got %v", errs)
	}
}

func TestFormatPacket(t *testing.T) {
	p := decodeOne(t, "*NBP1,UPDATEALL,2.500\n\"Voltage\",\"V\":3.30\n\"Counter\",\"\":9\n#\n@NAME:bench-1\n")
	out := FormatPacket(p)

	for _, want := range []string{"UPDATEALL t=2.500s channels=2 device=bench-1", "Voltage: 3.30 V", "Counter: 9"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted packet missing %q:\n%s", want, out)
		}
	}

	out = FormatPacket(ControlPacket("bench-1"))
	if !strings.Contains(out, "CONTROL device=bench-1") || !strings.Contains(out, "@KEEPALIVE:OFF") {
		t.Errorf("unexpected control format:\n%s", out)
	}
}
