// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/nbplink/pkg/bridge"
)

// textSink renders status events as log lines. Repeated Searching and Error
// events collapse into one line each.
type textSink struct {
	out       io.Writer
	stats     *bridge.Statistics
	searching bool
	errors    int
}

func newTextSink(out io.Writer) *textSink {
	return &textSink{out: out}
}

func (s *textSink) printf(format string, args ...any) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(s.out, "[%s] "+format+"\n", append([]any{timestamp}, args...)...)
}

// Signal implements bridge.StatusSink
func (s *textSink) Signal(e bridge.Event) {
	switch e {
	case bridge.EventBooting:
		s.printf("Booting radio module")

	case bridge.EventSearching:
		if !s.searching {
			s.printf("Waiting for a client to connect...")
		}
		s.searching = true

	case bridge.EventSuccess:
		if s.searching {
			s.printf("Client connected")
		}
		if s.errors > 0 {
			s.printf("Recovered after %d failed sends", s.errors)
		}
		s.searching = false
		s.errors = 0

	case bridge.EventError:
		s.searching = false
		s.errors++
		if s.errors == 1 {
			s.printf("Send failed")
		}

	case bridge.EventHeartbeat:
		if s.stats == nil {
			return
		}
		snap := s.stats.Snapshot()
		s.printf("%s: %d sent, %d ok (%.1f%%), %.1f pkts/sec",
			snap.State, snap.Attempts, snap.Successes, snap.SuccessRate, snap.SendRate)
	}
}
