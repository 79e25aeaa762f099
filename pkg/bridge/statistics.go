// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/nbplink/pkg/at"
)

// Snapshot holds broadcast counters at one point in time
type Snapshot struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Attempts       uint64
	Successes      uint64
	FullSnapshots  uint64
	ProtocolErrors uint64
	Timeouts       uint64
	LinkErrors     uint64
	AnnounceFails  uint64
	PayloadFails   uint64
	Reconnections  uint64
	ControlPackets uint64
	BytesSent      uint64

	// Rates (calculated)
	SendRate    float64 // smoothed attempts/sec from the frequency monitor
	SuccessRate float64 // percent

	State ConnectionState
}

// Statistics tracks broadcast outcomes. The control loop writes it; status
// renderers read snapshots from other goroutines.
type Statistics struct {
	mu   sync.Mutex
	data Snapshot
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{data: Snapshot{StartTime: now, LastUpdateTime: now}}
}

// Update records one broadcast attempt
func (s *Statistics) Update(full bool, payloadLen int, r SendResult, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &s.data

	d.Attempts++
	d.SendRate = rate
	if full {
		d.FullSnapshots++
	}

	switch {
	case r.OK():
		d.Successes++
		d.BytesSent += uint64(payloadLen)
	case r.Err != nil:
		d.LinkErrors++
	case r.Outcome == at.Timeout:
		d.Timeouts++
	default:
		d.ProtocolErrors++
	}
	if !r.OK() {
		if r.Phase == PhaseAnnounce {
			d.AnnounceFails++
		} else {
			d.PayloadFails++
		}
	}

	d.SuccessRate = float64(d.Successes) * 100.0 / float64(d.Attempts)
	d.LastUpdateTime = time.Now()
}

// RecordReconnection counts a threshold-triggered reconnection
func (s *Statistics) RecordReconnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Reconnections++
}

// RecordControlPacket counts a control packet sent on connect
func (s *Statistics) RecordControlPacket() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ControlPackets++
}

// SetState records the connection state
func (s *Statistics) SetState(state ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.State = state
}

// Snapshot returns a copy safe to read from any goroutine
func (s *Statistics) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Failures returns the number of unsuccessful attempts
func (s Snapshot) Failures() uint64 {
	return s.ProtocolErrors + s.Timeouts + s.LinkErrors
}

// String returns a formatted statistics summary
func (s Snapshot) String() string {
	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("State:           %8s\n", s.State)
	result += fmt.Sprintf("Attempts:        %8d\n", s.Attempts)
	result += fmt.Sprintf("Successful:      %8d (%.1f%%)\n", s.Successes, s.SuccessRate)
	result += fmt.Sprintf("Full Snapshots:  %8d\n", s.FullSnapshots)

	if s.ProtocolErrors > 0 {
		result += fmt.Sprintf("Protocol Errors: %8d\n", s.ProtocolErrors)
	}
	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}
	if s.LinkErrors > 0 {
		result += fmt.Sprintf("Link Errors:     %8d\n", s.LinkErrors)
	}
	if s.Failures() > 0 {
		result += fmt.Sprintf("  Announce Phase:   %5d\n", s.AnnounceFails)
		result += fmt.Sprintf("  Payload Phase:    %5d\n", s.PayloadFails)
	}
	if s.Reconnections > 0 {
		result += fmt.Sprintf("Reconnections:   %8d\n", s.Reconnections)
	}

	result += fmt.Sprintf("Bytes Sent:      %8d\n", s.BytesSent)
	result += fmt.Sprintf("Send Rate:       %8.1f pkts/sec\n", s.SendRate)
	result += "================================\n"

	return result
}
