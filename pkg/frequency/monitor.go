// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package frequency smooths the broadcast rate over a fixed window of recent
// intervals.
package frequency

import "time"

// DefaultCapacity is the default number of intervals averaged
const DefaultCapacity = 50

// Monitor is a circular buffer of instantaneous rates (Hz) with a running sum.
// It has a single writer and no locking.
type Monitor struct {
	window []float64
	sum    float64
	cursor int
	filled int

	last    time.Duration
	hasLast bool
}

// NewMonitor creates a monitor averaging capacity samples.
// A non-positive capacity falls back to DefaultCapacity.
func NewMonitor(capacity int) *Monitor {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Monitor{window: make([]float64, capacity)}
}

// Record registers a broadcast at now (time since an arbitrary epoch) and
// returns the smoothed rate in Hz.
//
// The first call only captures the timestamp, there being no prior interval.
// A zero or negative interval is skipped the same way. Until the window has
// filled once, the average is taken over the samples recorded so far.
func (m *Monitor) Record(now time.Duration) float64 {
	if !m.hasLast {
		m.last = now
		m.hasLast = true
		return m.Average()
	}

	interval := now - m.last
	m.last = now
	if interval <= 0 {
		return m.Average()
	}

	sample := float64(time.Second) / float64(interval)

	m.sum -= m.window[m.cursor]
	m.window[m.cursor] = sample
	m.sum += sample
	m.cursor = (m.cursor + 1) % len(m.window)
	if m.filled < len(m.window) {
		m.filled++
	}

	return m.Average()
}

// Average returns the smoothed rate in Hz
func (m *Monitor) Average() float64 {
	if m.filled == 0 {
		return 0
	}
	return m.sum / float64(m.filled)
}

// Sum returns the running sum of the window
func (m *Monitor) Sum() float64 {
	return m.sum
}

// Capacity returns the window size
func (m *Monitor) Capacity() int {
	return len(m.window)
}

// WarmedUp reports whether the window has been filled at least once
func (m *Monitor) WarmedUp() bool {
	return m.filled == len(m.window)
}

// Samples returns a copy of the window in slot order
func (m *Monitor) Samples() []float64 {
	out := make([]float64, len(m.window))
	copy(out, m.window)
	return out
}

// Reset forgets all samples and the last timestamp
func (m *Monitor) Reset() {
	for i := range m.window {
		m.window[i] = 0
	}
	m.sum = 0
	m.cursor = 0
	m.filled = 0
	m.hasLast = false
}
