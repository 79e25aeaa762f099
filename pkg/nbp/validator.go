// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nbp

import (
	"fmt"
	"math"
)

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyInvalidValue AnomalyType = iota
	AnomalyDuplicateChannel
	AnomalyEmptyName
	AnomalyMissingIdentity
	AnomalyCounterRegression
	AnomalyTimeRegression
)

// ValidationError represents a packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket checks a decoded packet in isolation.
// Returns a slice of validation errors (empty if packet is valid)
func ValidatePacket(p *Packet) []ValidationError {
	errors := []ValidationError{}
	if p.IsControl() {
		if p.device == "" {
			errors = append(errors, ValidationError{
				Type:    AnomalyMissingIdentity,
				Message: "Control packet with empty device name",
			})
		}
		return errors
	}

	seen := make(map[string]bool, len(p.readings))
	for _, r := range p.readings {
		if r.Name == "" {
			errors = append(errors, ValidationError{
				Type:    AnomalyEmptyName,
				Message: "Channel line with empty name",
				Details: map[string]interface{}{"value": r.Value},
			})
		}
		if seen[r.Name] {
			errors = append(errors, ValidationError{
				Type:    AnomalyDuplicateChannel,
				Message: fmt.Sprintf("Channel %q appears more than once", r.Name),
				Details: map[string]interface{}{"channel": r.Name},
			})
		}
		seen[r.Name] = true

		v, err := r.Float()
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("Channel %q has non-numeric value %q", r.Name, r.Value),
				Details: map[string]interface{}{"channel": r.Name, "value": r.Value},
			})
		}
	}

	if p.IsFull() && p.device == "" {
		errors = append(errors, ValidationError{
			Type:    AnomalyMissingIdentity,
			Message: "Full snapshot with empty device name",
		})
	}

	return errors
}

// StreamValidator checks properties that span consecutive packets
type StreamValidator struct {
	counterName string
	lastCounter float64
	lastElapsed float64
	primed      bool
}

// NewStreamValidator tracks the named monotonic counter channel
func NewStreamValidator(counterName string) *StreamValidator {
	return &StreamValidator{counterName: counterName}
}

// Validate checks p in isolation and against the previous packet
func (s *StreamValidator) Validate(p *Packet) []ValidationError {
	errors := ValidatePacket(p)
	if p.IsControl() {
		// A control packet marks a new connection
		s.primed = false
		return errors
	}

	r, ok := p.Reading(s.counterName)
	if !ok {
		return errors
	}
	counter, err := r.Float()
	if err != nil {
		return errors
	}
	elapsed := p.Elapsed().Seconds()

	if s.primed {
		if counter <= s.lastCounter {
			errors = append(errors, ValidationError{
				Type:    AnomalyCounterRegression,
				Message: fmt.Sprintf("Counter went from %.0f to %.0f", s.lastCounter, counter),
				Details: map[string]interface{}{"previous": s.lastCounter, "current": counter},
			})
		}
		if elapsed < s.lastElapsed {
			errors = append(errors, ValidationError{
				Type:    AnomalyTimeRegression,
				Message: fmt.Sprintf("Elapsed time went from %.3f to %.3f", s.lastElapsed, elapsed),
				Details: map[string]interface{}{"previous": s.lastElapsed, "current": elapsed},
			})
		}
	}

	s.lastCounter = counter
	s.lastElapsed = elapsed
	s.primed = true
	return errors
}
