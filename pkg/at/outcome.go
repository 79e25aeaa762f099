// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package at

// Outcome classifies one request/response cycle
type Outcome int

const (
	// Pending means neither token has been seen and the deadline has not passed
	Pending Outcome = iota
	Success
	ProtocolError
	Timeout
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "PENDING"
	case Success:
		return "SUCCESS"
	case ProtocolError:
		return "PROTOCOL_ERROR"
	case Timeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Done reports whether the outcome is final
func (o Outcome) Done() bool {
	return o != Pending
}
