// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package nbp implements the NBP line-oriented telemetry protocol.
//
// An NBP packet is newline-delimited text:
//
//	*NBP1,<UPDATE|UPDATEALL>,<elapsed_seconds:3dp>
//	"<channel>","<unit>":<value>        (zero or more lines)
//	#
//	@NAME:<device_name>                 (only on UPDATEALL)
//
// A control packet carrying only directives (@NAME, @KEEPALIVE) may be sent
// once per connection before telemetry starts.
package nbp

// Wire tokens
const (
	Tag          = "*NBP1"
	Terminator   = "#"
	NamePrefix   = "@NAME:"
	KeepalivePfx = "@KEEPALIVE:"
	KeepaliveOff = "OFF"
	Newline      = "\n"
)

// MaxLineLength bounds a single decoded line
const MaxLineLength = 256

// DefaultPrecision is the number of decimals written for float channels
const DefaultPrecision = 2

// UpdateKind distinguishes delta packets from full snapshots
type UpdateKind int

const (
	Update UpdateKind = iota
	UpdateAll
)

func (k UpdateKind) String() string {
	switch k {
	case Update:
		return "UPDATE"
	case UpdateAll:
		return "UPDATEALL"
	default:
		return "UNKNOWN"
	}
}

// ParseUpdateKind parses the update-kind header field
func ParseUpdateKind(s string) (UpdateKind, bool) {
	switch s {
	case "UPDATE":
		return Update, true
	case "UPDATEALL":
		return UpdateAll, true
	}
	return Update, false
}

// ValueKind is the numeric kind of a channel
type ValueKind int

const (
	Float ValueKind = iota
	Integer
)

// LineKind tags a packet line
type LineKind int

const (
	LineHeader LineKind = iota
	LineChannel
	LineTerminator
	LineIdentity
	LineDirective
)
