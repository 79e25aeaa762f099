// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package at drives an ESP8266-style radio module through its AT command
// dialect over a byte-serial link.
//
// Every exchange writes a command once and then classifies the response by
// watching the tail of the accumulated bytes for the expected success token
// or the shared error token. Exchanges are deadline-bound state machines that
// can be advanced one poll at a time, so a caller never loses control of its
// own loop while waiting on the module.
package at

import (
	"fmt"
	"time"
)

// Line termination for commands
const CRLF = "\r\n"

// Response tokens
const (
	TokenOK       = "OK"
	TokenReady    = "ready"
	TokenError    = "ERROR"
	TokenPrompt   = ">"
	TokenSendOK   = "SEND OK"
	MarkerConnect = "CONNECT"
	MarkerData    = "+IPD"
)

// Commands
const (
	CmdProbe     = "AT"
	CmdReset     = "AT+RST"
	CmdMultiplex = "AT+CIPMUX=1"
)

// Default per-exchange timeouts
const (
	DefaultProbeTimeout    = 1000 * time.Millisecond
	DefaultResetTimeout    = 1250 * time.Millisecond
	DefaultMuxTimeout      = 500 * time.Millisecond
	DefaultServerTimeout   = 500 * time.Millisecond
	DefaultAnnounceTimeout = 250 * time.Millisecond
	DefaultSendTimeout     = 1000 * time.Millisecond
)

// ServerCommand returns the command starting a TCP server on port.
func ServerCommand(port int) string {
	return fmt.Sprintf("AT+CIPSERVER=1,%d", port)
}

// AnnounceCommand returns the command announcing a payload of length bytes
// for the given multiplexed link.
func AnnounceCommand(linkID, length int) string {
	return fmt.Sprintf("AT+CIPSEND=%d,%d", linkID, length)
}
