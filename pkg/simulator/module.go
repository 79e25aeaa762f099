// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulator emulates an ESP8266-style radio module running the AT
// firmware, for bench runs and tests without hardware.
package simulator

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/Thermoquad/nbplink/pkg/at"
)

// Options configure the simulated module
type Options struct {
	// Echo repeats each command line back, as modules do with ATE1
	Echo bool
	// AutoConnect makes a client connect as soon as the server starts
	AutoConnect bool
	// Output receives every payload delivered to the client
	Output io.Writer
}

// Module implements at.Link. Reads never block: with nothing queued they
// return 0, nil.
type Module struct {
	mu   sync.Mutex
	opts Options

	rx   []byte // module -> host
	line []byte // partial command line from host

	payloadLeft int
	payload     []byte

	multiplexed bool
	serverPort  int
	clients     map[int]bool

	failSends int
	silent    bool
	closed    bool

	commands  []string
	delivered [][]byte
}

// New creates a simulated module
func New(opts Options) *Module {
	return &Module{
		opts:    opts,
		clients: make(map[int]bool),
	}
}

// Read implements io.Reader
func (m *Module) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, fmt.Errorf("simulator: %w", at.ErrLinkClosed)
	}
	n := copy(p, m.rx)
	m.rx = m.rx[n:]
	return n, nil
}

// Write implements io.Writer
func (m *Module) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, fmt.Errorf("simulator: %w", at.ErrLinkClosed)
	}
	for _, b := range p {
		m.writeByte(b)
	}
	return len(p), nil
}

// Close makes every further read and write fail with at.ErrLinkClosed
func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Module) writeByte(b byte) {
	if m.payloadLeft > 0 {
		m.payload = append(m.payload, b)
		m.payloadLeft--
		if m.payloadLeft == 0 {
			m.finishPayload()
		}
		return
	}

	if b == '\n' {
		cmd := strings.TrimRight(string(m.line), "\r")
		m.line = m.line[:0]
		if cmd != "" {
			m.handle(cmd)
		}
		return
	}
	m.line = append(m.line, b)
}

func (m *Module) respond(s string) {
	m.rx = append(m.rx, s...)
}

func (m *Module) handle(cmd string) {
	m.commands = append(m.commands, cmd)
	if m.silent {
		return
	}
	if m.opts.Echo {
		m.respond(cmd + "\r\r\n")
	}

	switch {
	case cmd == at.CmdProbe:
		m.respond("\r\nOK\r\n")

	case cmd == at.CmdReset:
		m.multiplexed = false
		m.serverPort = 0
		m.clients = make(map[int]bool)
		m.respond("\r\nOK\r\n\r\n ets Jan  8 2013,rst cause:2, boot mode:(3,6)\r\n\r\nready\r\n")

	case cmd == at.CmdMultiplex:
		m.multiplexed = true
		m.respond("\r\nOK\r\n")

	case strings.HasPrefix(cmd, "AT+CIPSERVER=1,"):
		port, err := strconv.Atoi(strings.TrimPrefix(cmd, "AT+CIPSERVER=1,"))
		if err != nil || !m.multiplexed {
			m.respond("\r\nERROR\r\n")
			return
		}
		m.serverPort = port
		m.respond("\r\nOK\r\n")
		if m.opts.AutoConnect {
			m.connectLocked(0)
		}

	case strings.HasPrefix(cmd, "AT+CIPSEND="):
		m.handleSend(strings.TrimPrefix(cmd, "AT+CIPSEND="))

	default:
		m.respond("\r\nERROR\r\n")
	}
}

func (m *Module) handleSend(args string) {
	idStr, lenStr, ok := strings.Cut(args, ",")
	id, errID := strconv.Atoi(idStr)
	length, errLen := strconv.Atoi(lenStr)
	if !ok || errID != nil || errLen != nil || length <= 0 || length > 2048 {
		m.respond("\r\nERROR\r\n")
		return
	}
	if !m.clients[id] {
		m.respond("\r\nlink is not valid\r\n\r\nERROR\r\n")
		return
	}
	if m.failSends > 0 {
		m.failSends--
		m.respond("\r\nbusy s...\r\n\r\nERROR\r\n")
		return
	}

	m.payloadLeft = length
	m.payload = make([]byte, 0, length)
	m.respond("\r\nOK\r\n> ")
}

func (m *Module) finishPayload() {
	m.delivered = append(m.delivered, m.payload)
	if m.opts.Output != nil {
		m.opts.Output.Write(m.payload)
	}
	m.respond(fmt.Sprintf("\r\nRecv %d bytes\r\n\r\nSEND OK\r\n", len(m.payload)))
	m.payload = nil
}

func (m *Module) connectLocked(id int) {
	m.clients[id] = true
	m.rx = append(m.rx, fmt.Sprintf("%d,CONNECT\r\n", id)...)
}

// Connect simulates client id connecting to the server
func (m *Module) Connect(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectLocked(id)
}

// Disconnect simulates client id closing its connection
func (m *Module) Disconnect(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, id)
	m.rx = append(m.rx, fmt.Sprintf("%d,CLOSED\r\n", id)...)
}

// ClientSend simulates client id sending data to the module
func (m *Module) ClientSend(id int, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[id] = true
	m.rx = append(m.rx, fmt.Sprintf("\r\n+IPD,%d,%d:", id, len(data))...)
	m.rx = append(m.rx, data...)
}

// FailSends makes the next n length announcements answer ERROR
func (m *Module) FailSends(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSends = n
}

// SetSilent makes the module record commands without acting on or
// answering them, so exchanges time out
func (m *Module) SetSilent(silent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.silent = silent
}

// SetAutoConnect changes whether a client connects when the server starts
func (m *Module) SetAutoConnect(auto bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.AutoConnect = auto
}

// ServerPort returns the port the server was started on, 0 if not started
func (m *Module) ServerPort() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serverPort
}

// Commands returns the command lines received so far
func (m *Module) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.commands))
	copy(out, m.commands)
	return out
}

// Delivered returns copies of the payloads delivered to clients
func (m *Module) Delivered() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.delivered))
	for i, p := range m.delivered {
		out[i] = append([]byte(nil), p...)
	}
	return out
}
