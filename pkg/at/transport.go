// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package at

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Errors returned when an exchange cannot be started
var (
	ErrEmptyCommand = errors.New("at: empty command")
	ErrEmptyToken   = errors.New("at: empty expected token")
)

// ErrLinkClosed is wrapped by links whose connection is gone for good
var ErrLinkClosed = errors.New("at: link closed")

// maxResponse bounds the retained response tail. Tokens are matched by
// suffix, so only the most recent bytes matter.
const maxResponse = 1024

// DefaultPollInterval is how long Exchange idles after a poll that read nothing
const DefaultPollInterval = time.Millisecond

// Link is the byte-serial connection to the radio module.
//
// Read must not block indefinitely: when no byte is available it returns
// 0, nil (a serial port with a read timeout behaves this way).
type Link interface {
	io.Reader
	io.Writer
}

// Exchange describes one request/response cycle
type Exchange struct {
	Command    string // written verbatim, include CRLF for AT commands
	Expect     string
	ErrorToken string // defaults to TokenError
	Timeout    time.Duration
}

// Transport owns the link and runs exchanges one at a time
type Transport struct {
	link Link

	// Now is the clock used for deadlines
	Now func() time.Time

	// PollInterval is slept by Exchange between polls that read no bytes
	PollInterval time.Duration

	buf [1]byte
}

// NewTransport creates a transport over link
func NewTransport(link Link) *Transport {
	return &Transport{
		link:         link,
		Now:          time.Now,
		PollInterval: DefaultPollInterval,
	}
}

// Line appends the AT line terminator to cmd
func Line(cmd string) string {
	return cmd + CRLF
}

// Start writes the command and returns a call that resolves on Poll.
// The deadline is captured before the write.
func (t *Transport) Start(ex Exchange) (*Call, error) {
	if ex.Command == "" {
		return nil, ErrEmptyCommand
	}
	if ex.Expect == "" {
		return nil, ErrEmptyToken
	}
	if ex.ErrorToken == "" {
		ex.ErrorToken = TokenError
	}

	c := &Call{
		t:        t,
		ex:       ex,
		deadline: t.Now().Add(ex.Timeout),
		resp:     make([]byte, 0, 64),
	}

	if _, err := io.WriteString(t.link, ex.Command); err != nil {
		c.err = fmt.Errorf("write %q: %w", trimCommand(ex.Command), err)
		c.outcome = ProtocolError
	}
	return c, nil
}

// Exchange writes command and polls until expect, the error token, or the
// deadline. A non-nil error means the link itself failed; the outcome is
// ProtocolError in that case.
func (t *Transport) Exchange(command string, timeout time.Duration, expect string) (Outcome, error) {
	c, err := t.Start(Exchange{Command: command, Expect: expect, Timeout: timeout})
	if err != nil {
		return ProtocolError, err
	}
	return c.Wait()
}

// ReadByte reads one byte if available.
// ok is false when the link currently has nothing to deliver.
func (t *Transport) ReadByte() (b byte, ok bool, err error) {
	n, err := t.link.Read(t.buf[:])
	if n == 1 {
		return t.buf[0], true, nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, false, err
	}
	return 0, false, nil
}

func (t *Transport) idle() {
	if t.PollInterval > 0 {
		time.Sleep(t.PollInterval)
	}
}

// Call is an exchange in flight
type Call struct {
	t        *Transport
	ex       Exchange
	deadline time.Time
	resp     []byte
	outcome  Outcome
	err      error
	idle     bool
}

// Poll drains the bytes currently available, checking the response suffix
// after each one, and resolves the call once a token matches or the deadline
// has passed. Polling a resolved call returns its outcome unchanged.
func (c *Call) Poll() Outcome {
	if c.outcome.Done() {
		return c.outcome
	}

	c.idle = true
	for {
		b, ok, err := c.t.ReadByte()
		if err != nil {
			c.err = fmt.Errorf("read response to %q: %w", trimCommand(c.ex.Command), err)
			c.outcome = ProtocolError
			return c.outcome
		}
		if !ok {
			break
		}
		c.idle = false
		c.append(b)

		if bytes.HasSuffix(c.resp, []byte(c.ex.Expect)) {
			c.outcome = Success
			return c.outcome
		}
		if bytes.HasSuffix(c.resp, []byte(c.ex.ErrorToken)) {
			c.outcome = ProtocolError
			return c.outcome
		}
		if c.expired() {
			break
		}
	}

	if c.expired() {
		c.outcome = Timeout
	}
	return c.outcome
}

// Wait polls until the call resolves
func (c *Call) Wait() (Outcome, error) {
	for !c.Poll().Done() {
		if c.idle {
			c.t.idle()
		}
	}
	return c.outcome, c.err
}

// Outcome returns the current outcome, Pending until resolved
func (c *Call) Outcome() Outcome {
	return c.outcome
}

// Err returns the link error that resolved the call, if any
func (c *Call) Err() error {
	return c.err
}

// Response returns the bytes consumed so far
func (c *Call) Response() []byte {
	return c.resp
}

// Deadline returns the time at which the call resolves to Timeout
func (c *Call) Deadline() time.Time {
	return c.deadline
}

func (c *Call) expired() bool {
	return !c.t.Now().Before(c.deadline)
}

func (c *Call) append(b byte) {
	if len(c.resp) == maxResponse {
		copy(c.resp, c.resp[1:])
		c.resp = c.resp[:maxResponse-1]
	}
	c.resp = append(c.resp, b)
}

func trimCommand(cmd string) string {
	cmd = strings.TrimRight(cmd, CRLF)
	if len(cmd) > 32 {
		return cmd[:32] + "..."
	}
	return cmd
}
