// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Thermoquad/nbplink/pkg/at"
	"github.com/Thermoquad/nbplink/pkg/config"
	"github.com/Thermoquad/nbplink/pkg/nbp"
	"github.com/golang/glog"
)

// ConnectionState is the radio link's lifecycle state
type ConnectionState int

const (
	Booting ConnectionState = iota
	WaitingForConnection
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Booting:
		return "BOOTING"
	case WaitingForConnection:
		return "WAITING"
	case Connected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Default lifecycle pacing
const (
	DefaultSearchInterval = 20 * time.Millisecond
	DefaultWaitPoll       = 5 * time.Millisecond
)

// Lifecycle boots the radio module and waits for clients to connect
type Lifecycle struct {
	tr     *at.Transport
	sender *Sender
	cfg    *config.Config
	sink   StatusSink
	stats  *Statistics
	debug  io.Writer

	state ConnectionState
	tail  []byte

	// SearchInterval is the minimum spacing of Searching events
	SearchInterval time.Duration
	// WaitPoll is slept between waiting polls that read nothing
	WaitPoll time.Duration
}

// NewLifecycle creates a lifecycle manager in the Booting state.
// debug may be nil.
func NewLifecycle(tr *at.Transport, sender *Sender, cfg *config.Config, sink StatusSink, stats *Statistics, debug io.Writer) *Lifecycle {
	if debug == nil {
		debug = io.Discard
	}
	return &Lifecycle{
		tr:             tr,
		sender:         sender,
		cfg:            cfg,
		sink:           sink,
		stats:          stats,
		debug:          debug,
		state:          Booting,
		SearchInterval: DefaultSearchInterval,
		WaitPoll:       DefaultWaitPoll,
	}
}

// State returns the current connection state
func (l *Lifecycle) State() ConnectionState {
	return l.state
}

func (l *Lifecycle) setState(s ConnectionState) {
	if l.state != s {
		glog.Infof("connection state %s -> %s", l.state, s)
	}
	l.state = s
	l.stats.SetState(s)
}

// Boot resets the module, enables multiplexing and starts the server.
// A failed command does not stop the sequence; the failures are returned
// joined once every command has been issued.
func (l *Lifecycle) Boot() error {
	l.setState(Booting)
	l.sink.Signal(EventBooting)

	steps := []struct {
		command string
		expect  string
		timeout time.Duration
	}{
		{at.CmdReset, at.TokenReady, l.cfg.Timeouts.Reset},
		{at.CmdMultiplex, at.TokenOK, l.cfg.Timeouts.Mux},
		{at.ServerCommand(l.cfg.ServerPort), at.TokenOK, l.cfg.Timeouts.Server},
	}

	var errs []error
	for _, step := range steps {
		call, err := l.tr.Start(at.Exchange{Command: at.Line(step.command), Expect: step.expect, Timeout: step.timeout})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		outcome, err := call.Wait()
		glog.V(2).Infof("boot %s: %s", step.command, outcome)
		if outcome == at.Success {
			continue
		}

		if err == nil {
			err = fmt.Errorf("%s: %s", step.command, outcome)
		}
		errs = append(errs, err)
		if l.cfg.Debug {
			fmt.Fprintf(l.debug, "boot %s failed (%s): %q\n", step.command, outcome, call.Response())
		}
	}

	l.setState(WaitingForConnection)
	return errors.Join(errs...)
}

// Disconnect returns to waiting for a client. Called by the driver once the
// consecutive error threshold is reached.
func (l *Lifecycle) Disconnect() {
	l.setState(WaitingForConnection)
}

// WaitForConnection polls the link until a client connects or sends data,
// signalling Searching meanwhile. On connect the control packet is sent when
// keepalive suppression is enabled. It returns only on connection, on ctx
// cancellation or on a link read failure.
func (l *Lifecycle) WaitForConnection(ctx context.Context) error {
	l.setState(WaitingForConnection)
	l.tail = l.tail[:0]

	var lastSearch time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if now := l.tr.Now(); lastSearch.IsZero() || now.Sub(lastSearch) >= l.SearchInterval {
			l.sink.Signal(EventSearching)
			lastSearch = now
		}

		matched, read, err := l.poll()
		if err != nil {
			return fmt.Errorf("waiting for connection: %w", err)
		}
		if matched != "" {
			glog.Infof("client detected (%s)", matched)
			l.enterConnected()
			return nil
		}
		if !read && l.WaitPoll > 0 {
			time.Sleep(l.WaitPoll)
		}
	}
}

// poll drains available bytes and reports the first marker found
func (l *Lifecycle) poll() (marker string, read bool, err error) {
	for {
		b, ok, err := l.tr.ReadByte()
		if err != nil || !ok {
			return "", read, err
		}
		read = true

		l.tail = append(l.tail, b)
		if len(l.tail) > len(at.MarkerConnect) {
			l.tail = l.tail[1:]
		}
		for _, m := range []string{at.MarkerConnect, at.MarkerData} {
			if strings.HasSuffix(string(l.tail), m) {
				return m, true, nil
			}
		}
	}
}

func (l *Lifecycle) enterConnected() {
	l.setState(Connected)
	if !l.cfg.SuppressKeepalive {
		return
	}

	packet := nbp.ControlPacket(l.cfg.DeviceName)
	if l.cfg.EchoPackets {
		fmt.Fprint(l.debug, packet.String())
	}

	r := l.sender.Send(packet.Bytes())
	if !r.OK() {
		glog.Warningf("control packet failed in %s phase: %s", r.Phase, r.Outcome)
		if l.cfg.Debug {
			fmt.Fprintf(l.debug, "control packet failed (%s, %s): %q\n", r.Phase, r.Outcome, r.Response)
		}
		return
	}
	l.stats.RecordControlPacket()
}
