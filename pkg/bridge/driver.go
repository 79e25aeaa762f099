// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge runs the telemetry broadcast: it boots the radio module,
// waits for a client, then streams NBP packets through the AT transport and
// falls back to waiting after sustained failures.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/nbplink/pkg/at"
	"github.com/Thermoquad/nbplink/pkg/config"
	"github.com/Thermoquad/nbplink/pkg/frequency"
	"github.com/Thermoquad/nbplink/pkg/nbp"
	"github.com/golang/glog"
)

// linkRetryDelay is slept after a transient read failure while waiting
const linkRetryDelay = 100 * time.Millisecond

// Session is the control loop's mutable state. The driver is its only writer.
type Session struct {
	Attempts          uint64
	ConsecutiveErrors int

	Frequency *frequency.Monitor
	Packets   *nbp.Builder

	start    time.Time
	lastFull time.Time
	hasFull  bool
}

// reset clears per-connection state
func (s *Session) reset() {
	s.ConsecutiveErrors = 0
	s.Packets.Forget()
	s.hasFull = false
}

// Driver is the broadcast control loop
type Driver struct {
	cfg       *config.Config
	tr        *at.Transport
	sender    *Sender
	lifecycle *Lifecycle
	source    Source
	sink      StatusSink
	stats     *Statistics
	debug     io.Writer

	session *Session
}

// NewDriver wires the components over tr. sink and debug may be nil.
func NewDriver(cfg *config.Config, tr *at.Transport, source Source, sink StatusSink, debug io.Writer) *Driver {
	if sink == nil {
		sink = Discard
	}
	if debug == nil || !cfg.Debug {
		debug = io.Discard
	}

	stats := NewStatistics()
	sender := NewSender(tr, cfg.LinkID, cfg.Timeouts.Announce, cfg.Timeouts.Send)

	channels := append(source.Channels(), FrequencyChannel)
	return &Driver{
		cfg:       cfg,
		tr:        tr,
		sender:    sender,
		lifecycle: NewLifecycle(tr, sender, cfg, sink, stats, debug),
		source:    source,
		sink:      sink,
		stats:     stats,
		debug:     debug,
		session: &Session{
			Frequency: frequency.NewMonitor(cfg.FrequencyWindow),
			Packets:   nbp.NewBuilder(cfg.DeviceName, CounterChannel, channels...),
			start:     tr.Now(),
		},
	}
}

// Lifecycle returns the connection lifecycle manager
func (d *Driver) Lifecycle() *Lifecycle {
	return d.lifecycle
}

// Session returns the loop state
func (d *Driver) Session() *Session {
	return d.session
}

// Statistics returns the shared statistics
func (d *Driver) Statistics() *Statistics {
	return d.stats
}

// Run boots the module, waits for a client and broadcasts until ctx is done.
// It returns nil on cancellation and an error only if the link is closed.
func (d *Driver) Run(ctx context.Context) error {
	if err := d.lifecycle.Boot(); err != nil {
		glog.Warningf("boot completed with errors: %v", err)
	}

	if err := d.connect(ctx); err != nil {
		return d.exitErr(err)
	}

	var next time.Time
	for {
		if ctx.Err() != nil {
			return nil
		}
		if d.cfg.BroadcastInterval > 0 {
			if wait := time.Until(next); wait > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(wait):
				}
			}
			next = time.Now().Add(d.cfg.BroadcastInterval)
		}

		if err := d.Step(ctx); err != nil {
			return d.exitErr(err)
		}
	}
}

func (d *Driver) exitErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// connect waits for a client, retrying transient link failures
func (d *Driver) connect(ctx context.Context) error {
	for {
		err := d.lifecycle.WaitForConnection(ctx)
		if err == nil || ctx.Err() != nil || errors.Is(err, at.ErrLinkClosed) {
			return err
		}
		glog.Warningf("%v, retrying", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(linkRetryDelay):
		}
	}
}

// Step runs one broadcast iteration. It only returns an error when a
// threshold reconnection could not complete.
func (d *Driver) Step(ctx context.Context) error {
	s := d.session

	now := d.tr.Now()
	elapsed := now.Sub(s.start)
	s.Attempts++

	rate := s.Frequency.Record(elapsed)

	if s.ConsecutiveErrors >= d.cfg.ErrorThreshold {
		glog.Warningf("%d consecutive send failures, waiting for a new connection", s.ConsecutiveErrors)
		d.stats.RecordReconnection()
		d.lifecycle.Disconnect()
		s.reset()
		if err := d.connect(ctx); err != nil {
			return err
		}
	}

	full := !s.hasFull || now.Sub(s.lastFull) >= d.cfg.FullUpdateInterval
	if full {
		s.lastFull = now
		s.hasFull = true
	}

	samples := append(d.source.Sample(elapsed), nbp.Sample{Name: FrequencyChannel.Name, Value: rate})
	packet := s.Packets.Build(full, elapsed, s.Attempts, samples)
	payload := packet.Bytes()
	if d.cfg.EchoPackets {
		d.debug.Write(payload)
	}

	r := d.sender.Send(payload)
	d.stats.Update(full, len(payload), r, rate)

	if r.OK() {
		s.ConsecutiveErrors = 0
		d.sink.Signal(EventSuccess)
	} else {
		s.ConsecutiveErrors++
		glog.V(2).Infof("send %d failed in %s phase: %s", s.Attempts, r.Phase, r.Outcome)
		if r.Outcome == at.ProtocolError {
			fmt.Fprintf(d.debug, "send %d failed (%s phase): %q\n", s.Attempts, r.Phase, r.Response)
		}
		if r.Err != nil {
			fmt.Fprintf(d.debug, "send %d link error: %v\n", s.Attempts, r.Err)
		}
		d.sink.Signal(EventError)
	}

	if s.Attempts%uint64(d.cfg.BlinkEvery) == 0 {
		d.sink.Signal(EventHeartbeat)
	}
	return nil
}
