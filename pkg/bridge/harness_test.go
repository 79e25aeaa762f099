// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Thermoquad/nbplink/pkg/at"
	"github.com/Thermoquad/nbplink/pkg/config"
	"github.com/Thermoquad/nbplink/pkg/nbp"
	"github.com/Thermoquad/nbplink/pkg/simulator"
	"github.com/stretchr/testify/require"
)

// testClock only moves when advanced, plus tick on every reading
type testClock struct {
	now  time.Time
	tick time.Duration
}

func (c *testClock) Now() time.Time {
	c.now = c.now.Add(c.tick)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type harness struct {
	cfg    *config.Config
	module *simulator.Module
	clock  *testClock
	tr     *at.Transport
	driver *Driver
	debug  *bytes.Buffer
	events []Event
}

func newHarness(t *testing.T, opts simulator.Options, mutate func(*config.Config)) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.DeviceName = "bench"
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	h := &harness{
		cfg:    cfg,
		module: simulator.New(opts),
		clock:  &testClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		debug:  &bytes.Buffer{},
	}
	h.tr = at.NewTransport(h.module)
	h.tr.Now = h.clock.Now
	h.tr.PollInterval = 0

	sink := SinkFunc(func(e Event) { h.events = append(h.events, e) })
	h.driver = NewDriver(cfg, h.tr, NewPlaceholderSource(1), sink, h.debug)
	h.driver.Lifecycle().WaitPoll = 0
	return h
}

// connected boots the module and waits for the auto-connecting client
func (h *harness) connected(t *testing.T) {
	t.Helper()
	require.NoError(t, h.driver.Lifecycle().Boot())
	require.NoError(t, h.driver.Lifecycle().WaitForConnection(context.Background()))
	require.Equal(t, Connected, h.driver.Lifecycle().State())
	h.events = nil
}

func (h *harness) step(t *testing.T) {
	t.Helper()
	require.NoError(t, h.driver.Step(context.Background()))
}

func (h *harness) count(e Event) int {
	n := 0
	for _, got := range h.events {
		if got == e {
			n++
		}
	}
	return n
}

// lastPacket decodes the most recent payload the client received
func (h *harness) lastPacket(t *testing.T) *nbp.Packet {
	t.Helper()
	delivered := h.module.Delivered()
	require.NotEmpty(t, delivered)
	return decode(t, delivered[len(delivered)-1])
}

func decode(t *testing.T, payload []byte) *nbp.Packet {
	t.Helper()
	d := nbp.NewDecoder()
	for _, b := range payload {
		p, err := d.DecodeByte(b)
		require.NoError(t, err)
		if p != nil {
			return p
		}
	}
	t.Fatalf("no packet in %q", payload)
	return nil
}
