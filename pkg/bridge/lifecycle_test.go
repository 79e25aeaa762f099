// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/Thermoquad/nbplink/pkg/at"
	"github.com/Thermoquad/nbplink/pkg/config"
	"github.com/Thermoquad/nbplink/pkg/nbp"
	"github.com/Thermoquad/nbplink/pkg/simulator"
	"github.com/stretchr/testify/require"
)

func TestLifecycle_Boot(t *testing.T) {
	h := newHarness(t, simulator.Options{Echo: true}, func(c *config.Config) {
		c.ServerPort = 8080
	})
	l := h.driver.Lifecycle()
	require.Equal(t, Booting, l.State())

	require.NoError(t, l.Boot())

	require.Equal(t, []string{"AT+RST", "AT+CIPMUX=1", "AT+CIPSERVER=1,8080"}, h.module.Commands())
	require.Equal(t, 8080, h.module.ServerPort())
	require.Equal(t, WaitingForConnection, l.State())
	require.Equal(t, []Event{EventBooting}, h.events)
}

func TestLifecycle_BootContinuesPastFailures(t *testing.T) {
	h := newHarness(t, simulator.Options{}, func(c *config.Config) {
		c.Debug = true
	})
	h.clock.tick = time.Millisecond
	h.module.SetSilent(true)

	err := h.driver.Lifecycle().Boot()
	require.Error(t, err)
	require.Contains(t, err.Error(), "AT+RST: TIMEOUT")
	require.Contains(t, err.Error(), "AT+CIPSERVER=1,80: TIMEOUT")

	require.Len(t, h.module.Commands(), 3)
	require.Equal(t, WaitingForConnection, h.driver.Lifecycle().State())
	require.Contains(t, h.debug.String(), "boot AT+CIPMUX=1 failed (TIMEOUT)")
}

func TestLifecycle_ConnectSendsControlPacket(t *testing.T) {
	h := newHarness(t, simulator.Options{AutoConnect: true}, nil)
	l := h.driver.Lifecycle()
	require.NoError(t, l.Boot())

	require.NoError(t, l.WaitForConnection(context.Background()))
	require.Equal(t, Connected, l.State())
	require.Contains(t, h.events, EventSearching)

	delivered := h.module.Delivered()
	require.Len(t, delivered, 1)
	require.Equal(t, nbp.ControlPacket("bench").Bytes(), delivered[0])
	require.Equal(t, uint64(1), h.driver.Statistics().Snapshot().ControlPackets)
}

func TestLifecycle_KeepaliveNotSuppressed(t *testing.T) {
	h := newHarness(t, simulator.Options{AutoConnect: true}, func(c *config.Config) {
		c.SuppressKeepalive = false
	})
	h.connected(t)
	require.Empty(t, h.module.Delivered())
}

func TestLifecycle_DataMarkerConnects(t *testing.T) {
	h := newHarness(t, simulator.Options{}, nil)
	l := h.driver.Lifecycle()
	require.NoError(t, l.Boot())

	h.module.ClientSend(2, []byte("hello"))
	require.NoError(t, l.WaitForConnection(context.Background()))
	require.Equal(t, Connected, l.State())
}

func TestLifecycle_ControlPacketFailureIsNotCounted(t *testing.T) {
	h := newHarness(t, simulator.Options{AutoConnect: true}, nil)
	l := h.driver.Lifecycle()
	require.NoError(t, l.Boot())

	h.module.FailSends(1)
	require.NoError(t, l.WaitForConnection(context.Background()))
	require.Equal(t, Connected, l.State())

	s := h.driver.Statistics().Snapshot()
	require.Zero(t, s.ControlPackets)
	require.Zero(t, s.Attempts)
	require.Zero(t, h.driver.Session().ConsecutiveErrors)
}

func TestLifecycle_SearchingIsThrottled(t *testing.T) {
	h := newHarness(t, simulator.Options{}, nil)
	l := h.driver.Lifecycle()
	require.NoError(t, l.Boot())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.WaitForConnection(ctx), context.DeadlineExceeded)
	require.Equal(t, 1, h.count(EventSearching))
}

func TestLifecycle_SearchingRepeats(t *testing.T) {
	h := newHarness(t, simulator.Options{}, nil)
	l := h.driver.Lifecycle()
	require.NoError(t, l.Boot())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	searches := 0
	h.driver.lifecycle.sink = SinkFunc(func(e Event) {
		if e == EventSearching {
			searches++
			if searches == 3 {
				cancel()
			}
		}
	})
	h.clock.tick = l.SearchInterval

	require.ErrorIs(t, l.WaitForConnection(ctx), context.Canceled)
	require.Equal(t, 3, searches)
	require.Equal(t, WaitingForConnection, l.State())
}

func TestLifecycle_WaitLinkClosed(t *testing.T) {
	h := newHarness(t, simulator.Options{}, nil)
	require.NoError(t, h.module.Close())

	err := h.driver.Lifecycle().WaitForConnection(context.Background())
	require.ErrorIs(t, err, at.ErrLinkClosed)
}
