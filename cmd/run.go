// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/nbplink/pkg/at"
	"github.com/Thermoquad/nbplink/pkg/bridge"
	"github.com/Thermoquad/nbplink/pkg/config"
	"github.com/Thermoquad/nbplink/pkg/simulator"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	simulate bool
	useTUI   bool
	seed     uint64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the radio module and broadcast telemetry",
	Long: `Boot the radio module, wait for a client and stream NBP packets to it.

The module is reset, switched to multiplexed mode and its TCP server is
started. Once a client connects (or sends data) the bridge sends a full
snapshot followed by delta updates, with a full snapshot again every
full_update_interval. After error_threshold consecutive failed sends the
bridge goes back to waiting for a connection.

With --simulate the radio module is emulated in memory and the delivered
packets are printed, for bench testing without hardware.

The terminal UI is used when stdout is a terminal; --tui=false selects the
plain text status output.`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&simulate, "simulate", false, "Use a simulated radio module")
	runCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
	runCmd.Flags().Uint64Var(&seed, "seed", 0, "Placeholder source seed (default: time based)")
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tui := useTUI && term.IsTerminal(int(os.Stdout.Fd()))

	var (
		link     at.Link
		connInfo string
	)
	if simulate {
		opts := simulator.Options{Echo: true, AutoConnect: true}
		if !tui {
			opts.Output = os.Stdout
		}
		link = simulator.New(opts)
		connInfo = "Simulated module"
	} else {
		conn, info, err := OpenConnection()
		if err != nil {
			return err
		}
		defer conn.Close()
		link, connInfo = conn, info
	}

	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	source := bridge.NewPlaceholderSource(seed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr := at.NewTransport(link)
	if tui {
		return runBridgeTUI(ctx, cfg, tr, source, connInfo)
	}
	return runBridgeText(ctx, cfg, tr, source, connInfo)
}

func runBridgeText(ctx context.Context, cfg *config.Config, tr *at.Transport, source bridge.Source, connInfo string) error {
	fmt.Printf("nbplink - Broadcast\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Device: %s, server port %d, link %d\n", cfg.DeviceName, cfg.ServerPort, cfg.LinkID)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	sink := newTextSink(os.Stdout)
	driver := bridge.NewDriver(cfg, tr, source, sink, os.Stderr)
	sink.stats = driver.Statistics()

	err := driver.Run(ctx)
	fmt.Printf("\n%s", driver.Statistics().Snapshot())
	return err
}

func runBridgeTUI(ctx context.Context, cfg *config.Config, tr *at.Transport, source bridge.Source, connInfo string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan bridge.Event, 64)
	sink := bridge.SinkFunc(func(e bridge.Event) {
		select {
		case events <- e:
		default:
		}
	})

	// Diagnostics would corrupt the alternate screen
	driver := bridge.NewDriver(cfg, tr, source, sink, nil)
	m := newStatusModel(connInfo, cfg.DeviceName, driver.Statistics())
	p := tea.NewProgram(m, tea.WithAltScreen())

	done := make(chan error, 1)
	go func() {
		err := driver.Run(ctx)
		done <- err
		p.Send(driverDoneMsg{err: err})
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-events:
				p.Send(eventMsg(e))
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	cancel()
	err := <-done
	fmt.Print(driver.Statistics().Snapshot())
	return err
}
