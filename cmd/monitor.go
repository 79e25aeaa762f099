// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/nbplink/pkg/bridge"
	"github.com/Thermoquad/nbplink/pkg/nbp"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var (
	monitorAddr    string
	monitorShowAll bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Connect to a bridge as a client and display its packets",
	Long: `Dial the radio module's TCP server as a client and decode the NBP stream.

Each packet is printed with its update kind, elapsed time and readings.
Packets are validated as they arrive: invalid values, duplicate channels,
counter or time regressions are flagged. Use --show-all=false to hide
valid packets.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVarP(&monitorAddr, "addr", "a", "192.168.4.1:80", "Bridge address (host:port)")
	monitorCmd.Flags().BoolVar(&monitorShowAll, "show-all", true, "Show valid packets (false: anomalies only)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", monitorAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", monitorAddr, err)
	}
	defer conn.Close()

	// Unblock the read loop on Ctrl+C
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	fmt.Printf("nbplink - Monitor\n")
	fmt.Printf("Connection: TCP %s\n", monitorAddr)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	count, anomalies := monitorStream(conn, os.Stdout)
	fmt.Printf("\n%d packets, %d anomalies\n", count, anomalies)
	return nil
}

// monitorStream decodes packets from r until it fails, printing each one
func monitorStream(r io.Reader, out io.Writer) (packets, anomalies int) {
	decoder := nbp.NewDecoder()
	validator := nbp.NewStreamValidator(bridge.CounterChannel.Name)

	report := func(p *nbp.Packet) {
		packets++
		problems := validator.Validate(p)
		anomalies += len(problems)
		if monitorShowAll || len(problems) > 0 {
			fmt.Fprint(out, nbp.FormatPacket(p))
		}
		for _, problem := range problems {
			fmt.Fprintf(out, "  \033[1;33mANOMALY:\033[0m %s\n", problem.Error())
		}
	}

	buf := make([]byte, 512)
	for {
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			packet, decodeErr := decoder.DecodeByte(buf[i])
			if decodeErr != nil {
				fmt.Fprintf(out, "[ERROR] %v\n", decodeErr)
				continue
			}
			if packet != nil {
				report(packet)
			}
		}
		if err != nil {
			if packet := decoder.Flush(); packet != nil {
				report(packet)
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				glog.Info("connection closed")
			} else {
				glog.Warningf("read error: %v", err)
			}
			return packets, anomalies
		}
	}
}
