// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/nbplink/pkg/at"
	"github.com/spf13/cobra"
)

var listenDuration time.Duration

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Log unsolicited radio module output",
	Long: `Listen to the radio module without sending anything and log each line it
prints. Client connects, disconnects and incoming data are highlighted.

Useful for checking link stability and watching clients come and go while
another process owns the module's configuration.

Exit codes:
  0 - Listened for the full duration
  1 - Link failed while listening
  2 - Connection error`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().DurationVar(&listenDuration, "duration", 30*time.Second, "How long to listen")
}

// lineEvent names the module notification a line carries, if any
func lineEvent(line string) string {
	switch {
	case strings.HasSuffix(line, ","+at.MarkerConnect):
		return "CLIENT CONNECTED"
	case strings.HasSuffix(line, ",CLOSED"):
		return "CLIENT CLOSED"
	case strings.HasPrefix(line, at.MarkerData+","):
		return "CLIENT DATA"
	case line == "WIFI CONNECTED", line == "WIFI GOT IP", line == "WIFI DISCONNECT":
		return "WIFI"
	case line == at.TokenReady:
		return "MODULE READY"
	}
	return ""
}

func runListen(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("nbplink - Listen\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %s\n\n", listenDuration)

	start := time.Now()
	endTime := start.Add(listenDuration)
	nextStatus := start.Add(time.Second)
	bytesReceived, linesReceived := 0, 0

	var line []byte
	buf := make([]byte, 256)
	for time.Now().Before(endTime) {
		n, err := conn.Read(buf)
		if err != nil {
			fmt.Printf("\n[%s] Link error: %v\n", time.Now().Format("15:04:05.000"), err)
			fmt.Printf("\n--- Results ---\n")
			fmt.Printf("Duration: %s\n", time.Since(start).Round(time.Millisecond))
			fmt.Printf("Lines received: %d\n", linesReceived)
			fmt.Printf("Bytes received: %d\n", bytesReceived)
			fmt.Printf("Result: FAILED (link error)\n")
			os.Exit(1)
		}
		bytesReceived += n

		for _, b := range buf[:n] {
			if b != '\n' {
				line = append(line, b)
				continue
			}
			text := strings.TrimRight(string(line), "\r")
			line = line[:0]
			if text == "" {
				continue
			}
			linesReceived++
			timestamp := time.Now().Format("15:04:05.000")
			if event := lineEvent(text); event != "" {
				fmt.Printf("[%s] \033[1;32m%s:\033[0m %q\n", timestamp, event, text)
			} else {
				fmt.Printf("[%s] %q\n", timestamp, text)
			}
		}

		if now := time.Now(); now.After(nextStatus) {
			fmt.Printf("[%s] Still listening... (%.0fs remaining)\n",
				now.Format("15:04:05.000"), time.Until(endTime).Seconds())
			nextStatus = now.Add(time.Second)
		}
		if n == 0 {
			time.Sleep(10 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Results ---\n")
	fmt.Printf("Duration: %s\n", listenDuration)
	fmt.Printf("Lines received: %d\n", linesReceived)
	fmt.Printf("Bytes received: %d\n", bytesReceived)
	fmt.Printf("Result: PASSED (link stable)\n")

	return nil
}
