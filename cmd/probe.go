// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/nbplink/pkg/at"
	"github.com/spf13/cobra"
)

var (
	probeTimeout time.Duration
	probeRetries int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the connection by sending AT and waiting for OK",
	Long: `Send the AT probe command to the radio module and wait for OK.

Nothing is reset or reconfigured, so probing is safe while another client
is connected to the module's server.

Exit codes:
  0 - Module answered OK
  1 - Timeout or ERROR response
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", at.DefaultProbeTimeout, "Time to wait for each answer")
	probeCmd.Flags().IntVar(&probeRetries, "retries", 3, "Probe attempts before giving up")
}

func runProbe(cmd *cobra.Command, args []string) error {
	if probeRetries < 1 {
		return fmt.Errorf("--retries must be at least 1")
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("nbplink - Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %s, %d attempts\n\n", probeTimeout, probeRetries)

	tr := at.NewTransport(conn)
	for attempt := 1; attempt <= probeRetries; attempt++ {
		call, err := tr.Start(at.Exchange{Command: at.Line(at.CmdProbe), Expect: at.TokenOK, Timeout: probeTimeout})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Probe error: %v\n", err)
			os.Exit(2)
		}

		start := time.Now()
		outcome, err := call.Wait()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Link error: %v\n", err)
			os.Exit(2)
		}

		switch outcome {
		case at.Success:
			fmt.Printf("SUCCESS: Module answered in %s\n", time.Since(start).Round(time.Millisecond))
			fmt.Printf("  Response: %q\n", call.Response())
			os.Exit(0)
		case at.ProtocolError:
			fmt.Printf("Attempt %d: ERROR response %q\n", attempt, call.Response())
		default:
			fmt.Printf("Attempt %d: %s\n", attempt, outcome)
		}
	}

	fmt.Fprintf(os.Stderr, "FAILED: No OK received after %d attempts\n", probeRetries)
	os.Exit(1)
	return nil
}
