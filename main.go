// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// nbplink - NBP telemetry bridge for AT-command radio modules
//
// Boots a serial-attached radio module into TCP server mode and broadcasts
// NBP telemetry packets to the connected client.

package main

import (
	"os"

	"github.com/Thermoquad/nbplink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
