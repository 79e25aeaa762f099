// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"flag"
	"fmt"

	"github.com/Thermoquad/nbplink/pkg/config"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	configFile string
	settings   = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "nbplink",
	Short: "NBP telemetry bridge for AT-command radio modules",
	Long: `nbplink - Broadcast NBP telemetry through an ESP8266-style radio module.

The radio module is driven over its AT command interface: it is reset, put
into multiplexed TCP server mode, and every connected client receives a
stream of NBP packets.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Configuration is read from nbplink.yaml (working directory, user config
directory or /etc/nbplink), NBPLINK_* environment variables and flags.

For WebSocket authentication, the password is read from the NBPLINK_PASSWORD
environment variable, or prompted interactively if not set.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Bridge settings, overriding the config file
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: search for nbplink.yaml)")
	rootCmd.PersistentFlags().String("device-name", "", "Device name announced to clients")
	rootCmd.PersistentFlags().Bool("debug", false, "Write diagnostics to stderr")
	rootCmd.PersistentFlags().Bool("echo-packets", false, "Echo every packet to stderr (requires --debug)")

	bindFlag(config.KeyDeviceName, "device-name")
	bindFlag(config.KeyDebug, "debug")
	bindFlag(config.KeyEchoPackets, "echo-packets")

	// glog registers -v, -logtostderr and friends on the standard flag set
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

func bindFlag(key, name string) {
	if err := settings.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

// loadConfig reads the bridge configuration once flags are parsed
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(settings, configFile)
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("config: device=%q port=%d link=%d threshold=%d", cfg.DeviceName, cfg.ServerPort, cfg.LinkID, cfg.ErrorThreshold)
	return cfg, nil
}

// Execute runs the root command
func Execute() error {
	defer glog.Flush()
	return rootCmd.Execute()
}
