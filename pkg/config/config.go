// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads bridge settings from defaults, an optional YAML file,
// NBPLINK_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/spf13/viper"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix is prepended to environment variable names
const EnvPrefix = "NBPLINK"

// Configuration keys
const (
	KeyDeviceName         = "device_name"
	KeyDebug              = "debug"
	KeyEchoPackets        = "echo_packets"
	KeySuppressKeepalive  = "suppress_keepalive"
	KeyBlinkEvery         = "blink_every"
	KeyFullUpdateInterval = "full_update_interval"
	KeyBroadcastInterval  = "broadcast_interval"
	KeyErrorThreshold     = "error_threshold"
	KeyFrequencyWindow    = "frequency_window"
	KeyLinkID             = "link_id"
	KeyServerPort         = "server_port"
	KeyTimeoutReset       = "timeouts.reset"
	KeyTimeoutMux         = "timeouts.mux"
	KeyTimeoutServer      = "timeouts.server"
	KeyTimeoutAnnounce    = "timeouts.announce"
	KeyTimeoutSend        = "timeouts.send"
)

// Timeouts holds one deadline per AT command class
type Timeouts struct {
	Reset    time.Duration `mapstructure:"reset"`
	Mux      time.Duration `mapstructure:"mux"`
	Server   time.Duration `mapstructure:"server"`
	Announce time.Duration `mapstructure:"announce"`
	Send     time.Duration `mapstructure:"send"`
}

// Config holds the bridge configuration
type Config struct {
	DeviceName         string        `mapstructure:"device_name"`
	Debug              bool          `mapstructure:"debug"`
	EchoPackets        bool          `mapstructure:"echo_packets"`
	SuppressKeepalive  bool          `mapstructure:"suppress_keepalive"`
	BlinkEvery         int           `mapstructure:"blink_every"`
	FullUpdateInterval time.Duration `mapstructure:"full_update_interval"`
	BroadcastInterval  time.Duration `mapstructure:"broadcast_interval"`
	ErrorThreshold     int           `mapstructure:"error_threshold"`
	FrequencyWindow    int           `mapstructure:"frequency_window"`
	LinkID             int           `mapstructure:"link_id"`
	ServerPort         int           `mapstructure:"server_port"`
	Timeouts           Timeouts      `mapstructure:"timeouts"`
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDeviceName, "")
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyEchoPackets, false)
	v.SetDefault(KeySuppressKeepalive, true)
	v.SetDefault(KeyBlinkEvery, 10)
	v.SetDefault(KeyFullUpdateInterval, "5s")
	v.SetDefault(KeyBroadcastInterval, "0s")
	v.SetDefault(KeyErrorThreshold, 5)
	v.SetDefault(KeyFrequencyWindow, 50)
	v.SetDefault(KeyLinkID, 0)
	v.SetDefault(KeyServerPort, 80)
	v.SetDefault(KeyTimeoutReset, "1250ms")
	v.SetDefault(KeyTimeoutMux, "500ms")
	v.SetDefault(KeyTimeoutServer, "500ms")
	v.SetDefault(KeyTimeoutAnnounce, "250ms")
	v.SetDefault(KeyTimeoutSend, "1s")
}

// Default returns the configuration with only defaults applied
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	// Defaults always decode
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads the configuration. If configFile is empty, nbplink.yaml is
// searched for in the working directory, the user config directory and
// /etc/nbplink; a missing file is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("nbplink")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "nbplink"))
		}
		v.AddConfigPath("/etc/nbplink/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	if cfg.DeviceName == "" {
		cfg.DeviceName = DefaultDeviceName()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the bridge cannot run with
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalid}, args...)...))
	}

	if c.DeviceName == "" {
		invalid("%s must not be empty", KeyDeviceName)
	}
	if strings.ContainsAny(c.DeviceName, "\r\n") {
		invalid("%s must be a single line", KeyDeviceName)
	}
	if c.EchoPackets && !c.Debug {
		invalid("%s requires %s", KeyEchoPackets, KeyDebug)
	}
	if c.BlinkEvery <= 0 {
		invalid("%s must be positive, got %d", KeyBlinkEvery, c.BlinkEvery)
	}
	if c.FullUpdateInterval <= 0 {
		invalid("%s must be positive, got %v", KeyFullUpdateInterval, c.FullUpdateInterval)
	}
	if c.BroadcastInterval < 0 {
		invalid("%s must not be negative, got %v", KeyBroadcastInterval, c.BroadcastInterval)
	}
	if c.ErrorThreshold <= 0 {
		invalid("%s must be positive, got %d", KeyErrorThreshold, c.ErrorThreshold)
	}
	if c.FrequencyWindow <= 0 {
		invalid("%s must be positive, got %d", KeyFrequencyWindow, c.FrequencyWindow)
	}
	if c.LinkID < 0 || c.LinkID > 4 {
		invalid("%s must be 0-4, got %d", KeyLinkID, c.LinkID)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		invalid("%s must be 1-65535, got %d", KeyServerPort, c.ServerPort)
	}

	timeouts := map[string]time.Duration{
		KeyTimeoutReset:    c.Timeouts.Reset,
		KeyTimeoutMux:      c.Timeouts.Mux,
		KeyTimeoutServer:   c.Timeouts.Server,
		KeyTimeoutAnnounce: c.Timeouts.Announce,
		KeyTimeoutSend:     c.Timeouts.Send,
	}
	for _, key := range []string{KeyTimeoutReset, KeyTimeoutMux, KeyTimeoutServer, KeyTimeoutAnnounce, KeyTimeoutSend} {
		if timeouts[key] <= 0 {
			invalid("%s must be positive, got %v", key, timeouts[key])
		}
	}

	return errors.Join(errs...)
}

// DefaultDeviceName derives a stable name from the host's machine ID
func DefaultDeviceName() string {
	id, err := machineid.ProtectedID("nbplink")
	if err != nil || len(id) < 6 {
		return "nbplink"
	}
	return "nbplink-" + id[:6]
}
