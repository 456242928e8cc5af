// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the wallbus YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

// CurrentVersion is the only supported config file version
const CurrentVersion = 1

// Defaults
const (
	DefaultBridgePort     = 8888
	DefaultBaudRate       = 9600
	DefaultReconnectDelay = 5 * time.Second
	DefaultMQTTBroker     = "tcp://localhost:1883"
	DefaultMQTTClientID   = "wallbus"
	DefaultMQTTRoot       = "navien"
	DefaultDiscoveryRoot  = "homeassistant"
)

// Environment variables consulted for secrets
const (
	MQTTPasswordEnvVar      = "WALLBUS_MQTT_PASSWORD"
	WebSocketPasswordEnvVar = "WALLBUS_WS_PASSWORD"
)

// Config represents the entire configuration file
type Config struct {
	Version        int           `yaml:"version"`
	Bridge         BridgeConfig  `yaml:"bridge"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	MQTT           MQTTConfig    `yaml:"mqtt"`
	Codec          CodecConfig   `yaml:"codec"`
	Devices        []Device      `yaml:"devices"`
	Log            LogConfig     `yaml:"log"`
}

// BridgeConfig selects the byte-stream transport. Exactly one of Host,
// Serial and WebSocket.URL must be set.
type BridgeConfig struct {
	Host      string          `yaml:"host"` // serial-to-TCP bridge
	Port      int             `yaml:"port"`
	Serial    string          `yaml:"serial"` // direct RS-485 adapter
	Baud      int             `yaml:"baud"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// WebSocketConfig configures the WebSocket relay transport
type WebSocketConfig struct {
	URL                string `yaml:"url"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// MQTTConfig configures the MQTT presentation bridge
type MQTTConfig struct {
	Broker           string `yaml:"broker"`
	ClientID         string `yaml:"client_id"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	Root             string `yaml:"root"`
	DiscoveryRoot    string `yaml:"discovery_root"`
	DisableDiscovery bool   `yaml:"disable_discovery"`
}

// CodecConfig holds the calibration that needs hardware verification
type CodecConfig struct {
	TemperatureOrder string       `yaml:"temperature_order"` // current_first or target_first
	SpeedTable       string       `yaml:"speed_table"`       // three_level or three_level_auto
	SubAddresses     SubAddresses `yaml:"sub_addresses"`
}

// SubAddresses overrides the per-class sub-address bases. Unset fields keep
// the defaults.
type SubAddresses struct {
	Light       *int `yaml:"light"`
	Thermostat  *int `yaml:"thermostat"`
	Ventilation *int `yaml:"ventilation"`
	GasValve    *int `yaml:"gas_valve"`
	Elevator    *int `yaml:"elevator"`
}

// Device describes one installed device class and its presentation names
type Device struct {
	Class string `yaml:"class"`
	Name  string `yaml:"name"`
	Rooms []Room `yaml:"rooms,omitempty"` // zoned classes only
}

// Room names one zone of a zoned device
type Room struct {
	Name string `yaml:"name"`
	Zone int    `yaml:"zone"` // defaults to position + 1
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration for flag-only usage
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	cfg.setDefaults()
	return cfg
}

// Load reads, expands and validates a configuration file. ${VAR} references
// are expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration file contents
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	cfg.setDefaults()

	if err := cfg.validateCodec(); err != nil {
		return nil, err
	}
	if err := cfg.validateDevices(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Bridge.Port == 0 {
		c.Bridge.Port = DefaultBridgePort
	}
	if c.Bridge.Baud == 0 {
		c.Bridge.Baud = DefaultBaudRate
	}
	if c.Bridge.WebSocket.Password == "" {
		c.Bridge.WebSocket.Password = os.Getenv(WebSocketPasswordEnvVar)
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = DefaultMQTTBroker
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = DefaultMQTTClientID
	}
	if c.MQTT.Password == "" {
		c.MQTT.Password = os.Getenv(MQTTPasswordEnvVar)
	}
	if c.MQTT.Root == "" {
		c.MQTT.Root = DefaultMQTTRoot
	}
	if c.MQTT.DiscoveryRoot == "" {
		c.MQTT.DiscoveryRoot = DefaultDiscoveryRoot
	}
	for i := range c.Devices {
		for j := range c.Devices[i].Rooms {
			if c.Devices[i].Rooms[j].Zone == 0 {
				c.Devices[i].Rooms[j].Zone = j + 1
			}
		}
	}
}

// Errors returned by Validate
var (
	ErrNoTransport        = errors.New("no transport configured: set bridge host, serial port or websocket url")
	ErrMultipleTransports = errors.New("only one of bridge host, serial port and websocket url may be set")
)

// Validate checks the complete configuration after command-line overrides
func (c *Config) Validate() error {
	n := 0
	for _, s := range []string{c.Bridge.Host, c.Bridge.Serial, c.Bridge.WebSocket.URL} {
		if s != "" {
			n++
		}
	}
	switch {
	case n == 0:
		return ErrNoTransport
	case n > 1:
		return ErrMultipleTransports
	}
	if c.Bridge.Port < 1 || c.Bridge.Port > 65535 {
		return fmt.Errorf("invalid bridge port %d", c.Bridge.Port)
	}
	if err := c.validateCodec(); err != nil {
		return err
	}
	return c.validateDevices()
}

func (c *Config) validateCodec() error {
	if _, ok := wallpad.ParseTemperatureOrder(c.Codec.TemperatureOrder); !ok {
		return fmt.Errorf("invalid codec.temperature_order %q", c.Codec.TemperatureOrder)
	}
	if _, err := wallpad.ParseSpeedTable(c.Codec.SpeedTable); err != nil {
		return fmt.Errorf("invalid codec.speed_table: %w", err)
	}
	subs := c.Codec.SubAddresses
	for name, v := range map[string]*int{
		"light":       subs.Light,
		"thermostat":  subs.Thermostat,
		"ventilation": subs.Ventilation,
		"gas_valve":   subs.GasValve,
		"elevator":    subs.Elevator,
	} {
		if v != nil && (*v < 0 || *v > 0xFF) {
			return fmt.Errorf("codec.sub_addresses.%s out of range: %d", name, *v)
		}
	}
	return nil
}

func (c *Config) validateDevices() error {
	seen := make(map[wallpad.DeviceClass]bool)
	for i, d := range c.Devices {
		class, err := wallpad.ParseDeviceClass(d.Class)
		if err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
		if seen[class] {
			return fmt.Errorf("devices[%d]: duplicate class %s", i, class)
		}
		seen[class] = true
		if d.Name == "" {
			return fmt.Errorf("devices[%d]: name is required", i)
		}
		if !class.Zoned() && len(d.Rooms) > 0 {
			return fmt.Errorf("devices[%d]: %s has no zones", i, class)
		}
		if class.Zoned() && len(d.Rooms) == 0 {
			return fmt.Errorf("devices[%d]: %s needs at least one room", i, class)
		}
		zones := make(map[int]bool)
		for j, r := range d.Rooms {
			if r.Name == "" {
				return fmt.Errorf("devices[%d].rooms[%d]: name is required", i, j)
			}
			if r.Zone < 1 || zones[r.Zone] {
				return fmt.Errorf("devices[%d].rooms[%d]: invalid or duplicate zone %d", i, j, r.Zone)
			}
			zones[r.Zone] = true
		}
	}
	return nil
}

// CodecOptions converts the codec section into wallpad options
func (c *Config) CodecOptions() (wallpad.Options, error) {
	opts := wallpad.DefaultOptions()

	order, ok := wallpad.ParseTemperatureOrder(c.Codec.TemperatureOrder)
	if !ok {
		return opts, fmt.Errorf("invalid codec.temperature_order %q", c.Codec.TemperatureOrder)
	}
	opts.TemperatureOrder = order

	table, err := wallpad.ParseSpeedTable(c.Codec.SpeedTable)
	if err != nil {
		return opts, err
	}
	opts.SpeedTable = table

	subs := c.Codec.SubAddresses
	for _, s := range []struct {
		v   *int
		dst *byte
	}{
		{subs.Light, &opts.LightSubBase},
		{subs.Thermostat, &opts.ThermostatSubBase},
		{subs.Ventilation, &opts.VentilationSubAddr},
		{subs.GasValve, &opts.GasValveSubAddr},
		{subs.Elevator, &opts.ElevatorSubAddr},
	} {
		if s.v != nil {
			*s.dst = byte(*s.v)
		}
	}
	return opts, nil
}
