// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

const sampleConfig = `
version: 1
bridge:
  host: 192.168.0.50
reconnect_delay: 2s
mqtt:
  broker: tcp://broker:1883
  username: wallbus
  password: ${TEST_MQTT_SECRET}
codec:
  temperature_order: target_first
  speed_table: three_level_auto
  sub_addresses:
    light: 0x20
devices:
  - class: light
    name: Light
    rooms:
      - name: Living
      - name: Kitchen
        zone: 3
  - class: heating
    name: Heating
    rooms:
      - name: Bedroom
  - class: gas
    name: Gas
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_MQTT_SECRET", "hunter2")
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.Host != "192.168.0.50" || cfg.Bridge.Port != DefaultBridgePort {
		t.Errorf("Bridge = %+v", cfg.Bridge)
	}
	if cfg.ReconnectDelay != 2*time.Second {
		t.Errorf("ReconnectDelay = %v, want 2s", cfg.ReconnectDelay)
	}
	if cfg.MQTT.Password != "hunter2" {
		t.Errorf("MQTT.Password = %q, want expanded env value", cfg.MQTT.Password)
	}
	if cfg.MQTT.Root != DefaultMQTTRoot || cfg.MQTT.DiscoveryRoot != DefaultDiscoveryRoot {
		t.Errorf("MQTT roots = %q %q", cfg.MQTT.Root, cfg.MQTT.DiscoveryRoot)
	}
	if len(cfg.Devices) != 3 {
		t.Fatalf("got %d devices, want 3", len(cfg.Devices))
	}
	rooms := cfg.Devices[0].Rooms
	if rooms[0].Zone != 1 || rooms[1].Zone != 3 {
		t.Errorf("room zones = %d, %d; want 1, 3", rooms[0].Zone, rooms[1].Zone)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestCodecOptions(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	opts, err := cfg.CodecOptions()
	if err != nil {
		t.Fatalf("CodecOptions() error = %v", err)
	}
	if opts.TemperatureOrder != wallpad.TargetFirst {
		t.Errorf("TemperatureOrder = %v", opts.TemperatureOrder)
	}
	if _, ok := opts.SpeedTable.Auto(); !ok {
		t.Error("speed table should have auto")
	}
	if opts.LightSubBase != 0x20 {
		t.Errorf("LightSubBase = 0x%02X, want 0x20", opts.LightSubBase)
	}
	if opts.ThermostatSubBase != wallpad.DefaultThermostatSubBase {
		t.Errorf("ThermostatSubBase = 0x%02X, want default", opts.ThermostatSubBase)
	}
}

func TestDefault(t *testing.T) {
	t.Setenv(MQTTPasswordEnvVar, "from-env")
	cfg := Default()

	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d", cfg.Version)
	}
	if cfg.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("ReconnectDelay = %v, want %v", cfg.ReconnectDelay, DefaultReconnectDelay)
	}
	if cfg.MQTT.Password != "from-env" {
		t.Errorf("MQTT.Password = %q, want env value", cfg.MQTT.Password)
	}
	if !errors.Is(cfg.Validate(), ErrNoTransport) {
		t.Error("default config has no transport")
	}

	opts, err := cfg.CodecOptions()
	if err != nil {
		t.Fatalf("CodecOptions() error = %v", err)
	}
	if opts.TemperatureOrder != wallpad.CurrentFirst || opts.SpeedTable.Name() != "three_level" {
		t.Errorf("default codec options = %v %s", opts.TemperatureOrder, opts.SpeedTable.Name())
	}
}

func TestValidate_Transports(t *testing.T) {
	cfg := Default()
	cfg.Bridge.Host = "bridge"
	cfg.Bridge.Serial = "/dev/ttyUSB0"
	if !errors.Is(cfg.Validate(), ErrMultipleTransports) {
		t.Error("host and serial together should fail")
	}

	cfg.Bridge.Host = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("serial only: %v", err)
	}

	cfg.Bridge.Serial = ""
	cfg.Bridge.WebSocket.URL = "wss://relay/ws"
	if err := cfg.Validate(); err != nil {
		t.Errorf("websocket only: %v", err)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad version", "version: 2\n", "unsupported config version"},
		{"bad yaml", "bridge: [\n", "parsing config"},
		{"bad order", "codec:\n  temperature_order: sideways\n", "temperature_order"},
		{"bad table", "codec:\n  speed_table: two_level\n", "speed_table"},
		{"bad sub", "codec:\n  sub_addresses:\n    elevator: 300\n", "elevator"},
		{"bad class", "devices:\n  - class: toaster\n    name: T\n", "unknown device class"},
		{"duplicate class", "devices:\n  - class: gas\n    name: A\n  - class: gasvalve\n    name: B\n", "duplicate"},
		{"missing name", "devices:\n  - class: elevator\n", "name is required"},
		{"rooms on single device", "devices:\n  - class: fan\n    name: Fan\n    rooms:\n      - name: X\n", "has no zones"},
		{"zoned without rooms", "devices:\n  - class: light\n    name: Light\n", "at least one room"},
		{"duplicate zone", "devices:\n  - class: light\n    name: L\n    rooms:\n      - name: A\n      - name: B\n        zone: 1\n", "duplicate zone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			if err == nil {
				t.Fatal("Parse() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}
