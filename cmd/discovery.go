// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/wallbus/internal/config"
	"github.com/Thermoquad/wallbus/internal/gateway"
	"github.com/Thermoquad/wallbus/internal/logging"
	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

var discoveryTimeout int

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Listen for devices and suggest a devices config",
	Long: `Listen to the bus and list every device that reports its status.

The wall-pad polls its devices continuously, so a passive scan of a few
seconds normally sees every light zone, heating zone, the ventilation unit,
the gas valve and the elevator. At the end a devices section for the config
file is printed, ready to be edited with real room names.

Examples:
  wallbus discovery --host 192.168.0.50
  wallbus discovery --port /dev/ttyUSB0 --timeout 30 > devices.yaml

Exit codes:
  0 - At least one device found
  1 - No devices seen before the timeout
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 10, "Listen time in seconds")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	dial, err := newDialer()
	if err != nil {
		return err
	}
	codec, err := newCodec()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(discoveryTimeout)*time.Second)
	defer cancel()

	seen := make(map[wallpad.DeviceKey]wallpad.DeviceState)
	var connErr error
	gw := gateway.New(dial, codec,
		gateway.StateHandlerFunc(func(s wallpad.DeviceState) {
			if _, ok := seen[s.Key]; !ok {
				fmt.Printf("Device found: %s\n", wallpad.FormatState(s))
			}
			seen[s.Key] = s
		}),
		gateway.WithLogger(logging.Named("gateway")),
		gateway.WithReconnectDelay(cfg.ReconnectDelay),
		gateway.WithStatusHandler(func(ev gateway.StatusEvent) {
			switch {
			case ev.Status == gateway.StatusConnected:
				fmt.Printf("Connection: %s\n\n", ev.Info)
			case ev.Err != nil:
				connErr = ev.Err
			}
		}),
	)

	fmt.Printf("Wallbus - Device Discovery\n")
	fmt.Printf("Listening for %d seconds...\n", discoveryTimeout)

	if err := gw.Run(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Devices found: %d\n", len(seen))

	if len(seen) == 0 {
		if connErr != nil {
			return exitError(2, "connection error: %w", connErr)
		}
		return exitError(1, "no devices reported status within %d seconds", discoveryTimeout)
	}

	out, err := yaml.Marshal(struct {
		Devices []config.Device `yaml:"devices"`
	}{suggestDevices(seen)})
	if err != nil {
		return fmt.Errorf("failed to encode devices config: %w", err)
	}
	fmt.Printf("\n# Suggested devices section\n%s", out)
	return nil
}

// suggestDevices builds one config entry per class seen, with a room per
// zone
func suggestDevices(seen map[wallpad.DeviceKey]wallpad.DeviceState) []config.Device {
	var devices []config.Device
	keys := sortedKeys(seen)
	for _, class := range wallpad.Classes {
		d := config.Device{
			Class: strings.ToLower(class.String()),
			Name:  class.String(),
		}
		found := false
		for _, k := range keys {
			if k.Class != class {
				continue
			}
			found = true
			if class.Zoned() {
				d.Rooms = append(d.Rooms, config.Room{Name: fmt.Sprintf("Room %d", k.Index), Zone: k.Index})
			}
		}
		if found {
			devices = append(devices, d)
		}
	}
	return devices
}
