// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/wallbus/internal/logging"
	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

var (
	sendDryRun bool
	sendWait   time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <class> <zone> <action> [value]",
	Short: "Encode and send one command frame",
	Long: `Encode a single device action and write it to the bus.

Classes and actions:
  light        on, off
  heating      hvac <heat|off>, temp <celsius>, away <on|off>
  fan          on, off, set_speed <percent>, preset <name>
  gas          off (any action closes the valve)
  elevator     call

Zones start at 1. The fan, gas valve and elevator have a single unit; use 1.
With --dry-run the frame is printed and nothing is sent. With --wait the
command keeps listening and prints status updates for the device.`,
	Example: `  wallbus send light 2 on --host 192.168.0.50
  wallbus send heating 1 temp 22.5 --port /dev/ttyUSB0
  wallbus send fan 1 preset high --dry-run`,
	Args: cobra.RangeArgs(3, 4),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "Print the encoded frame without sending")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 0, "Listen for status updates from the device after sending")
}

// classActions lists the actions a class accepts, in display order
func classActions(class wallpad.DeviceClass) []wallpad.Action {
	switch class {
	case wallpad.ClassLight:
		return []wallpad.Action{wallpad.ActionOn, wallpad.ActionOff}
	case wallpad.ClassThermostat:
		return []wallpad.Action{wallpad.ActionHVAC, wallpad.ActionTemp, wallpad.ActionAway}
	case wallpad.ClassVentilation:
		return []wallpad.Action{wallpad.ActionOn, wallpad.ActionOff, wallpad.ActionSetSpeed, wallpad.ActionPreset}
	case wallpad.ClassGasValve:
		return []wallpad.Action{wallpad.ActionOff}
	case wallpad.ClassElevator:
		return []wallpad.Action{wallpad.ActionCall}
	}
	return nil
}

// actionTakesValue reports whether an action needs a value argument
func actionTakesValue(action wallpad.Action) bool {
	switch action {
	case wallpad.ActionHVAC, wallpad.ActionTemp, wallpad.ActionAway,
		wallpad.ActionSetSpeed, wallpad.ActionPreset:
		return true
	}
	return false
}

// parseParams turns the value argument of an action into parameters
func parseParams(action wallpad.Action, value string) (wallpad.Params, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		if actionTakesValue(action) {
			return wallpad.Params{}, fmt.Errorf("action %q needs a value", action)
		}
		return wallpad.Params{}, nil
	}

	switch action {
	case wallpad.ActionHVAC:
		return wallpad.Params{HVACMode: strings.ToLower(value)}, nil

	case wallpad.ActionTemp:
		t, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return wallpad.Params{}, fmt.Errorf("invalid temperature %q", value)
		}
		return wallpad.Params{Temperature: t}, nil

	case wallpad.ActionAway:
		switch strings.ToLower(value) {
		case "on", "true", "1", wallpad.PresetAway:
			return wallpad.Params{Preset: wallpad.PresetAway}, nil
		case "off", "false", "0", wallpad.PresetNone:
			return wallpad.Params{Preset: wallpad.PresetNone}, nil
		}
		return wallpad.Params{}, fmt.Errorf("invalid away value %q (use on or off)", value)

	case wallpad.ActionSetSpeed:
		pct, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
		if err != nil {
			return wallpad.Params{}, fmt.Errorf("invalid percentage %q", value)
		}
		return wallpad.Params{Percentage: pct}, nil

	case wallpad.ActionPreset:
		return wallpad.Params{Preset: strings.ToLower(value)}, nil
	}
	return wallpad.Params{}, fmt.Errorf("action %q takes no value", action)
}

// parseCommand builds a command from the positional arguments
func parseCommand(args []string) (wallpad.Command, error) {
	class, err := wallpad.ParseDeviceClass(args[0])
	if err != nil {
		return wallpad.Command{}, err
	}
	zone, err := strconv.Atoi(args[1])
	if err != nil || zone < 1 {
		return wallpad.Command{}, fmt.Errorf("invalid zone %q", args[1])
	}
	action := wallpad.ParseAction(args[2])
	var value string
	if len(args) > 3 {
		value = args[3]
	}
	params, err := parseParams(action, value)
	if err != nil {
		return wallpad.Command{}, err
	}
	return wallpad.Command{Key: wallpad.Key(class, zone), Action: action, Params: params}, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	command, err := parseCommand(args)
	if err != nil {
		return err
	}
	codec, err := newCodec()
	if err != nil {
		return err
	}
	frame, err := codec.EncodeCommand(command)
	if err != nil {
		return err
	}

	parsed, err := wallpad.ParseFrame(frame)
	if err != nil {
		return err
	}
	fmt.Printf("Command: %s %s\n", command.Key, command.Action)
	fmt.Print(wallpad.FormatFrame(parsed))
	if sendDryRun {
		return nil
	}

	ctx, stop := signalContext()
	defer stop()

	conn, info, err := openConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger := logging.Named("send")
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("write to %s: %w", info, err)
	}
	logging.LogRawBytes(logger, "TX", frame)
	logger.Info("Command sent", zap.String("connection", info), zap.String("unique_id", command.Key.UniqueID()))
	fmt.Printf("Sent via %s\n", info)

	if sendWait <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, sendWait)
	defer cancel()
	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopClose()

	fmt.Printf("Listening for %s updates for %s...\n\n", command.Key, sendWait)
	r := wallpad.NewReassembler()
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		for f := range r.Feed(buf[:n]) {
			for _, s := range codec.Decode(f) {
				if s.Key == command.Key {
					fmt.Printf("[%s] %s\n", f.Timestamp().Format("15:04:05.000"), wallpad.FormatState(s))
				}
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read from %s: %w", info, err)
		}
	}
}
