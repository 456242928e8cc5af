// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/wallbus/internal/gateway"
	"github.com/Thermoquad/wallbus/internal/logging"
	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

var rawLogStates bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously extract and display wall-pad frames as they arrive.

Each checksum-valid frame is shown with timestamp, device, sub-address,
command and payload. With --states the decoded device states follow each
status frame. Noise between frames is skipped silently.

Supports TCP bridge, serial and WebSocket connections, and reconnects when
the connection drops.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogStates, "states", true, "Print decoded device states")
}

func runRawLog(cmd *cobra.Command, args []string) error {
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

	var handler gateway.StateHandler
	if rawLogStates {
		handler = gateway.StateHandlerFunc(func(s wallpad.DeviceState) {
			fmt.Printf("  => %s\n", wallpad.FormatState(s))
		})
	}

	gw := gateway.New(dial, codec, handler,
		gateway.WithLogger(logging.Named("gateway")),
		gateway.WithReconnectDelay(cfg.ReconnectDelay),
		gateway.WithFrameHandler(func(f wallpad.Frame, _ []wallpad.ValidationError) {
			fmt.Print(wallpad.FormatFrame(f))
		}),
		gateway.WithStatusHandler(func(ev gateway.StatusEvent) {
			switch {
			case ev.Status == gateway.StatusConnected:
				fmt.Printf("Connection: %s\n\n", ev.Info)
			case ev.Err != nil:
				fmt.Printf("[DISCONNECTED] %v (retrying in %s)\n", ev.Err, cfg.ReconnectDelay)
			}
		}),
	)

	fmt.Printf("Wallbus - Raw Frame Log\n")
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if err := gw.Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	return nil
}
