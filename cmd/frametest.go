// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

var frameTestTimeout int

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid wall-pad frame",
	Long: `Wait for a valid wall-pad frame on the connection until timeout.

This command connects to the configured bridge, serial port or WebSocket and
waits for any frame that passes both checksums. Bytes before the first valid
frame are skipped and counted.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking wiring, baud rate and bridge settings.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(frameTestTimeout)*time.Second)
	defer cancel()

	conn, connInfo, err := openConnection(ctx)
	if err != nil {
		return exitError(2, "connection error: %w", err)
	}
	defer conn.Close()
	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopClose()

	fmt.Printf("Wallbus - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for valid frame...\n\n")

	r := wallpad.NewReassembler()
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		for f := range r.Feed(buf[:n]) {
			if skipped := r.Discarded(); skipped > 0 {
				fmt.Printf("(skipped %d noise bytes before sync)\n", skipped)
			}
			fmt.Printf("SUCCESS: Received valid frame\n")
			fmt.Printf("  Device: %s (0x%02X)\n", wallpad.FormatDeviceID(f.DeviceID()), f.DeviceID())
			fmt.Printf("  Sub: 0x%02X\n", f.SubID())
			fmt.Printf("  Command: %s (0x%02X)\n", wallpad.FormatCommandID(f.CommandID()), f.CommandID())
			fmt.Printf("  Length: %d bytes\n", f.Size())
			fmt.Printf("  Checksum: xor=0x%02X add=0x%02X\n", f.Xor(), f.Add())
			return nil
		}
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return exitError(1, "TIMEOUT: no valid frame received within %d seconds", frameTestTimeout)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return exitError(2, "read error: %w", err)
		}
	}
}
