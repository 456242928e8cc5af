// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/wallbus/internal/transport"
	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping <class> [zone]",
	Short: "Query a device and wait for its status report",
	Long: `Send status queries to one device and wait for its status report.

This tests bidirectional communication with the bus: the query goes out
through the bridge and the device (or the wall-pad on its behalf) answers
with a status report. The round-trip time of each reply is printed.

Status reports from other devices are ignored. A report for the device that
arrives without being asked for still counts, since the wall-pad polls
continuously.

Exit codes:
  0 - All pings answered
  1 - One or more pings timed out
  2 - Connection error`,
	Example: `  wallbus ping light 1 --host 192.168.0.50
  wallbus ping fan --count 5`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	class, err := wallpad.ParseDeviceClass(args[0])
	if err != nil {
		return err
	}
	zone := 1
	if len(args) > 1 {
		if zone, err = strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("invalid zone %q", args[1])
		}
	}
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	key := wallpad.Key(class, zone)

	codec, err := newCodec()
	if err != nil {
		return err
	}
	query, err := codec.EncodeQuery(key)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	conn, connInfo, err := openConnection(ctx)
	if err != nil {
		return exitError(2, "connection error: %w", err)
	}
	defer conn.Close()

	fmt.Printf("Wallbus - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Device: %s\n", key)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	reports, readErr := readReports(ctx, conn, class.DeviceID())

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		// Discard reports that arrived before this query
	drain:
		for {
			select {
			case <-reports:
			default:
				break drain
			}
		}

		startTime := time.Now()
		if _, err := conn.Write(query); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		select {
		case f := <-reports:
			rtt := time.Since(startTime)
			var state string
			for _, s := range codec.Decode(f) {
				if s.Key == key {
					state = wallpad.FormatValue(s.Value)
				}
			}
			if state == "" {
				state = wallpad.FormatHex(f.Data())
			}
			fmt.Printf("reply from %s, state=%s, rtt=%v\n", key, state, rtt.Round(time.Millisecond))
			successCount++

		case err := <-readErr:
			fmt.Printf("READ FAILED: %v\n", err)
			return exitError(2, "read error: %w", err)

		case <-ctx.Done():
			fmt.Println()
			return nil

		case <-time.After(time.Duration(pingTimeout) * time.Second):
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		return exitError(1, "%d of %d pings failed", failCount, pingCount)
	}
	return nil
}

// readReports streams status reports from one device id until the
// connection fails or ctx is cancelled
func readReports(ctx context.Context, conn transport.Conn, deviceID byte) (<-chan wallpad.Frame, <-chan error) {
	reports := make(chan wallpad.Frame, 16)
	errs := make(chan error, 1)

	go func() {
		r := wallpad.NewReassembler()
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			for f := range r.Feed(buf[:n]) {
				if f.DeviceID() != deviceID || f.CommandID() != wallpad.CmdStatusReport {
					continue
				}
				select {
				case reports <- f:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if ctx.Err() == nil {
					errs <- err
				}
				return
			}
		}
	}()
	return reports, errs
}
