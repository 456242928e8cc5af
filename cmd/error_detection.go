// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/wallbus/internal/gateway"
	"github.com/Thermoquad/wallbus/internal/logging"
	"github.com/Thermoquad/wallbus/internal/transport"
	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and anomalous values",
	Long: `Track frame anomalies and noise on the bus with statistics.

Every checksum-valid frame is validated and the following are reported:
  - Malformed frames (status payloads too short, odd temperature regions)
  - Anomalous values (temperatures outside 0-50°C, unknown ventilation codes)
  - Frames from unknown device ids
  - Statistics and trends (frame rate, anomaly rate, noise bytes)

Bytes that never formed a valid frame are counted as noise. By default only
anomalies are displayed. Use --show-all to display valid frames too.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just anomalies)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive, got %d", statsInterval)
	}
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

	if useTUI {
		return runTUIMode(ctx, dial, codec)
	}
	return runTextMode(ctx, dial, codec)
}

// syncTracker reports the noise skipped before the first frame of each
// connection
type syncTracker struct {
	synced   bool
	baseline uint64
}

func (t *syncTracker) reset(stats *wallpad.Statistics) {
	t.synced = false
	t.baseline = stats.Snapshot().NoiseBytes
}

// frame returns the bytes skipped since the connection opened and whether
// this is the first frame on it
func (t *syncTracker) frame(stats *wallpad.Statistics) (uint64, bool) {
	if t.synced {
		return 0, false
	}
	t.synced = true
	return stats.Snapshot().NoiseBytes - t.baseline, true
}

// printValidationErrors prints the anomalies found in a frame
func printValidationErrors(f wallpad.Frame, anomalies []wallpad.ValidationError) {
	timestamp := f.Timestamp().Format("15:04:05.000")
	device := wallpad.FormatDeviceID(f.DeviceID())

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X) sub=0x%02X cmd=0x%02X\n",
		timestamp, device, f.DeviceID(), f.SubID(), f.CommandID())
	fmt.Printf("  Checksum: \033[1;32mOK\033[0m\n")

	for i, err := range anomalies {
		switch err.Type {
		case wallpad.AnomalyLengthMismatch:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if length, ok := err.Details["length"].(int); ok {
				if minimum, ok := err.Details["minimum"].(int); ok {
					fmt.Printf("    Length: received=%d, minimum=%d\n", length, minimum)
				} else {
					fmt.Printf("    Length: %d\n", length)
				}
			}

		case wallpad.AnomalyInvalidTemp:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if temp, ok := err.Details["temperature"].(float64); ok {
				fmt.Printf("    Temperature=%.1f°C (valid: %.0f to %.0f°C)\n",
					temp, wallpad.MinPlausibleTemp, wallpad.MaxPlausibleTemp)
			}

		case wallpad.AnomalyInvalidValue:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if mode, ok := err.Details["mode"].(byte); ok {
				fmt.Printf("    Mode code=0x%02X\n", mode)
			}

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Printf("  Data: %s\n", wallpad.FormatHex(f.Data()))
	fmt.Printf("  >>> FRAME FLAGGED <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(ctx context.Context, dial transport.Dialer, codec *wallpad.Codec) error {
	stats := wallpad.NewStatistics()
	m := initialModel(connectionLabel(), statsInterval, showAll, stats)
	p := tea.NewProgram(m, tea.WithAltScreen())

	var tracker syncTracker
	gw := gateway.New(dial, codec,
		gateway.StateHandlerFunc(func(s wallpad.DeviceState) {
			p.Send(stateMsg{state: s})
		}),
		gateway.WithLogger(logging.Named("gateway")),
		gateway.WithReconnectDelay(cfg.ReconnectDelay),
		gateway.WithStatistics(stats),
		gateway.WithFrameHandler(func(f wallpad.Frame, anomalies []wallpad.ValidationError) {
			if skipped, first := tracker.frame(stats); first {
				p.Send(syncMsg{invalidBytes: skipped})
			}
			p.Send(frameMsg{frame: f, anomalies: anomalies})
		}),
		gateway.WithStatusHandler(func(ev gateway.StatusEvent) {
			if ev.Status == gateway.StatusConnected {
				tracker.reset(stats)
			}
			p.Send(statusMsg(ev))
		}),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopQuit := context.AfterFunc(ctx, p.Quit)
	defer stopQuit()

	done := make(chan struct{})
	go func() {
		defer close(done)
		gw.Run(ctx)
	}()

	_, err := p.Run()
	cancel()
	<-done
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(ctx context.Context, dial transport.Dialer, codec *wallpad.Codec) error {
	fmt.Printf("Wallbus - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connectionLabel())
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Anomalies only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	type frameEvent struct {
		frame     wallpad.Frame
		anomalies []wallpad.ValidationError
		skipped   uint64
		first     bool
	}

	stats := wallpad.NewStatistics()
	frames := make(chan frameEvent, 64)
	statuses := make(chan gateway.StatusEvent, 8)

	var tracker syncTracker
	gw := gateway.New(dial, codec, nil,
		gateway.WithLogger(logging.Named("gateway")),
		gateway.WithReconnectDelay(cfg.ReconnectDelay),
		gateway.WithStatistics(stats),
		gateway.WithFrameHandler(func(f wallpad.Frame, anomalies []wallpad.ValidationError) {
			skipped, first := tracker.frame(stats)
			select {
			case frames <- frameEvent{f, anomalies, skipped, first}:
			case <-ctx.Done():
			}
		}),
		gateway.WithStatusHandler(func(ev gateway.StatusEvent) {
			if ev.Status == gateway.StatusConnected {
				tracker.reset(stats)
			}
			select {
			case statuses <- ev:
			case <-ctx.Done():
			}
		}),
	)

	runErr := make(chan error, 1)
	go func() { runErr <- gw.Run(ctx) }()

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case err := <-runErr:
			fmt.Println()
			fmt.Print(stats.String())
			if errors.Is(err, ctx.Err()) {
				return nil
			}
			return err

		case ev := <-statuses:
			switch {
			case ev.Status == gateway.StatusConnected:
				fmt.Printf("[CONNECTED] %s\n\n", ev.Info)
			case ev.Err != nil:
				fmt.Printf("[DISCONNECTED] %v (retrying in %s)\n\n", ev.Err, cfg.ReconnectDelay)
			}

		case ev := <-frames:
			if ev.first {
				if ev.skipped > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d noise bytes\n\n", ev.skipped)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}
			if len(ev.anomalies) > 0 {
				printValidationErrors(ev.frame, ev.anomalies)
			} else if showAll {
				fmt.Print(wallpad.FormatFrame(ev.frame))
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
