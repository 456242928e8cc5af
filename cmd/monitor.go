// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/wallbus/internal/gateway"
	"github.com/Thermoquad/wallbus/internal/logging"
	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

// batchInterval is how often bus updates are pushed to the UI
const batchInterval = 50 * time.Millisecond

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for monitoring and controlling devices",
	Long: `Monitor and control wall-pad devices via an interactive terminal UI.

Every device seen on the bus appears in the device list with its latest
state. Select a device, pick an action and enter a value to send a command.

Features:
  - Live device states (lights, heating zones, ventilation, gas, elevator)
  - Command entry for the selected device
  - Statistics tracking
  - Event logging
  - Automatic reconnection on connection loss

Tab switches between the device list, the action selector, the value input
and the send button. Left and right change the action. Arrow keys navigate
the device list.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

// monitorUpdate is one bus event waiting for the next batch
type monitorUpdate struct {
	state   *wallpad.DeviceState
	anomaly string
}

func runMonitor(cmd *cobra.Command, args []string) error {
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
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stats := wallpad.NewStatistics()
	updates := make(chan monitorUpdate, 256)
	syncs := make(chan uint64, 1)

	var gw *gateway.Gateway
	send := func(c wallpad.Command) error {
		return gw.Send(c.Key, c.Action, c.Params)
	}

	m := initialMonitorModel(connectionLabel(), stats, codec.Options().SpeedTable, send)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	// Drop updates rather than stall the reader when the UI falls behind
	push := func(u monitorUpdate) {
		select {
		case updates <- u:
		default:
		}
	}

	var tracker syncTracker
	gw = gateway.New(dial, codec,
		gateway.StateHandlerFunc(func(s wallpad.DeviceState) {
			push(monitorUpdate{state: &s})
		}),
		gateway.WithLogger(logging.Named("gateway")),
		gateway.WithReconnectDelay(cfg.ReconnectDelay),
		gateway.WithStatistics(stats),
		gateway.WithFrameHandler(func(f wallpad.Frame, anomalies []wallpad.ValidationError) {
			if skipped, first := tracker.frame(stats); first {
				select {
				case syncs <- skipped:
				default:
				}
			}
			for _, a := range anomalies {
				push(monitorUpdate{anomaly: fmt.Sprintf("%s: %s", wallpad.FormatDeviceID(f.DeviceID()), a.Message)})
			}
		}),
		gateway.WithStatusHandler(func(ev gateway.StatusEvent) {
			if ev.Status == gateway.StatusConnected {
				tracker.reset(stats)
			}
			p.Send(statusMsg(ev))
		}),
	)

	stopQuit := context.AfterFunc(ctx, p.Quit)
	defer stopQuit()

	done := make(chan struct{})
	go func() {
		defer close(done)
		gw.Run(ctx)
	}()
	go batchUpdates(ctx, p, updates, syncs)

	_, err = p.Run()
	cancel()
	<-done
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// batchUpdates sends queued bus events to the UI at a fixed rate
func batchUpdates(ctx context.Context, p *tea.Program, updates <-chan monitorUpdate, syncs <-chan uint64) {
	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var batch monitorBatchMsg

			select {
			case skipped := <-syncs:
				batch.synced = true
				batch.skipped = skipped
			default:
			}

			// Drain everything queued since the last tick
		drainLoop:
			for {
				select {
				case u := <-updates:
					if u.state != nil {
						batch.states = append(batch.states, *u.state)
					} else {
						batch.anomalies = append(batch.anomalies, u.anomaly)
					}
				default:
					break drainLoop
				}
			}

			if batch.synced || len(batch.states) > 0 || len(batch.anomalies) > 0 {
				p.Send(batch)
			}
		}
	}
}
