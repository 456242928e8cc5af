// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/wallbus/internal/gateway"
	"github.com/Thermoquad/wallbus/internal/logging"
	"github.com/Thermoquad/wallbus/pkg/capture"
	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

var captureDuration time.Duration

var captureCmd = &cobra.Command{
	Use:   "capture <file>",
	Short: "Record raw bus traffic to a capture file",
	Long: `Record every chunk read from the bus, with timestamps, to a capture file.

The capture keeps the raw bytes, noise included, so it can be replayed later
with a different codec calibration:

  wallbus replay traffic.cap --temp-order target_first

Recording runs until interrupted or until --duration elapses. The connection
is re-established if it drops; the gap shows in the timestamps.`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().DurationVar(&captureDuration, "duration", 0, "Stop after this long (0 records until interrupted)")
}

// captureSink serializes recording from the gateway goroutine and status
// output from the main goroutine
type captureSink struct {
	mu     sync.Mutex
	w      *capture.Writer
	err    error
	logger *zap.Logger
}

func (s *captureSink) record(data []byte, outbound bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	dir := capture.Inbound
	if outbound {
		dir = capture.Outbound
	}
	if err := s.w.Record(dir, data); err != nil {
		s.err = err
		s.logger.Error("Capture write failed", zap.Error(err))
	}
}

func (s *captureSink) counts() (records, bytes int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Records(), s.w.Bytes(), s.err
}

func runCapture(cmd *cobra.Command, args []string) error {
	path := args[0]
	dial, err := newDialer()
	if err != nil {
		return err
	}
	codec, err := newCodec()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create capture file: %w", err)
	}
	defer f.Close()
	buf := bufio.NewWriter(f)

	w, err := capture.NewWriter(buf, connectionLabel())
	if err != nil {
		return err
	}
	sink := &captureSink{w: w, logger: logging.Named("capture")}

	ctx, stop := signalContext()
	defer stop()
	if captureDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, captureDuration)
		defer cancel()
	}

	stats := wallpad.NewStatistics()
	gw := gateway.New(dial, codec, nil,
		gateway.WithLogger(logging.Named("gateway")),
		gateway.WithReconnectDelay(cfg.ReconnectDelay),
		gateway.WithStatistics(stats),
		gateway.WithRawHandler(sink.record),
		gateway.WithStatusHandler(func(ev gateway.StatusEvent) {
			switch {
			case ev.Status == gateway.StatusConnected:
				fmt.Printf("Connection: %s\n", ev.Info)
			case ev.Err != nil:
				fmt.Printf("[DISCONNECTED] %v (retrying in %s)\n", ev.Err, cfg.ReconnectDelay)
			}
		}),
	)

	fmt.Printf("Wallbus - Capture\n")
	fmt.Printf("Output: %s\n", path)
	if captureDuration > 0 {
		fmt.Printf("Duration: %s\n", captureDuration)
	}
	fmt.Printf("Press Ctrl+C to stop\n\n")

	runErr := gw.Run(ctx)

	if err := buf.Flush(); err != nil {
		return fmt.Errorf("failed to write capture file: %w", err)
	}
	records, size, writeErr := sink.counts()
	snap := stats.Snapshot()
	fmt.Printf("\nCaptured %d chunks (%d bytes), %d frames, %d noise bytes\n",
		records, size, snap.TotalFrames, snap.NoiseBytes)

	if writeErr != nil {
		return writeErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	return nil
}
