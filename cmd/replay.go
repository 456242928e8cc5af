// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/wallbus/pkg/capture"
	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

var (
	replayFrames    bool
	replayAnomalies bool
	replayRaw       bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Decode a capture file offline",
	Long: `Run a capture file through the frame reassembler and codec.

Inbound chunks are reassembled and decoded exactly as on a live bus, so the
same capture can be replayed with different calibrations to find the one
that matches the installation:

  wallbus replay traffic.cap --temp-order current_first
  wallbus replay traffic.cap --temp-order target_first --speed-table three_level_auto

Files that are not captures are read as raw inbound bytes, for example a
dump taken with a serial terminal. Use --raw to force this.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayFrames, "frames", false, "Print every frame before its states")
	replayCmd.Flags().BoolVar(&replayAnomalies, "anomalies", true, "Print validation anomalies")
	replayCmd.Flags().BoolVar(&replayRaw, "raw", false, "Treat the file as raw bytes, not a capture")
}

// replayer runs recorded chunks through the receive path
type replayer struct {
	codec *wallpad.Codec
	r     *wallpad.Reassembler
	stats *wallpad.Statistics
	out   io.Writer
}

func newReplayer(codec *wallpad.Codec, out io.Writer) *replayer {
	return &replayer{
		codec: codec,
		r:     wallpad.NewReassembler(),
		stats: wallpad.NewStatistics(),
		out:   out,
	}
}

func (p *replayer) inbound(data []byte) {
	for f := range p.r.Feed(data) {
		p.stats.SetNoise(p.r.Discarded())
		anomalies := wallpad.ValidateFrame(f)
		states := p.codec.Decode(f)
		p.stats.Update(f, anomalies, len(states))

		if replayFrames {
			fmt.Fprint(p.out, wallpad.FormatFrame(f))
		}
		if replayAnomalies {
			for _, a := range anomalies {
				fmt.Fprintf(p.out, "  !! %s\n", a.Message)
			}
		}
		for _, s := range states {
			fmt.Fprintf(p.out, "  => %s\n", wallpad.FormatState(s))
		}
	}
	p.stats.SetNoise(p.r.Discarded())
}

func (p *replayer) outbound(rec capture.Record) {
	f, err := wallpad.ParseFrame(rec.Data)
	if err != nil {
		fmt.Fprintf(p.out, "[%s] TX %s (%v)\n", rec.Timestamp().Format("15:04:05.000"), wallpad.FormatHex(rec.Data), err)
		return
	}
	p.stats.CommandSent()
	fmt.Fprintf(p.out, "[%s] TX %s %s sub=0x%02X\n", rec.Timestamp().Format("15:04:05.000"),
		wallpad.FormatDeviceID(f.DeviceID()), wallpad.FormatCommandID(f.CommandID()), f.SubID())
}

func runReplay(cmd *cobra.Command, args []string) error {
	codec, err := newCodec()
	if err != nil {
		return err
	}

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer file.Close()

	opts := codec.Options()
	fmt.Printf("Wallbus - Replay\n")
	fmt.Printf("File: %s\n", args[0])
	fmt.Printf("Calibration: temperature order %s, speed table %s\n\n", opts.TemperatureOrder, opts.SpeedTable.Name())

	p := newReplayer(codec, os.Stdout)

	if !replayRaw {
		cr, err := capture.NewReader(file)
		switch {
		case err == nil:
			h := cr.Header()
			fmt.Printf("Captured: %s from %s\n\n", h.StartTime().Format("2006-01-02 15:04:05"), h.Source)
			for rec, err := range cr.All() {
				if err != nil {
					return err
				}
				if rec.Direction == capture.Outbound {
					p.outbound(rec)
					continue
				}
				p.inbound(rec.Data)
			}
			fmt.Println()
			fmt.Print(p.stats.String())
			return nil

		case !errors.Is(err, capture.ErrNotCapture):
			return err
		}
		fmt.Printf("Not a capture file, reading raw bytes\n\n")
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return err
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	p.inbound(data)
	fmt.Println()
	fmt.Print(p.stats.String())
	return nil
}
