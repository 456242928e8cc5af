// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gateway supervises the bus connection: it dials, feeds received
// bytes through the frame reassembler and codec, hands decoded states to a
// handler and writes outbound command frames.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/wallbus/internal/logging"
	"github.com/Thermoquad/wallbus/internal/transport"
	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

// DefaultReconnectDelay is the fixed pause between connection attempts
const DefaultReconnectDelay = 5 * time.Second

const readBufferSize = 1024

// ErrNotConnected is returned by Send while no connection is open. The
// command is dropped, not queued.
var ErrNotConnected = errors.New("not connected, command dropped")

// StateHandler receives every decoded device state, on the reader goroutine
type StateHandler interface {
	HandleState(wallpad.DeviceState)
}

// StateHandlerFunc adapts a function to StateHandler
type StateHandlerFunc func(wallpad.DeviceState)

// HandleState calls f(s)
func (f StateHandlerFunc) HandleState(s wallpad.DeviceState) { f(s) }

// FrameHandler receives every frame with its validation result, before it
// is decoded
type FrameHandler func(f wallpad.Frame, anomalies []wallpad.ValidationError)

// Status is a connection state change
type Status int

const (
	StatusConnected Status = iota
	StatusDisconnected
)

func (s Status) String() string {
	if s == StatusConnected {
		return "connected"
	}
	return "disconnected"
}

// StatusEvent reports a connection state change. Err is set when a
// connection attempt or an open connection failed.
type StatusEvent struct {
	Status Status
	Info   string
	Err    error
}

// StatusHandler receives connection state changes
type StatusHandler func(StatusEvent)

// RawHandler receives every chunk read from or written to the connection.
// data is only valid for the duration of the call.
type RawHandler func(data []byte, outbound bool)

// Option configures a Gateway
type Option func(*Gateway)

// WithFrameHandler observes every received frame
func WithFrameHandler(h FrameHandler) Option {
	return func(g *Gateway) { g.onFrame = h }
}

// WithStatusHandler observes connection state changes
func WithStatusHandler(h StatusHandler) Option {
	return func(g *Gateway) { g.onStatus = h }
}

// WithRawHandler observes raw traffic in both directions
func WithRawHandler(h RawHandler) Option {
	return func(g *Gateway) { g.onRaw = h }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithReconnectDelay sets the pause between connection attempts
func WithReconnectDelay(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.reconnectDelay = d
		}
	}
}

// WithStatistics records frame statistics
func WithStatistics(s *wallpad.Statistics) Option {
	return func(g *Gateway) { g.stats = s }
}

// Gateway owns one bus connection at a time
type Gateway struct {
	dial    transport.Dialer
	codec   *wallpad.Codec
	handler StateHandler

	onFrame        FrameHandler
	onStatus       StatusHandler
	onRaw          RawHandler
	logger         *zap.Logger
	reconnectDelay time.Duration
	stats          *wallpad.Statistics

	// writeMu keeps frames in order on the wire. connMu guards conn and
	// info and is never held across I/O.
	writeMu sync.Mutex
	connMu  sync.Mutex
	conn    transport.Conn
	info    string
}

// New creates a gateway. handler may be nil when only frames are of
// interest.
func New(dial transport.Dialer, codec *wallpad.Codec, handler StateHandler, opts ...Option) *Gateway {
	g := &Gateway{
		dial:           dial,
		codec:          codec,
		handler:        handler,
		logger:         zap.NewNop(),
		reconnectDelay: DefaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Codec returns the codec used for decode and encode
func (g *Gateway) Codec() *wallpad.Codec {
	return g.codec
}

// Run connects and processes traffic until ctx is cancelled, reconnecting
// after a fixed delay whenever the connection fails. It returns ctx.Err().
func (g *Gateway) Run(ctx context.Context) error {
	r := wallpad.NewReassembler()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, info, err := g.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.logger.Warn("Connection failed",
				zap.Error(err),
				zap.Duration("retry_in", g.reconnectDelay))
			g.notify(StatusEvent{Status: StatusDisconnected, Err: err})
			if !sleep(ctx, g.reconnectDelay) {
				return ctx.Err()
			}
			continue
		}

		g.setConn(conn, info)
		g.logger.Info("Connected", zap.String("connection", info))
		g.notify(StatusEvent{Status: StatusConnected, Info: info})

		err = g.serve(ctx, conn, r)

		// Close first: it releases any Write blocked in SendRaw
		conn.Close()
		g.setConn(nil, "")
		// Partial frames never survive a reconnect
		r.Reset()
		g.updateNoise(r)

		if ctx.Err() != nil {
			g.notify(StatusEvent{Status: StatusDisconnected, Info: info})
			return ctx.Err()
		}

		g.logger.Warn("Connection lost",
			zap.String("connection", info),
			zap.Error(err),
			zap.Duration("retry_in", g.reconnectDelay))
		g.notify(StatusEvent{Status: StatusDisconnected, Info: info, Err: err})
		if !sleep(ctx, g.reconnectDelay) {
			return ctx.Err()
		}
	}
}

// serve reads from conn until it fails or ctx is cancelled
func (g *Gateway) serve(ctx context.Context, conn transport.Conn, r *wallpad.Reassembler) error {
	// Closing the connection is the only way to interrupt a blocked Read
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			logging.LogRawBytes(g.logger, "RX", buf[:n])
			if g.onRaw != nil {
				g.onRaw(buf[:n], false)
			}
			for f := range r.Feed(buf[:n]) {
				g.updateNoise(r)
				g.handleFrame(f)
			}
			g.updateNoise(r)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

func (g *Gateway) handleFrame(f wallpad.Frame) {
	var anomalies []wallpad.ValidationError
	if g.onFrame != nil || g.stats != nil {
		anomalies = wallpad.ValidateFrame(f)
	}
	if g.onFrame != nil {
		g.onFrame(f, anomalies)
	}

	states := g.codec.Decode(f)
	if g.stats != nil {
		g.stats.Update(f, anomalies, len(states))
	}
	if len(states) == 0 {
		g.logger.Debug("Frame ignored",
			zap.String("device", wallpad.FormatDeviceID(f.DeviceID())),
			zap.Uint8("command", f.CommandID()),
			zap.String("frame", logging.HexDump(f.Bytes())))
		return
	}

	if g.handler == nil {
		return
	}
	for _, s := range states {
		g.handler.HandleState(s)
	}
}

func (g *Gateway) updateNoise(r *wallpad.Reassembler) {
	if g.stats != nil {
		g.stats.SetNoise(r.Discarded())
	}
}

func (g *Gateway) notify(ev StatusEvent) {
	if g.onStatus != nil {
		g.onStatus(ev)
	}
}

func (g *Gateway) setConn(conn transport.Conn, info string) {
	g.connMu.Lock()
	g.conn = conn
	g.info = info
	g.connMu.Unlock()
}

func (g *Gateway) current() (transport.Conn, string) {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	return g.conn, g.info
}

// Connected reports whether a connection is open, with its description
func (g *Gateway) Connected() (bool, string) {
	conn, info := g.current()
	return conn != nil, info
}

// Send encodes an action and writes it to the bus. Safe for concurrent use.
func (g *Gateway) Send(key wallpad.DeviceKey, action wallpad.Action, params wallpad.Params) error {
	frame, err := g.codec.Encode(key, action, params)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", key, action, err)
	}
	if err := g.SendRaw(frame); err != nil {
		return err
	}
	g.logger.Info("Command sent",
		zap.String("unique_id", key.UniqueID()),
		zap.String("action", string(action)),
		zap.String("frame", logging.HexDump(frame)))
	return nil
}

// SendRaw writes a complete frame. Frames are never queued or retried.
func (g *Gateway) SendRaw(frame []byte) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	conn, info := g.current()
	if conn == nil {
		g.logger.Error("Socket disconnected, command dropped",
			zap.String("frame", logging.HexDump(frame)))
		if g.stats != nil {
			g.stats.CommandDropped()
		}
		return ErrNotConnected
	}

	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("write to %s: %w", info, err)
	}
	logging.LogRawBytes(g.logger, "TX", frame)
	if g.onRaw != nil {
		g.onRaw(frame, true)
	}
	if g.stats != nil {
		g.stats.CommandSent()
	}
	return nil
}

// sleep waits for d, returning false if ctx is cancelled first
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
