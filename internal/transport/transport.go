// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport opens the byte stream that carries the wall-pad bus:
// a TCP connection to a serial bridge, a local RS-485 adapter or a WebSocket
// relay. All of them are plain io.ReadWriteClosers with no message
// boundaries.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// Conn is one open byte stream
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Dialer opens a connection and returns it with a human-readable
// description
type Dialer func(ctx context.Context) (Conn, string, error)

// ErrConnectionClosed is returned when reading from a closed connection
var ErrConnectionClosed = errors.New("connection closed")

// Timeouts
const (
	DialTimeout      = 10 * time.Second
	HandshakeTimeout = 10 * time.Second
	keepAlive        = 30 * time.Second
)

// DialTCP connects to a serial-to-TCP bridge
func DialTCP(ctx context.Context, host string, port int) (Conn, error) {
	d := net.Dialer{Timeout: DialTimeout, KeepAlive: keepAlive}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bridge %s: %w", addr, err)
	}
	return conn, nil
}

// TCPDialer returns a Dialer for a serial-to-TCP bridge
func TCPDialer(host string, port int) Dialer {
	return func(ctx context.Context) (Conn, string, error) {
		conn, err := DialTCP(ctx, host, port)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("TCP: %s", net.JoinHostPort(host, strconv.Itoa(port))), nil
	}
}
