// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/wallbus/internal/config"
	"github.com/Thermoquad/wallbus/internal/mqtt"
	"github.com/Thermoquad/wallbus/internal/transport"
	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

// GetPassword retrieves a password from the environment or prompts the user
func GetPassword(envVar, prompt string) (string, error) {
	// First check environment variable
	if pw := os.Getenv(envVar); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprintf(os.Stderr, "%s: ", prompt)

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// newDialer validates the transport settings and returns a dialer for the
// configured bridge. The WebSocket password is asked for once, up front, so
// reconnects never prompt.
func newDialer() (transport.Dialer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := cfg.Bridge
	switch {
	case b.WebSocket.URL != "":
		ws := b.WebSocket
		if ws.Username != "" && ws.Password == "" {
			pw, err := GetPassword(config.WebSocketPasswordEnvVar, "WebSocket password")
			if err != nil {
				return nil, err
			}
			ws.Password = pw
		}
		return transport.WebSocketDialer(transport.WebSocketOptions{
			URL:                ws.URL,
			Username:           ws.Username,
			Password:           ws.Password,
			InsecureSkipVerify: ws.InsecureSkipVerify,
		}), nil

	case b.Serial != "":
		return transport.SerialDialer(b.Serial, b.Baud), nil

	default:
		return transport.TCPDialer(b.Host, b.Port), nil
	}
}

// openConnection dials the configured bridge once
func openConnection(ctx context.Context) (transport.Conn, string, error) {
	dial, err := newDialer()
	if err != nil {
		return nil, "", err
	}
	return dial(ctx)
}

// newCodec builds a codec from the codec section of the config
func newCodec() (*wallpad.Codec, error) {
	opts, err := cfg.CodecOptions()
	if err != nil {
		return nil, err
	}
	return wallpad.NewCodec(opts), nil
}

// mqttDevices converts configured devices for the MQTT bridge
func mqttDevices(devices []config.Device) ([]mqtt.Device, error) {
	out := make([]mqtt.Device, 0, len(devices))
	for _, d := range devices {
		class, err := wallpad.ParseDeviceClass(d.Class)
		if err != nil {
			return nil, err
		}
		md := mqtt.Device{Class: class, Name: d.Name}
		for _, r := range d.Rooms {
			md.Rooms = append(md.Rooms, mqtt.Room{Name: r.Name, Zone: r.Zone})
		}
		out = append(out, md)
	}
	return out, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// connectionLabel describes the configured transport for headers
func connectionLabel() string {
	b := cfg.Bridge
	switch {
	case b.WebSocket.URL != "":
		return "WebSocket " + b.WebSocket.URL
	case b.Serial != "":
		return fmt.Sprintf("Serial %s @ %d baud", b.Serial, b.Baud)
	default:
		return fmt.Sprintf("TCP %s:%d", b.Host, b.Port)
	}
}
