// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Wallbus - Wall-pad RS-485 bus gateway and protocol analyzer
//
// A CLI tool for decoding, monitoring and controlling wall-pad bus devices
// and bridging them to MQTT.

package main

import (
	"errors"
	"os"

	"github.com/Thermoquad/wallbus/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
