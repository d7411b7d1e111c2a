// Axirelay
// Copyright (c) 2026 The Axirelay Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Axirelay.
//
// Axirelay is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Axirelay is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Axirelay.  If not, see <http://www.gnu.org/licenses/>.

// Package device finds and opens the plotter's serial port and speaks its
// line-oriented request/response protocol.
package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/axirelay/axirelay/pkg/config"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// ListPortsFunc enumerates available serial ports with USB metadata.
type ListPortsFunc func() ([]*enumerator.PortDetails, error)

// Acquirer polls for a matching serial device until one appears. Absence of
// the device is not an error, it is treated as "not yet connected"; failure
// to open a matched device is.
type Acquirer struct {
	cfg         *config.Instance
	clock       clockwork.Clock
	portFactory PortFactory
	listPorts   ListPortsFunc
}

func NewAcquirer(cfg *config.Instance) *Acquirer {
	return &Acquirer{
		cfg:         cfg,
		clock:       clockwork.NewRealClock(),
		portFactory: DefaultPortFactory,
		listPorts:   enumerator.GetDetailedPortsList,
	}
}

// Acquire blocks until a matching device is found and opened, retrying the
// scan on a fixed interval. It returns an error only when a matched device
// fails to open (permission, already in use) or ctx is cancelled.
func (a *Acquirer) Acquire(ctx context.Context) (*Transceiver, error) {
	for {
		path, found := a.findDevice()
		if found {
			return a.open(path)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("device acquisition cancelled: %w", ctx.Err())
		case <-a.clock.After(a.cfg.DeviceScanInterval()):
		}
	}
}

// findDevice scans the available serial ports for a match. An explicit
// configured path is matched exactly; otherwise any USB port whose product
// string contains the configured identifier is taken.
func (a *Acquirer) findDevice() (string, bool) {
	ports, err := a.listPorts()
	if err != nil {
		log.Warn().Err(err).Msg("failed to enumerate serial ports")
		return "", false
	}

	selector := a.cfg.DevicePath()
	productMatch := a.cfg.DeviceProductMatch()

	for _, port := range ports {
		if selector != "" {
			if port.Name == selector {
				return port.Name, true
			}
			continue
		}

		if port.IsUSB && strings.Contains(port.Product, productMatch) {
			return port.Name, true
		}
	}

	return "", false
}

func (a *Acquirer) open(path string) (*Transceiver, error) {
	port, err := a.portFactory(path, &serial.Mode{
		BaudRate: a.cfg.DeviceBaudRate(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open matched device %s: %w", path, err)
	}

	if err := port.SetReadTimeout(a.cfg.DeviceReadTimeout()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}

	log.Info().Str("device", path).Int("baud", a.cfg.DeviceBaudRate()).Msg("serial connection opened")

	return NewTransceiver(port, path, a.cfg.DeviceResponseTimeout()), nil
}
