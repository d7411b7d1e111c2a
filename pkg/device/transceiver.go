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

package device

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// ErrTimeout is returned when an opened device produces no response line
// within the configured response timeout.
var ErrTimeout = errors.New("device response timeout")

// Port defines the serial port operations used by the transceiver (for
// mocking in tests).
type Port interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
	SetReadTimeout(t time.Duration) error
}

// PortFactory creates a serial port connection.
type PortFactory func(path string, mode *serial.Mode) (Port, error)

// DefaultPortFactory is the default factory that opens real serial ports.
func DefaultPortFactory(path string, mode *serial.Mode) (Port, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

// Transceiver owns the open serial connection to the plotter and implements
// the strict request/response protocol: one CR-terminated command out, one
// LF-terminated response line back. It is owned exclusively by the dispatch
// loop; nothing else touches the port.
type Transceiver struct {
	port        Port
	path        string
	respTimeout time.Duration
}

func NewTransceiver(port Port, path string, respTimeout time.Duration) *Transceiver {
	return &Transceiver{
		port:        port,
		path:        path,
		respTimeout: respTimeout,
	}
}

// SendAndAwaitResponse writes cmd followed by a carriage return, then blocks
// until one full response line is read back. Reads that return no data
// (per-read timeout expiry on the port) are retried until the response
// timeout elapses, after which ErrTimeout is returned.
func (t *Transceiver) SendAndAwaitResponse(cmd string) (string, error) {
	log.Debug().Str("device", t.path).Str("command", cmd).Msg("writing to serial port")

	if _, err := t.port.Write([]byte(cmd + "\r")); err != nil {
		return "", fmt.Errorf("failed to write command: %w", err)
	}

	deadline := time.Now().Add(t.respTimeout)

	var lineBuf []byte
	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if err != nil {
			return "", fmt.Errorf("failed to read response: %w", err)
		}

		for i := range n {
			if buf[i] == '\n' {
				resp := strings.TrimRight(string(lineBuf), "\r")
				log.Debug().Str("device", t.path).Str("response", resp).Msg("response from serial port")
				return resp, nil
			}
			lineBuf = append(lineBuf, buf[i])
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("no response line within %s: %w", t.respTimeout, ErrTimeout)
		}
	}
}

func (t *Transceiver) Path() string {
	return t.path
}

func (t *Transceiver) Close() error {
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}
