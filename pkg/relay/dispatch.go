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

package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/axirelay/axirelay/pkg/device"
	"github.com/rs/zerolog/log"
)

// Transceiver performs one blocking request/response exchange with the
// plotter. The dispatch loop is its only caller.
type Transceiver interface {
	SendAndAwaitResponse(cmd string) (string, error)
	Close() error
}

// ReconnectFunc re-acquires a device handle after an I/O failure. It blocks
// until a device is found or ctx is cancelled.
type ReconnectFunc func(ctx context.Context) (Transceiver, error)

// Dispatcher is the single consumer of the wake channel and the exclusive
// owner of the Transceiver. It drains the queue to exhaustion on each wake
// while the run-state is Running.
type Dispatcher struct {
	relay     *Relay
	tx        Transceiver
	reconnect ReconnectFunc
}

// NewDispatcher binds a relay to a device transceiver. reconnect may be nil,
// in which case an I/O failure on the serial link is fatal and Run returns
// the error.
func NewDispatcher(r *Relay, tx Transceiver, reconnect ReconnectFunc) *Dispatcher {
	return &Dispatcher{
		relay:     r,
		tx:        tx,
		reconnect: reconnect,
	}
}

// Run blocks until ctx is cancelled, waking on the relay's wake channel and
// draining the queue each time. A command already handed to the device is
// allowed to finish before cancellation takes effect.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("exiting dispatch loop via context cancellation")
			return nil
		case <-d.relay.wake:
			if err := d.drain(ctx); err != nil {
				return err
			}
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if d.relay.state.current() != Running {
			return nil
		}

		cmd, ok := d.relay.queue.Dequeue()
		if !ok {
			return nil
		}

		resp, err := d.tx.SendAndAwaitResponse(cmd)
		if err == nil {
			log.Debug().Str("command", cmd).Str("response", resp).Msg("command dispatched")
			continue
		}

		if errors.Is(err, device.ErrTimeout) {
			// The device is present but silent. Discard rather than retry:
			// a motion command may have been executed without the response
			// arriving, and sending it twice would move the pen twice.
			log.Warn().Str("command", cmd).Msg("no response from device, discarding command")
			continue
		}

		// Write or read failure on the serial link. The command never got an
		// acknowledgement, so put it back at the head before recovering.
		d.relay.queue.Requeue(cmd)

		if d.reconnect == nil {
			return fmt.Errorf("serial I/O failure: %w", err)
		}

		log.Error().Err(err).Msg("serial I/O failure, reacquiring device")

		if closeErr := d.tx.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close broken serial port")
		}

		tx, err := d.reconnect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to reacquire device: %w", err)
		}

		d.tx = tx
		log.Info().Msg("device reacquired, resuming dispatch")
	}
}
