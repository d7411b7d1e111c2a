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

// Package relay implements the command-relay core: a FIFO of plotter
// commands fed by any number of network handlers and drained by a single
// dispatch loop that owns the serial connection.
//
// Producers and the dispatch loop communicate only through the queue and a
// single-slot wake channel. The wake channel is a level-triggered hint:
// multiple pending wakes coalesce into one, which is safe because the
// dispatch loop always drains the queue to exhaustion (or until paused)
// before waiting again.
package relay

// Relay is the intake surface exposed to the network transport. All methods
// are safe for concurrent use and block only for lock acquisition, never
// for serial I/O.
type Relay struct {
	queue *Queue
	state *stateController
	wake  chan struct{}
}

func New() *Relay {
	return &Relay{
		queue: NewQueue(),
		state: newStateController(),
		wake:  make(chan struct{}, 1),
	}
}

// Submit validates and enqueues one command. While Running, the dispatch
// loop is woken; while Paused, the command just accumulates.
func (r *Relay) Submit(raw string) error {
	if err := r.queue.Enqueue(raw); err != nil {
		return err
	}

	if r.state.current() == Running {
		r.notify()
	}

	return nil
}

// Pause stops dispatch after the in-flight command, if any, completes.
// Commands submitted while paused still accumulate in the queue.
func (r *Relay) Pause() {
	r.state.set(Paused)
}

// Resume restarts dispatch and wakes the loop, since commands may have
// accumulated while paused.
func (r *Relay) Resume() {
	r.state.set(Running)
	r.notify()
}

// Clear drops all queued commands. A command already mid-dispatch is
// unaffected and completes normally.
func (r *Relay) Clear() {
	r.queue.Clear()
}

// Status reports the queue length and current run-state.
func (r *Relay) Status() (queueLength int, state RunState) {
	return r.queue.Len(), r.state.current()
}

func (r *Relay) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
		// a wake is already pending, one drain covers both
	}
}
