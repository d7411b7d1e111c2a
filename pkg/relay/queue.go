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
	"errors"
	"strings"

	"github.com/axirelay/axirelay/pkg/helpers/syncutil"
)

// ErrInvalidCommand is returned for a command that is empty or contains a
// line terminator. CR and LF frame both the intake protocol and the serial
// protocol, so a command carrying either would corrupt framing.
var ErrInvalidCommand = errors.New("invalid command")

// Queue is an unbounded FIFO of validated command strings. Producers append
// from network handlers while the dispatch loop pops from the front; every
// operation holds the lock only for the duration of the mutation, never
// across serial I/O.
type Queue struct {
	cmds []string
	mu   syncutil.Mutex
}

func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue validates raw and appends it to the tail. On validation failure
// the queue is left untouched.
func (q *Queue) Enqueue(raw string) error {
	if raw == "" || strings.ContainsAny(raw, "\r\n") {
		return ErrInvalidCommand
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.cmds = append(q.cmds, raw)
	return nil
}

// Dequeue pops and returns the head of the queue. The second return value
// is false if the queue was empty.
func (q *Queue) Dequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.cmds) == 0 {
		return "", false
	}

	cmd := q.cmds[0]
	q.cmds = q.cmds[1:]
	return cmd, true
}

// Requeue pushes an already-validated command back onto the front of the
// queue. Used when a send fails before the device acknowledged it.
func (q *Queue) Requeue(cmd string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cmds = append([]string{cmd}, q.cmds...)
}

// Clear drops all queued commands regardless of run-state.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cmds = nil
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cmds)
}
