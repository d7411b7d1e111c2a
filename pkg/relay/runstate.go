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

import "github.com/axirelay/axirelay/pkg/helpers/syncutil"

// RunState gates whether queued commands are dispatched to the device.
type RunState int

const (
	Running RunState = iota
	Paused
)

func (s RunState) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// stateController holds the Running/Paused flag. Transitions happen only
// through the Relay's Pause and Resume so the resume wake signal cannot be
// skipped.
type stateController struct {
	state RunState
	mu    syncutil.RWMutex
}

func newStateController() *stateController {
	return &stateController{state: Running}
}

func (c *stateController) set(s RunState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *stateController) current() RunState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
