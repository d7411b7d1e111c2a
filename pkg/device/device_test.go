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
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/axirelay/axirelay/pkg/config"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

func testConfig(t *testing.T) *config.Instance {
	t.Helper()
	cfg, err := config.NewConfig(t.TempDir(), config.BaseDefaults)
	require.NoError(t, err)
	return cfg
}

func TestFindDeviceByProduct(t *testing.T) {
	t.Parallel()

	a := NewAcquirer(testConfig(t))
	a.listPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyUSB0", IsUSB: true, Product: "USB-Serial Controller"},
			{Name: "/dev/ttyACM0", IsUSB: true, Product: "EiBotBoard"},
		}, nil
	}

	path, found := a.findDevice()
	require.True(t, found)
	assert.Equal(t, "/dev/ttyACM0", path)
}

func TestFindDeviceByProductSubstring(t *testing.T) {
	t.Parallel()

	a := NewAcquirer(testConfig(t))
	a.listPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyACM1", IsUSB: true, Product: "EiBotBoard v2.7 EBB"},
		}, nil
	}

	path, found := a.findDevice()
	require.True(t, found)
	assert.Equal(t, "/dev/ttyACM1", path)
}

func TestFindDeviceExplicitPath(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.SetDevicePath("/dev/ttyUSB7")

	a := NewAcquirer(cfg)
	a.listPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyACM0", IsUSB: true, Product: "EiBotBoard"},
			{Name: "/dev/ttyUSB7"},
		}, nil
	}

	path, found := a.findDevice()
	require.True(t, found)
	assert.Equal(t, "/dev/ttyUSB7", path, "explicit path wins over descriptor match")
}

func TestFindDeviceNoMatch(t *testing.T) {
	t.Parallel()

	a := NewAcquirer(testConfig(t))
	a.listPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB0", IsUSB: true, Product: "GPS Receiver"},
		}, nil
	}

	_, found := a.findDevice()
	assert.False(t, found)
}

func TestFindDeviceEnumerationError(t *testing.T) {
	t.Parallel()

	a := NewAcquirer(testConfig(t))
	a.listPorts = func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("udev unavailable")
	}

	_, found := a.findDevice()
	assert.False(t, found, "enumeration failure is treated as no device yet")
}

func TestAcquireRetriesUntilDeviceAppears(t *testing.T) {
	t.Parallel()

	fc := clockwork.NewFakeClock()

	var mu sync.Mutex
	var ports []*enumerator.PortDetails

	a := NewAcquirer(testConfig(t))
	a.clock = fc
	a.listPorts = func() ([]*enumerator.PortDetails, error) {
		mu.Lock()
		defer mu.Unlock()
		return ports, nil
	}
	a.portFactory = func(_ string, _ *serial.Mode) (Port, error) {
		return &mockPort{}, nil
	}

	type result struct {
		tx  *Transceiver
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		tx, err := a.Acquire(context.Background())
		resultCh <- result{tx, err}
	}()

	// first scan finds nothing and the acquirer goes to sleep
	fc.BlockUntil(1)

	mu.Lock()
	ports = []*enumerator.PortDetails{
		{Name: "/dev/ttyACM0", IsUSB: true, Product: "EiBotBoard"},
	}
	mu.Unlock()

	fc.Advance(time.Second)

	select {
	case res := <-resultCh:
		require.NoError(t, res.err)
		assert.Equal(t, "/dev/ttyACM0", res.tx.Path())
	case <-time.After(time.Second):
		t.Fatal("acquire did not return after device appeared")
	}
}

func TestAcquireOpenFailureIsFatal(t *testing.T) {
	t.Parallel()

	a := NewAcquirer(testConfig(t))
	a.listPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyACM0", IsUSB: true, Product: "EiBotBoard"},
		}, nil
	}
	a.portFactory = func(_ string, _ *serial.Mode) (Port, error) {
		return nil, errors.New("permission denied")
	}

	_, err := a.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open matched device")
}

func TestAcquireCancelled(t *testing.T) {
	t.Parallel()

	fc := clockwork.NewFakeClock()

	a := NewAcquirer(testConfig(t))
	a.clock = fc
	a.listPorts = func() ([]*enumerator.PortDetails, error) {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := a.Acquire(ctx)
		errCh <- err
	}()

	fc.BlockUntil(1)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("acquire did not return after cancellation")
	}
}

func TestAcquireOpensWithConfiguredMode(t *testing.T) {
	t.Parallel()

	var gotMode *serial.Mode

	a := NewAcquirer(testConfig(t))
	a.listPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyACM0", IsUSB: true, Product: "EiBotBoard"},
		}, nil
	}
	a.portFactory = func(_ string, mode *serial.Mode) (Port, error) {
		gotMode = mode
		return &mockPort{}, nil
	}

	tx, err := a.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, gotMode)
	assert.Equal(t, 9600, gotMode.BaudRate)
	assert.Equal(t, "/dev/ttyACM0", tx.Path())
}
