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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/axirelay/axirelay/pkg/helpers/syncutil"
	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	SchemaVersion = 1
	CfgEnv        = "AXIRELAY_CFG"
	CfgFile       = "config.toml"
	LogFile       = "axirelay.log"
)

// ProductMatch is the USB product substring that identifies an AxiDraw
// controller board during auto-detection.
const ProductMatch = "EiBotBoard"

type Values struct {
	Service      Service `toml:"service,omitempty"`
	Device       Device  `toml:"device,omitempty"`
	ConfigSchema int     `toml:"config_schema"`
	DebugLogging bool    `toml:"debug_logging"`
}

type Service struct {
	DeviceID string `toml:"device_id,omitempty"`
	APIPort  int    `toml:"api_port"`
}

type Device struct {
	// Path is an explicit serial device path. Empty means auto-detect by
	// USB product string.
	Path           string `toml:"path,omitempty"`
	ProductMatch   string `toml:"product_match"`
	BaudRate       int    `toml:"baud_rate"`
	ReadTimeoutMs  int    `toml:"read_timeout_ms"`
	RespTimeoutMs  int    `toml:"response_timeout_ms"`
	ScanIntervalMs int    `toml:"scan_interval_ms"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Service: Service{
		APIPort: 7878,
	},
	Device: Device{
		ProductMatch:   ProductMatch,
		BaudRate:       9600,
		ReadTimeoutMs:  1000,
		RespTimeoutMs:  10000,
		ScanIntervalMs: 1000,
	},
}

type Instance struct {
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

//nolint:gocritic // config struct copied for immutability
func NewConfig(configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		log.Info().Msg("saving new default config to disk")

		err := os.MkdirAll(filepath.Dir(cfgPath), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		err = cfg.Save()
		if err != nil {
			return nil, err
		}
	}

	err := cfg.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then unmarshal file values on top. Fields not
	// present in the file retain their default values.
	newVals := c.defaults
	err = toml.Unmarshal(data, &newVals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return errors.New("schema version mismatch")
	}

	c.vals = newVals

	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	c.vals.ConfigSchema = SchemaVersion

	// generate a device id if one doesn't exist
	if c.vals.Service.DeviceID == "" {
		newID := uuid.New().String()
		c.vals.Service.DeviceID = newID
		log.Info().Msgf("generated new device id: %s", newID)
	}

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Instance) APIPort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.APIPort
}

func (c *Instance) SetAPIPort(port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Service.APIPort = port
}

func (c *Instance) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.DeviceID
}

func (c *Instance) DevicePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Device.Path
}

func (c *Instance) SetDevicePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Device.Path = path
}

func (c *Instance) DeviceProductMatch() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Device.ProductMatch
}

func (c *Instance) DeviceBaudRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Device.BaudRate
}

func (c *Instance) DeviceReadTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Device.ReadTimeoutMs) * time.Millisecond
}

func (c *Instance) DeviceResponseTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Device.RespTimeoutMs) * time.Millisecond
}

func (c *Instance) DeviceScanInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Device.ScanIntervalMs) * time.Millisecond
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
	if enabled {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
