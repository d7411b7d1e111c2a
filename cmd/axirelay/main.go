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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/axirelay/axirelay/pkg/api"
	"github.com/axirelay/axirelay/pkg/config"
	"github.com/axirelay/axirelay/pkg/device"
	"github.com/axirelay/axirelay/pkg/helpers"
	"github.com/axirelay/axirelay/pkg/relay"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "axirelay")
}

func run() error {
	devicePath := flag.String(
		"device",
		"",
		"serial device of the plotter (default: auto-detect)",
	)
	apiPort := flag.Int(
		"port",
		0,
		"port to listen on for the API (default: from config)",
	)
	configDir := flag.String(
		"config",
		defaultConfigDir(),
		"directory holding the config file",
	)
	daemonMode := flag.Bool(
		"daemon",
		false,
		"log only to the rotated log file, not stderr",
	)
	flag.Parse()

	var logWriters []io.Writer
	if !*daemonMode {
		logWriters = []io.Writer{os.Stderr}
	}

	if err := helpers.InitLogging(*configDir, logWriters); err != nil {
		return fmt.Errorf("error initializing logging: %w", err)
	}

	cfg, err := config.NewConfig(*configDir, config.BaseDefaults)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if cfg.DebugLogging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if *devicePath != "" {
		cfg.SetDevicePath(*devicePath)
	}
	if *apiPort != 0 {
		cfg.SetAPIPort(*apiPort)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	acquirer := device.NewAcquirer(cfg)

	log.Info().Msg("waiting for serial connection")
	tx, err := acquirer.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("error acquiring device: %w", err)
	}
	log.Info().Str("device", tx.Path()).Msg("serial connection ready")

	rly := relay.New()
	dispatcher := relay.NewDispatcher(rly, tx, func(ctx context.Context) (relay.Transceiver, error) {
		return acquirer.Acquire(ctx)
	})

	dispatchErr := make(chan error, 1)
	go func() {
		dispatchErr <- dispatcher.Run(ctx)
	}()

	apiErr := make(chan error, 1)
	go func() {
		apiErr <- api.Start(ctx, cfg, rly)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-dispatchErr:
		cancel()
		<-apiErr
		if err != nil {
			return fmt.Errorf("dispatch loop failed: %w", err)
		}
		return nil
	case err := <-apiErr:
		cancel()
		<-dispatchErr
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	}

	// let the in-flight serial exchange finish before exiting; the queue is
	// deliberately not drained
	if err := <-dispatchErr; err != nil {
		return fmt.Errorf("dispatch loop failed: %w", err)
	}
	if err := <-apiErr; err != nil {
		return fmt.Errorf("api server failed: %w", err)
	}

	return nil
}
