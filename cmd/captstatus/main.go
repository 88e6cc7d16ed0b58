// go-capt
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-capt.
//
// go-capt is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-capt is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-capt; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	capt "github.com/ZaparooProject/go-capt"
	"github.com/ZaparooProject/go-capt/detection"
	_ "github.com/ZaparooProject/go-capt/detection/uart"
	_ "github.com/ZaparooProject/go-capt/detection/usb"
	_ "github.com/ZaparooProject/go-capt/detection/usblp"
	"github.com/ZaparooProject/go-capt/polling"
	"github.com/ZaparooProject/go-capt/transport/uart"
	"github.com/ZaparooProject/go-capt/transport/usb"
	"github.com/ZaparooProject/go-capt/transport/usblp"
)

type config struct {
	out        io.Writer
	factory    capt.TransportFactory
	devicePath string
	logDir     string
	mode       detection.Mode
	timeout    time.Duration
	interval   time.Duration
	extended   bool
	watch      bool
	debug      bool
}

// Package-level flag variables
var (
	flagDevicePath string
	flagMode       string
	flagLogDir     string
	flagTimeout    time.Duration
	flagInterval   time.Duration
	flagExtended   bool
	flagWatch      bool
	flagDebug      bool
)

func init() {
	flag.StringVar(&flagDevicePath, "device", "",
		"Device path: usb:VID:PID[:SERIAL], /dev/usb/lpN or a serial port (auto-detect if empty)")
	flag.StringVar(&flagMode, "mode", "safe", "Detection mode when auto-detecting: passive, safe or full")
	flag.StringVar(&flagLogDir, "log-dir", "", "Write a session log into this directory")
	flag.DurationVar(&flagTimeout, "timeout", 10*time.Second, "Timeout of a single status query")
	flag.DurationVar(&flagInterval, "interval", time.Second, "Poll interval in watch mode")
	flag.BoolVar(&flagExtended, "extended", false, "Query the extended status")
	flag.BoolVar(&flagWatch, "watch", false, "Keep polling and print status changes")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
}

func parseMode(s string) (detection.Mode, error) {
	switch strings.ToLower(s) {
	case "passive":
		return detection.Passive, nil
	case "safe", "":
		return detection.Safe, nil
	case "full":
		return detection.Full, nil
	default:
		return detection.Safe, fmt.Errorf("unknown detection mode %q", s)
	}
}

func parseConfig() (*config, error) {
	mode, err := parseMode(flagMode)
	if err != nil {
		return nil, err
	}
	cfg := &config{
		out:        os.Stdout,
		factory:    newTransport,
		devicePath: flagDevicePath,
		logDir:     flagLogDir,
		mode:       mode,
		timeout:    flagTimeout,
		interval:   flagInterval,
		extended:   flagExtended,
		watch:      flagWatch,
		debug:      flagDebug,
	}

	// Enable debug output if --debug flag is set
	if cfg.debug {
		capt.SetDebugEnabled(true)
	}

	return cfg, nil
}

// transportForPath names the backend that handles a device path.
func transportForPath(path string) capt.TransportType {
	switch {
	case strings.HasPrefix(strings.ToLower(path), "usb:"):
		return capt.TransportUSB
	case strings.HasPrefix(path, "/dev/usb/lp"), strings.HasPrefix(path, "/dev/usblp"):
		return capt.TransportUSBLP
	default:
		return capt.TransportUART
	}
}

// newTransport opens the backend matching a device path.
func newTransport(path string) (capt.Transport, error) {
	if path == "" {
		return nil, errors.New("empty device path")
	}

	var (
		transport capt.Transport
		err       error
	)
	switch transportForPath(path) {
	case capt.TransportUSB:
		transport, err = usb.Open(path)
	case capt.TransportUSBLP:
		transport, err = usblp.Open(path)
	default:
		transport, err = uart.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return transport, nil
}

// resolvePath returns the configured device path or the best detected printer.
func resolvePath(ctx context.Context, cfg *config) (string, error) {
	if cfg.devicePath != "" {
		if cfg.debug {
			_, _ = fmt.Fprintf(cfg.out, "Opening device: %s\n", cfg.devicePath)
		}
		return cfg.devicePath, nil
	}

	if cfg.debug {
		_, _ = fmt.Fprintln(cfg.out, "Auto-detecting CAPT printers...")
	}
	opts := detection.DefaultOptions()
	opts.Mode = cfg.mode
	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil {
		return "", fmt.Errorf("auto-detection failed: %w", err)
	}
	best, ok := detection.Best(devices)
	if !ok {
		return "", detection.ErrNoDevicesFound
	}
	_, _ = fmt.Fprintf(cfg.out, "Found %s\n", best)
	return best.Path, nil
}

func connect(cfg *config, path string) (*capt.Session, error) {
	session, err := capt.Connect(path, cfg.factory, capt.WithPollInterval(cfg.interval))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to printer: %w", err)
	}
	return session, nil
}

func queryStatus(ctx context.Context, session *capt.Session, extended bool) (capt.Status, error) {
	if extended {
		return session.GetExtendedStatus(ctx)
	}
	return session.GetStatus(ctx)
}

func printStatus(w io.Writer, st capt.Status) {
	_, _ = fmt.Fprintf(w, "Status: %s\n", st)
	if st.Has(capt.FlagBusy) {
		_, _ = fmt.Fprintln(w, "Printer is busy")
	} else {
		_, _ = fmt.Fprintln(w, "Printer is ready")
	}
}

func runOnce(ctx context.Context, session *capt.Session, cfg *config) error {
	idCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	id, err := session.Identify(idCtx)
	cancel()
	switch {
	case err == nil:
		deviceID := capt.ParseDeviceID(id)
		_, _ = fmt.Fprintf(cfg.out, "Printer: %s\n", deviceID)
		if cfg.debug {
			_, _ = fmt.Fprintf(cfg.out, "Device ID: %s\n", deviceID.Raw)
		}
	case errors.Is(err, capt.ErrNotSupported), errors.Is(err, capt.ErrNoDeviceID):
		_, _ = fmt.Fprintln(cfg.out, "Printer: (device ID not available)")
	default:
		return fmt.Errorf("failed to read device ID: %w", err)
	}

	statusCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()
	st, err := queryStatus(statusCtx, session, cfg.extended)
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	printStatus(cfg.out, st)
	return nil
}

func runWatchMode(ctx context.Context, session *capt.Session, cfg *config, path string) error {
	pollConfig := polling.DefaultConfig()
	pollConfig.PollInterval = cfg.interval
	if pollConfig.IdleInterval < cfg.interval {
		pollConfig.IdleInterval = cfg.interval
	}
	pollConfig.Extended = cfg.extended

	monitor := polling.NewMonitor(session, pollConfig)
	monitor.SetRecoverer(polling.NewDefaultRecoverer(session, func(context.Context) (*capt.Session, error) {
		return connect(cfg, path)
	}, 0, 0))

	// Ensure monitor cleanup for fast shutdown
	defer func() {
		if err := monitor.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close monitor: %v\n", err)
		}
	}()

	_, _ = fmt.Fprintln(cfg.out, "Watching printer status. Press Ctrl+C to stop...")

	monitor.SetOnChange(func(_, st capt.Status) error {
		_, _ = fmt.Fprintf(cfg.out, "%s %s\n", time.Now().Format(time.TimeOnly), st)
		return nil
	})
	monitor.SetOnReady(func() {
		_, _ = fmt.Fprintln(cfg.out, "Printer is ready")
	})
	monitor.SetOnOffline(func(err error) {
		_, _ = fmt.Fprintf(cfg.out, "Printer went offline: %v\n", err)
	})

	err := monitor.Start(ctx)

	// leave the printer in a clean state whatever the loop was doing
	if current := monitor.Session(); current != nil && !current.IsClosed() {
		if cleanupErr := current.OnJobCancelled(context.WithoutCancel(ctx)); cleanupErr != nil && cfg.debug {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to resynchronise: %v\n", cleanupErr)
		}
		if current != session {
			_ = current.Close()
		}
	}
	return err
}

func run(ctx context.Context, cfg *config) error {
	if cfg.logDir != "" {
		logPath, err := capt.InitSessionLog(cfg.logDir)
		if err != nil {
			return fmt.Errorf("failed to open session log: %w", err)
		}
		defer func() { _ = capt.CloseSessionLog() }()
		if cfg.debug {
			_, _ = fmt.Fprintf(cfg.out, "Session log: %s\n", logPath)
		}
	}

	path, err := resolvePath(ctx, cfg)
	if err != nil {
		return err
	}

	session, err := connect(cfg, path)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close session: %v\n", err)
		}
	}()

	if err := runOnce(ctx, session, cfg); err != nil {
		return err
	}
	if cfg.watch {
		return runWatchMode(ctx, session, cfg, path)
	}
	return nil
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	// Parse command-line flags
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	// Run the main application logic
	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
