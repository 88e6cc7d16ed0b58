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

// Package uart carries the CAPT byte stream over a serial line, for printers
// reached through a USB-serial bridge or a print server with a raw serial
// port. The line has no packet boundaries, so reads are repacketized into
// full-speed USB sized transfers.
package uart

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/ZaparooProject/go-capt"
	"github.com/ZaparooProject/go-capt/internal/syncutil"
)

// packetSize is the largest transfer one BulkRead returns, matching the
// bulk packet size of a full-speed printer interface.
const packetSize = 64

// Transport implements capt.Transport over a serial port.
type Transport struct {
	port     serial.Port
	portName string
	mu       syncutil.Mutex
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// readPollTimeout is how long a single port read blocks. Windows drivers
// need a longer poll than Linux and macOS.
func readPollTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// windowsPostWriteDelay adds Windows-specific delay after write operations
func windowsPostWriteDelay() {
	if isWindows() {
		time.Sleep(15 * time.Millisecond)
	}
}

// DefaultBaudRate is used when the port name carries no rate.
const DefaultBaudRate = 115200

// ParsePort splits "name@baud" into the port name and its baud rate. A
// name without a rate uses DefaultBaudRate.
func ParsePort(port string) (name string, baud int, err error) {
	name, rate, found := strings.Cut(port, "@")
	if name == "" {
		return "", 0, fmt.Errorf("empty UART port name in %q", port)
	}
	if !found {
		return name, DefaultBaudRate, nil
	}
	baud, err = strconv.Atoi(rate)
	if err != nil || baud <= 0 {
		return "", 0, fmt.Errorf("invalid UART baud rate %q", rate)
	}
	return name, baud, nil
}

// New opens a port given as "name" or "name@baud", 8N1.
func New(name string) (*Transport, error) {
	portName, baud, err := ParsePort(name)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, openError(portName, err)
	}

	if err := port.SetReadTimeout(readPollTimeout()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	return &Transport{
		port:     port,
		portName: portName,
	}, nil
}

// openError maps serial open failures onto the driver's error taxonomy. A
// missing port is ErrDeviceNotFound; a busy or locked one may free up
// and is reported transient.
func openError(portName string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("UART port %s: %w (%v)", portName, capt.ErrDeviceNotFound, err)
	}
	var pe *serial.PortError
	if errors.As(err, &pe) {
		//nolint:exhaustive // remaining codes are plain open failures
		switch pe.Code() {
		case serial.PortNotFound, serial.InvalidSerialPort:
			return fmt.Errorf("UART port %s: %w (%v)", portName, capt.ErrDeviceNotFound, err)
		case serial.PortBusy, serial.PermissionDenied:
			return capt.NewTransportError("open", portName, err, capt.ErrorTypeTransient)
		}
	}
	return fmt.Errorf("failed to open UART port %s: %w", portName, err)
}

// Open is a capt.TransportFactory for serial ports.
func Open(portName string) (capt.Transport, error) {
	return New(portName)
}

// BulkWrite writes data and waits for the port to drain. Serial writes
// have no timeout of their own, so timeout is unused.
func (t *Transport) BulkWrite(ctx context.Context, data []byte, _ time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return 0, capt.ErrTransportClosed
	}

	n, err := t.port.Write(data)
	if err != nil {
		return n, capt.NewTransportError("write", t.portName, err, capt.ErrorTypePermanent)
	}
	if err := t.drainWithRetry("write"); err != nil {
		return n, capt.NewTransportError("write", t.portName, err, capt.ErrorTypePermanent)
	}
	windowsPostWriteDelay()
	return n, nil
}

// BulkRead reads one transfer of at most 64 bytes. It returns once the
// requested size has arrived or the line goes quiet after some data, and
// times out if nothing arrives before timeout.
func (t *Transport) BulkRead(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return 0, capt.ErrTransportClosed
	}

	want := min(len(buf), packetSize)
	deadline := time.Now().Add(timeout)
	total := 0

	for total < want {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := t.port.Read(buf[total:want])
		if err != nil {
			if isInterruptedSystemCall(err) {
				continue
			}
			return total, capt.NewTransportError("read", t.portName, err, capt.ErrorTypePermanent)
		}
		total += n

		if n == 0 {
			if total > 0 {
				break
			}
			if !time.Now().Before(deadline) {
				return 0, capt.NewTimeoutError("read", t.portName)
			}
		}
	}
	return total, nil
}

// ControlTransfer is not available on a serial line.
func (*Transport) ControlTransfer(
	_ context.Context, _, _ uint8, _, _ uint16, _ []byte, _ time.Duration,
) (int, error) {
	return 0, capt.ErrNotSupported
}

// SetTimeout sets how long a single port read blocks
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.port.SetReadTimeout(timeout)
	if err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	return nil
}

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Type returns the transport type
func (*Transport) Type() capt.TransportType {
	return capt.TransportUART
}

// String returns the port name
func (t *Transport) String() string {
	return t.portName
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) {
			if attempt < maxRetries-1 {
				delay := baseDelay * time.Duration(1<<attempt) // 2ms, 4ms, 8ms
				time.Sleep(delay)
				continue
			}
		}

		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}
