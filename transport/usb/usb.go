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

// Package usb talks to CAPT printers through libusb. It claims the printer
// interface directly, so the kernel usblp driver is detached for the life
// of the transport.
package usb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/gousb"

	"github.com/ZaparooProject/go-capt"
	"github.com/ZaparooProject/go-capt/internal/syncutil"
)

// CanonVendorID is the USB vendor ID of Canon Inc.
const CanonVendorID gousb.ID = 0x04A9

// ErrPrinterNotFound is returned when no attached device matches.
var ErrPrinterNotFound = errors.New("no matching USB printer")

// Config selects the device and interface to claim.
type Config struct {
	// Serial restricts the match to one printer (empty = any)
	Serial string
	// VendorID defaults to CanonVendorID
	VendorID gousb.ID
	// ProductID restricts the match to one model (0 = any)
	ProductID gousb.ID
	// Configuration is the USB configuration value (default 1)
	Configuration int
	// Interface and AltSetting identify the printer interface
	Interface  int
	AltSetting int
}

// DefaultConfig matches the first Canon printer on configuration 1,
// interface 0.
func DefaultConfig() Config {
	return Config{
		VendorID:      CanonVendorID,
		Configuration: 1,
	}
}

// ParsePath parses a device selector of the form "VID:PID[:SERIAL]" with
// hexadecimal IDs. An empty path selects the first Canon printer.
func ParsePath(path string) (Config, error) {
	cfg := DefaultConfig()
	path = strings.TrimPrefix(path, "usb:")
	if path == "" {
		return cfg, nil
	}

	parts := strings.SplitN(path, ":", 3)
	if len(parts) < 2 {
		return Config{}, fmt.Errorf("invalid USB path %q: want VID:PID[:SERIAL]", path)
	}

	vid, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return Config{}, fmt.Errorf("invalid vendor ID %q: %w", parts[0], err)
	}
	pid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return Config{}, fmt.Errorf("invalid product ID %q: %w", parts[1], err)
	}
	cfg.VendorID = gousb.ID(vid)
	cfg.ProductID = gousb.ID(pid)
	if len(parts) == 3 {
		cfg.Serial = parts[2]
	}
	return cfg, nil
}

// matches reports whether desc is a candidate for cfg. The serial number
// needs an open handle and is checked afterwards.
func (c Config) matches(desc *gousb.DeviceDesc) bool {
	if desc.Vendor != c.VendorID {
		return false
	}
	return c.ProductID == 0 || desc.Product == c.ProductID
}

// Transport implements capt.Transport over libusb.
type Transport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint
	name string
	mu   syncutil.Mutex
}

// Open finds the printer selected by path and claims its interface.
// It is a capt.TransportFactory.
func Open(path string) (capt.Transport, error) {
	cfg, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// New finds the printer selected by cfg and claims its interface.
func New(cfg Config) (*Transport, error) {
	if cfg.VendorID == 0 {
		cfg.VendorID = CanonVendorID
	}
	if cfg.Configuration == 0 {
		cfg.Configuration = 1
	}

	uctx := gousb.NewContext()
	dev, err := findPrinter(uctx, cfg)
	if err != nil {
		_ = uctx.Close()
		return nil, err
	}

	t := &Transport{ctx: uctx, dev: dev, name: deviceName(dev.Desc)}
	if err := t.claim(cfg); err != nil {
		_ = t.release()
		return nil, err
	}
	return t, nil
}

func findPrinter(uctx *gousb.Context, cfg Config) (*gousb.Device, error) {
	devs, err := uctx.OpenDevices(cfg.matches)
	// OpenDevices may return usable devices together with an error for
	// the ones it could not open
	var found *gousb.Device
	for _, dev := range devs {
		if found == nil && serialMatches(dev, cfg.Serial) {
			found = dev
			continue
		}
		_ = dev.Close()
	}
	if found != nil {
		return found, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open USB devices %s:%s: %w", cfg.VendorID, cfg.ProductID, err)
	}
	return nil, fmt.Errorf("%w: %s:%s %s", ErrPrinterNotFound, cfg.VendorID, cfg.ProductID, cfg.Serial)
}

func serialMatches(dev *gousb.Device, want string) bool {
	if want == "" {
		return true
	}
	serial, err := dev.SerialNumber()
	return err == nil && serial == want
}

func deviceName(desc *gousb.DeviceDesc) string {
	return fmt.Sprintf("usb:%s:%s@%d.%d", desc.Vendor, desc.Product, desc.Bus, desc.Address)
}

func (t *Transport) claim(cfg Config) error {
	if err := t.dev.SetAutoDetach(true); err != nil {
		return fmt.Errorf("failed to set auto detach: %w", err)
	}

	c, err := t.dev.Config(cfg.Configuration)
	if err != nil {
		return fmt.Errorf("failed to select configuration %d: %w", cfg.Configuration, err)
	}
	t.cfg = c

	intf, err := c.Interface(cfg.Interface, cfg.AltSetting)
	if err != nil {
		return fmt.Errorf("failed to claim interface %d: %w", cfg.Interface, err)
	}
	t.intf = intf

	if t.out, err = intf.OutEndpoint(capt.EndpointOut); err != nil {
		return fmt.Errorf("failed to open OUT endpoint: %w", err)
	}
	if t.in, err = intf.InEndpoint(capt.EndpointIn & 0x0F); err != nil {
		return fmt.Errorf("failed to open IN endpoint: %w", err)
	}
	return nil
}

// release closes everything in reverse order of acquisition
func (t *Transport) release() error {
	var errs []error
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.cfg != nil {
		errs = append(errs, t.cfg.Close())
		t.cfg = nil
	}
	if t.dev != nil {
		errs = append(errs, t.dev.Close())
		t.dev = nil
	}
	if t.ctx != nil {
		errs = append(errs, t.ctx.Close())
		t.ctx = nil
	}
	t.in, t.out = nil, nil
	return errors.Join(errs...)
}

// BulkWrite implements capt.Transport
func (t *Transport) BulkWrite(ctx context.Context, data []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.out == nil {
		return 0, capt.ErrTransportClosed
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	n, err := t.out.WriteContext(wctx, data)
	if err != nil {
		return n, t.classify(ctx, wctx, "write", err)
	}
	return n, nil
}

// BulkRead implements capt.Transport
func (t *Transport) BulkRead(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.in == nil {
		return 0, capt.ErrTransportClosed
	}

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	n, err := t.in.ReadContext(rctx, buf)
	if err != nil {
		return n, t.classify(ctx, rctx, "read", err)
	}
	return n, nil
}

// ControlTransfer implements capt.Transport. libusb control transfers do
// not take a context, so ctx is only checked before the request.
func (t *Transport) ControlTransfer(
	ctx context.Context, requestType, request uint8, value, index uint16,
	buf []byte, timeout time.Duration,
) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev == nil {
		return 0, capt.ErrTransportClosed
	}

	t.dev.ControlTimeout = timeout
	n, err := t.dev.Control(requestType, request, value, index, buf)
	if err != nil {
		return n, classifyError("control", t.name, err)
	}
	return n, nil
}

// classify maps a bulk transfer error. A transfer cut short by its own
// deadline is a timeout; one cut short by the caller returns ctx's error.
func (t *Transport) classify(parent, transfer context.Context, op string, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return parentErr
	}
	if errors.Is(transfer.Err(), context.DeadlineExceeded) {
		return capt.NewTimeoutError(op, t.name)
	}
	return classifyError(op, t.name, err)
}

// classifyError maps libusb errors onto the capt error taxonomy
func classifyError(op, name string, err error) error {
	switch {
	case errors.Is(err, gousb.ErrorTimeout), errors.Is(err, gousb.TransferTimedOut):
		return capt.NewTimeoutError(op, name)
	case errors.Is(err, gousb.ErrorNoDevice), errors.Is(err, gousb.TransferNoDevice):
		return capt.NewTransportError(op, name,
			fmt.Errorf("%w: %w", capt.ErrDeviceNotFound, err), capt.ErrorTypePermanent)
	case errors.Is(err, gousb.ErrorNotSupported):
		return fmt.Errorf("%s %s: %w: %w", op, name, capt.ErrNotSupported, err)
	default:
		return capt.NewTransportError(op, name, err, capt.ErrorTypePermanent)
	}
}

// Close releases the interface, device handle and libusb context
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.release(); err != nil {
		return fmt.Errorf("USB close failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev != nil
}

// Type returns the transport type
func (*Transport) Type() capt.TransportType {
	return capt.TransportUSB
}

// String returns the vendor, product and bus position of the device
func (t *Transport) String() string {
	return t.name
}
