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

// Package uart finds CAPT printers behind USB serial bridges.
//
// Serial ports carry no device ID, so a port only counts as a printer once
// it answers a status request. Passive mode reports nothing but ports that
// enumerate with Canon's vendor ID.
package uart

import (
	"context"
	"fmt"

	"go.bug.st/serial/enumerator"

	capt "github.com/ZaparooProject/go-capt"
	"github.com/ZaparooProject/go-capt/detection"
	"github.com/ZaparooProject/go-capt/transport/uart"
)

type detector struct {
	list    func() ([]*enumerator.PortDetails, error)
	factory capt.TransportFactory
}

// New returns the serial port detector
func New() detection.Detector {
	return &detector{list: enumerator.GetDetailedPortsList, factory: uart.Open}
}

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Transport() string {
	return string(capt.TransportUART)
}

func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.list()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var candidates []detection.Candidate
	for _, port := range ports {
		c, ok := toCandidate(port, opts.Mode)
		if ok {
			candidates = append(candidates, c)
		}
	}

	devices := detection.Resolve(ctx, d.Transport(), candidates, d.factory, opts)
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// toCandidate keeps USB serial ports. Built-in UARTs are never probed since
// nothing about them hints at a printer.
func toCandidate(port *enumerator.PortDetails, mode detection.Mode) (detection.Candidate, bool) {
	if port == nil || !port.IsUSB {
		return detection.Candidate{}, false
	}

	id, hasID := detection.ParseUSBID(port.VID + ":" + port.PID)
	canon := hasID && id.Vendor == detection.CanonVendorID
	if mode == detection.Passive && !canon {
		return detection.Candidate{}, false
	}

	c := detection.Candidate{
		Path:     port.Name,
		Name:     port.Product,
		Known:    canon,
		Metadata: map[string]string{},
	}
	if c.Name == "" {
		c.Name = port.Name
	}
	if hasID {
		c.Metadata[detection.MetaVIDPID] = id.String()
	}
	if port.SerialNumber != "" {
		c.Metadata[detection.MetaSerial] = port.SerialNumber
	}
	return c, true
}
