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

// Package usblp finds CAPT printers bound to the Linux usblp driver.
//
// Import it for its side effect to register the detector:
//
//	import _ "github.com/ZaparooProject/go-capt/detection/usblp"
package usblp

import (
	"context"
	"fmt"

	capt "github.com/ZaparooProject/go-capt"
	"github.com/ZaparooProject/go-capt/detection"
	"github.com/ZaparooProject/go-capt/transport/usblp"
)

// lpDevice is a printer node found in sysfs
type lpDevice struct {
	// Path of the character device, e.g. /dev/usb/lp0
	Path string
	// Name of the class entry, e.g. lp0
	Name string
	// VIDPID of the parent USB device
	VIDPID string
	// DeviceID is the IEEE 1284 ID the driver cached at bind time
	DeviceID string
	Product  string
	Serial   string
}

type detector struct {
	scan    func(ctx context.Context) ([]lpDevice, error)
	factory capt.TransportFactory
}

// New returns the usblp detector
func New() detection.Detector {
	return &detector{
		scan: func(ctx context.Context) ([]lpDevice, error) {
			return scanSysfs(ctx, "/sys", "/dev/usb")
		},
		factory: usblp.Open,
	}
}

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Transport() string {
	return string(capt.TransportUSBLP)
}

func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	found, err := d.scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan usblp devices: %w", err)
	}

	candidates := make([]detection.Candidate, 0, len(found))
	for _, dev := range found {
		if c, ok := toCandidate(dev); ok {
			candidates = append(candidates, c)
		}
	}

	devices := detection.Resolve(ctx, d.Transport(), candidates, d.factory, opts)
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// toCandidate skips printers whose cached device ID names another command
// set. A printer with no cached ID is kept for probing.
func toCandidate(dev lpDevice) (detection.Candidate, bool) {
	c := detection.Candidate{
		Path:     dev.Path,
		Name:     dev.Product,
		Metadata: make(map[string]string),
	}
	if c.Name == "" {
		c.Name = dev.Name
	}

	if dev.VIDPID != "" {
		c.Metadata[detection.MetaVIDPID] = dev.VIDPID
		if model, ok := detection.KnownModel(dev.VIDPID); ok {
			c.Known = true
			if dev.Product == "" {
				c.Name = "Canon " + model
			}
		}
	}
	if dev.Serial != "" {
		c.Metadata[detection.MetaSerial] = dev.Serial
	}

	if dev.DeviceID != "" {
		id := capt.ParseDeviceID(dev.DeviceID)
		if !id.SupportsCAPT() {
			return detection.Candidate{}, false
		}
		c.Known = true
		c.Metadata[detection.MetaDeviceID] = dev.DeviceID
		if id.Model() != "" {
			c.Name = id.String()
		}
	}
	return c, true
}
