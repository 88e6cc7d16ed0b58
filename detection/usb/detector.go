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

// Package usb finds CAPT printers through libusb.
//
// Import it for its side effect to register the detector:
//
//	import _ "github.com/ZaparooProject/go-capt/detection/usb"
package usb

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/gousb"

	capt "github.com/ZaparooProject/go-capt"
	"github.com/ZaparooProject/go-capt/detection"
	usbtransport "github.com/ZaparooProject/go-capt/transport/usb"
)

// usbDevice is what enumeration learns about one attached printer
type usbDevice struct {
	Serial    string
	Product   string
	Bus       int
	Address   int
	VendorID  gousb.ID
	ProductID gousb.ID
}

type detector struct {
	list    func(ctx context.Context) ([]usbDevice, error)
	factory capt.TransportFactory
}

// New returns the libusb detector
func New() detection.Detector {
	return &detector{list: listPrinters, factory: usbtransport.Open}
}

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Transport() string {
	return string(capt.TransportUSB)
}

func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	found, err := d.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}

	candidates := make([]detection.Candidate, 0, len(found))
	for _, dev := range found {
		candidates = append(candidates, toCandidate(dev))
	}

	devices := detection.Resolve(ctx, d.Transport(), candidates, d.factory, opts)
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// devicePath renders the path usbtransport.Open accepts
func devicePath(dev usbDevice) string {
	path := fmt.Sprintf("usb:%s:%s", dev.VendorID, dev.ProductID)
	if dev.Serial != "" {
		path += ":" + dev.Serial
	}
	return path
}

func toCandidate(dev usbDevice) detection.Candidate {
	vidpid := fmt.Sprintf("%04X:%04X", uint16(dev.VendorID), uint16(dev.ProductID))
	model, known := detection.KnownModel(vidpid)
	name := strings.TrimSpace(dev.Product)
	if name == "" && known {
		name = "Canon " + model
	}

	meta := map[string]string{
		detection.MetaVIDPID: vidpid,
		"bus":                fmt.Sprintf("%03d", dev.Bus),
		"address":            fmt.Sprintf("%03d", dev.Address),
	}
	if dev.Serial != "" {
		meta[detection.MetaSerial] = dev.Serial
	}

	return detection.Candidate{
		Path:     devicePath(dev),
		Name:     name,
		Known:    known,
		Metadata: meta,
	}
}

// isPrinter reports whether desc is a Canon device with a printer class
// interface
func isPrinter(desc *gousb.DeviceDesc) bool {
	if desc.Vendor != usbtransport.CanonVendorID {
		return false
	}
	if desc.Class == gousb.ClassPrinter {
		return true
	}
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if alt.Class == gousb.ClassPrinter {
					return true
				}
			}
		}
	}
	return false
}

// listPrinters opens every Canon printer long enough to read its string
// descriptors. No interface is claimed.
func listPrinters(ctx context.Context) ([]usbDevice, error) {
	uctx := gousb.NewContext()
	defer func() { _ = uctx.Close() }()

	devs, err := uctx.OpenDevices(isPrinter)
	defer func() {
		for _, dev := range devs {
			_ = dev.Close()
		}
	}()
	// OpenDevices reports the first open failure but still returns the
	// devices it could open
	if err != nil && len(devs) == 0 {
		return nil, err
	}

	found := make([]usbDevice, 0, len(devs))
	for _, dev := range devs {
		if ctx.Err() != nil {
			return found, ctx.Err()
		}
		info := usbDevice{
			VendorID:  dev.Desc.Vendor,
			ProductID: dev.Desc.Product,
			Bus:       dev.Desc.Bus,
			Address:   dev.Desc.Address,
		}
		if serial, err := dev.SerialNumber(); err == nil {
			info.Serial = serial
		}
		if product, err := dev.Product(); err == nil {
			info.Product = product
		}
		found = append(found, info)
	}
	return found, nil
}
