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

//go:build linux

package usblp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZaparooProject/go-capt/detection"
)

// scanSysfs lists the usbmisc lp entries under sysRoot. Device nodes are
// reported under devDir.
func scanSysfs(ctx context.Context, sysRoot, devDir string) ([]lpDevice, error) {
	classDir := filepath.Join(sysRoot, "class", "usbmisc")
	entries, err := os.ReadDir(classDir)
	if errors.Is(err, os.ErrNotExist) {
		// usblp not loaded
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", classDir, err)
	}

	var devices []lpDevice
	for _, entry := range entries {
		if ctx.Err() != nil {
			return devices, ctx.Err()
		}
		if !strings.HasPrefix(entry.Name(), "lp") {
			continue
		}
		if dev, ok := readLPEntry(sysRoot, classDir, devDir, entry.Name()); ok {
			devices = append(devices, dev)
		}
	}
	return devices, nil
}

func readLPEntry(sysRoot, classDir, devDir, name string) (lpDevice, bool) {
	intfPath, err := filepath.EvalSymlinks(filepath.Join(classDir, name, "device"))
	if err != nil {
		return lpDevice{}, false
	}

	dev := lpDevice{
		Path: filepath.Join(devDir, name),
		Name: name,
	}
	dev.DeviceID = readAttr(sysRoot, intfPath, "ieee1284_id")
	readUSBAttributes(&dev, sysRoot, intfPath)
	return dev, true
}

// readUSBAttributes walks up from the interface directory to the USB
// device that carries idVendor and idProduct
func readUSBAttributes(dev *lpDevice, sysRoot, intfPath string) {
	current := intfPath
	for range 10 { // Limit iterations to prevent infinite loops
		vid := readAttr(sysRoot, current, "idVendor")
		pid := readAttr(sysRoot, current, "idProduct")
		if id, ok := detection.ParseUSBID(vid + ":" + pid); ok {
			dev.VIDPID = id.String()
			dev.Product = readAttr(sysRoot, current, "product")
			dev.Serial = readAttr(sysRoot, current, "serial")
			return
		}

		current = filepath.Dir(current)
		if current == "/" || current == "." {
			return
		}
	}
}

// readAttr reads one sysfs attribute. Paths outside sysRoot are refused.
func readAttr(sysRoot, dir, attr string) string {
	cleanPath := filepath.Clean(filepath.Join(dir, attr))
	if !strings.HasPrefix(cleanPath, filepath.Clean(sysRoot)+string(filepath.Separator)) {
		return ""
	}
	data, err := os.ReadFile(cleanPath) // #nosec G304 -- Path is validated to be under sysRoot
	if err != nil {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(string(data)), "\x00")
}
