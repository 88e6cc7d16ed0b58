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


package detection

import (
	"fmt"
	"strconv"
	"strings"
)

// CanonVendorID is the USB vendor ID every CAPT printer reports.
const CanonVendorID = 0x04A9

// USBID is a USB vendor and product ID pair.
type USBID struct {
	Vendor  uint16
	Product uint16
}

// String renders the ID as MetaVIDPID stores it, e.g. 04A9:2676.
func (id USBID) String() string {
	return fmt.Sprintf("%04X:%04X", id.Vendor, id.Product)
}

// ParseUSBID reads a vendor and product ID in any of the forms the
// platform enumerators produce:
//
//	04a9:2676                 sysfs idVendor/idProduct, lsusb
//	PRODUCT=4a9/2676/100      uevent
//	USB\VID_04A9&PID_2676&MI_00  Windows hardware ID
func ParseUSBID(s string) (USBID, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var vid, pid string
	switch {
	case strings.Contains(s, "VID_"):
		_, rest, _ := strings.Cut(s, "VID_")
		vid, rest, _ = strings.Cut(rest, "&")
		_, pid, _ = strings.Cut(rest, "PID_")
		pid, _, _ = strings.Cut(pid, "&")
		pid, _, _ = strings.Cut(pid, `\`)
	case strings.HasPrefix(s, "PRODUCT="):
		parts := strings.Split(strings.TrimPrefix(s, "PRODUCT="), "/")
		if len(parts) < 2 {
			return USBID{}, false
		}
		vid, pid = parts[0], parts[1]
	default:
		var ok bool
		if vid, pid, ok = strings.Cut(s, ":"); !ok {
			return USBID{}, false
		}
	}

	v, err := strconv.ParseUint(vid, 16, 16)
	if err != nil {
		return USBID{}, false
	}
	p, err := strconv.ParseUint(pid, 16, 16)
	if err != nil {
		return USBID{}, false
	}
	return USBID{Vendor: uint16(v), Product: uint16(p)}, true
}

// knownModels lists Canon printers that speak CAPT
var knownModels = map[USBID]string{
	{CanonVendorID, 0x2676}: "LBP2900",
	{CanonVendorID, 0x26B9}: "LBP3000",
}

// KnownModel returns the model name of a known CAPT printer.
func KnownModel(vidpid string) (string, bool) {
	id, ok := ParseUSBID(vidpid)
	if !ok {
		return "", false
	}
	model, ok := knownModels[id]
	return model, ok
}
