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
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// DefaultBlocklist returns USB devices that must never be probed. Entries
// are VID:PID in hex. A PID of "*" matches every product of the vendor.
func DefaultBlocklist() []string {
	return []string{
		// Canon multifunction scanners enumerate as printer class but
		// stall the bulk pipe when sent a status request.
		"04A9:2759",
	}
}

// IsBlocked reports whether vidpid matches an entry of blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	id, ok := ParseUSBID(vidpid)
	if !ok {
		return false
	}
	return slices.ContainsFunc(blocklist, func(rule string) bool {
		if vendor, wildcard := strings.CutSuffix(strings.TrimSpace(rule), ":*"); wildcard {
			v, err := strconv.ParseUint(vendor, 16, 16)
			return err == nil && uint16(v) == id.Vendor
		}
		blocked, ok := ParseUSBID(rule)
		return ok && blocked == id
	})
}

// IsPathIgnored reports whether devicePath names one of ignorePaths.
// Paths compare cleaned and case-folded, so COM2 matches com2.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	want := canonicalPath(devicePath)
	return slices.ContainsFunc(ignorePaths, func(p string) bool {
		return p != "" && canonicalPath(p) == want
	})
}

func canonicalPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
