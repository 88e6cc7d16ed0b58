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

//go:build !linux

// Package usblp talks to CAPT printers through the Linux usblp driver.
// On other systems every open fails with capt.ErrNotSupported.
package usblp

import (
	"fmt"

	"github.com/ZaparooProject/go-capt"
)

// Open always fails on this platform.
func Open(path string) (capt.Transport, error) {
	return nil, fmt.Errorf("usblp %s: %w", path, capt.ErrNotSupported)
}
