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

package capt

// CAPT status query opcodes. Other opcodes are built by the printing layer
// and pass through the session untouched.
const (
	CmdCheckStatus         uint16 = 0xA0A8
	CmdCheckExtendedStatus uint16 = 0xA0A1
)

// Flag addresses one bit of a status word.
type Flag struct {
	Word int
	Mask uint16
}

// Status flags used by the session itself
var (
	// FlagBusy is set while the printer cannot accept a new command.
	FlagBusy = Flag{Word: 0, Mask: 0x0001}
	// FlagExtendedStatusChanged is set when the extended status record has
	// new content worth fetching.
	FlagExtendedStatusChanged = Flag{Word: 0, Mask: 0x0008}
)

// IEEE 1284 device ID request on the printer class interface
const (
	requestTypeDeviceID = 0xA1 // device-to-host, class, interface
	requestGetDeviceID  = 0x00
	deviceIDBufferSize  = 1023
)
