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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPathIgnored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		ignore []string
		want   bool
	}{
		{name: "nothing ignored", path: "/dev/usb/lp0"},
		{name: "empty path", path: "", ignore: []string{"/dev/usb/lp0"}},
		{name: "usblp node", path: "/dev/usb/lp0", ignore: []string{"/dev/usb/lp0"}, want: true},
		{name: "other usblp node", path: "/dev/usb/lp1", ignore: []string{"/dev/usb/lp0"}},
		{name: "com port", path: "COM2", ignore: []string{"COM2"}, want: true},
		{name: "case folded", path: "com2", ignore: []string{"COM2"}, want: true},
		{name: "upper case unix", path: "/dev/usb/lp0", ignore: []string{"/DEV/USB/LP0"}, want: true},
		{
			name:   "usb path with serial",
			path:   "usb:04A9:2676:0000A1B2C3",
			ignore: []string{"usb:04a9:2676:0000a1b2c3"},
			want:   true,
		},
		{name: "uncleaned path", path: "/dev/usb/../usb/lp0", ignore: []string{"/dev/usb/lp0"}, want: true},
		{name: "blank entries skipped", path: "/dev/usb/lp0", ignore: []string{"", "/dev/usb/lp0"}, want: true},
		{
			name:   "several entries",
			path:   "/dev/ttyUSB0",
			ignore: []string{"/dev/usb/lp0", "/dev/ttyUSB0", "COM2"},
			want:   true,
		},
		{name: "several entries no match", path: "/dev/usb/lp2", ignore: []string{"/dev/usb/lp0", "COM2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsPathIgnored(tt.path, tt.ignore))
		})
	}
}

func TestIsBlocked_ScannerNeverProbed(t *testing.T) {
	t.Parallel()

	blocklist := DefaultBlocklist()
	assert.True(t, IsBlocked("04a9:2759", blocklist))
	assert.True(t, IsBlocked("PRODUCT=4a9/2759/100", blocklist))
	assert.False(t, IsBlocked("04A9:2676", blocklist))
	assert.False(t, IsBlocked("04A9:2676", []string{"not-an-id", "04A9:"}))
}
