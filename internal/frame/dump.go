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

package frame

import (
	"fmt"
	"strings"
)

const dumpRowSize = 16

// Dump formats up to limit bytes of data as hex, sixteen bytes per row.
// A negative limit dumps everything.
func Dump(data []byte, limit int) string {
	n := len(data)
	if limit >= 0 && limit < n {
		n = limit
	}

	var sb strings.Builder
	for i := range n {
		if i != 0 {
			if i%dumpRowSize == 0 {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}
		}
		_, _ = fmt.Fprintf(&sb, "%02X", data[i])
	}
	if n < len(data) {
		_, _ = fmt.Fprintf(&sb, "... (%d more)", len(data)-n)
	}
	return sb.String()
}
