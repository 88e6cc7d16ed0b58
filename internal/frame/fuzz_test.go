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
	"bytes"
	"testing"
)

// Run with: go test -fuzz=FuzzAppendCommand -fuzztime=30s ./internal/frame/

// FuzzAppendCommand checks that framing either succeeds with a correct header
// or fails without changing the buffer.
func FuzzAppendCommand(f *testing.F) {
	f.Add(uint16(0xA0A8), []byte{}, 0)
	f.Add(uint16(0x1234), []byte{0x01, 0x02}, 10)
	f.Add(uint16(0xFFFF), bytes.Repeat([]byte{0xFF}, 512), Capacity-100)

	f.Fuzz(func(t *testing.T, opcode uint16, payload []byte, prefill int) {
		if prefill < 0 {
			prefill = -prefill
		}
		prefill %= Capacity + 1

		buf := NewBuffer()
		if err := buf.SetLen(prefill); err != nil {
			t.Fatalf("SetLen(%d): %v", prefill, err)
		}

		err := buf.AppendCommand(opcode, payload)
		fits := prefill+HeaderSize+len(payload) <= Capacity
		if fits != (err == nil) {
			t.Fatalf("prefill=%d payload=%d: fits=%v err=%v", prefill, len(payload), fits, err)
		}
		if err != nil {
			if buf.Len() != prefill {
				t.Fatalf("cursor moved on failure: %d != %d", buf.Len(), prefill)
			}
			return
		}

		h, ok := ParseHeader(buf.Bytes()[prefill:])
		if !ok || h.Opcode != opcode || h.WordSize() != len(payload)+HeaderSize {
			t.Fatalf("bad header %+v for opcode %04X payload %d", h, opcode, len(payload))
		}
		if !bytes.Equal(buf.Bytes()[prefill+HeaderSize:], payload) {
			t.Fatal("payload not preserved")
		}
	})
}

// FuzzResolveLength makes sure resolution never asks for data past the
// buffer or reports a negative remainder.
func FuzzResolveLength(f *testing.F) {
	f.Add(byte(0x0A), byte(0x00), 6)
	f.Add(byte(0x46), byte(0x00), 70)
	f.Add(byte(0xFF), byte(0xFF), 65478)

	f.Fuzz(func(t *testing.T, lo, hi byte, received int) {
		if received < 0 {
			received = -received
		}
		received %= Capacity + 1

		res, more := ResolveLength(Header{SizeLo: lo, SizeHi: hi}, received)
		if res == NeedMore {
			if more <= 0 {
				t.Fatalf("NeedMore with remainder %d", more)
			}
			if received+more > Capacity {
				t.Fatalf("remainder %d at %d exceeds capacity", more, received)
			}
		} else if more != 0 {
			t.Fatalf("%s with remainder %d", res, more)
		}
	})
}
