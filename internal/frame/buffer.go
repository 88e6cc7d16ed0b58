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
	"errors"
	"fmt"
)

// ErrOverflow is returned when a write or receive would run past the buffer.
// It always indicates a bug in the caller, never a device condition.
var ErrOverflow = errors.New("buffer overflow")

// Buffer holds exactly one outbound or inbound CAPT message.
//
// The backing array never grows. Every write checks the capacity first and
// fails without touching the buffer when it would not fit.
type Buffer struct {
	data [Capacity]byte
	size int
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.size = 0
}

// Len returns the number of bytes currently in use.
func (b *Buffer) Len() int {
	return b.size
}

// Bytes returns the used part of the buffer. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.size]
}

// SetLen moves the cursor after data was placed with ReadSpace.
func (b *Buffer) SetLen(n int) error {
	if n < 0 || n > Capacity {
		return fmt.Errorf("%w: length %d outside [0, %d]", ErrOverflow, n, Capacity)
	}
	b.size = n
	return nil
}

// ReadSpace returns the region [offset, offset+n) for a receive to fill.
func (b *Buffer) ReadSpace(offset, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset+n > Capacity {
		return nil, fmt.Errorf("%w: receive of %d bytes at offset %d", ErrOverflow, n, offset)
	}
	return b.data[offset : offset+n], nil
}

// AppendCommand writes one command unit at the cursor. A nil payload is
// framed exactly like an empty one.
func (b *Buffer) AppendCommand(opcode uint16, payload []byte) error {
	if b.size+HeaderSize+len(payload) > Capacity {
		return fmt.Errorf("%w: command %04X with %d payload bytes at offset %d",
			ErrOverflow, opcode, len(payload), b.size)
	}
	unitLen := len(payload) + HeaderSize
	off := b.size
	b.data[off+0] = Lo(opcode)
	b.data[off+1] = Hi(opcode)
	b.data[off+2] = Lo(uint16(unitLen))
	b.data[off+3] = Hi(uint16(unitLen))
	copy(b.data[off+HeaderSize:], payload)
	b.size += unitLen
	return nil
}

// BeginBatch starts a multi-command message. The outer length field stays
// unset until FinalizeBatchLength.
func (b *Buffer) BeginBatch(opcode uint16) {
	b.data[0] = Lo(opcode)
	b.data[1] = Hi(opcode)
	b.data[2] = 0
	b.data[3] = 0
	b.size = HeaderSize
}

// AddToBatch appends a command unit after the batch header.
func (b *Buffer) AddToBatch(opcode uint16, payload []byte) error {
	return b.AppendCommand(opcode, payload)
}

// FinalizeBatchLength stores the total message size in bytes 2-3.
func (b *Buffer) FinalizeBatchLength() {
	b.data[2] = Lo(uint16(b.size))
	b.data[3] = Hi(uint16(b.size))
}
