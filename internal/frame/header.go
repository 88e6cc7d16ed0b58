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

// Lo returns the low byte of v.
func Lo(v uint16) byte { return byte(v) }

// Hi returns the high byte of v.
func Hi(v uint16) byte { return byte(v >> 8) }

// Word decodes a little-endian 16-bit value.
func Word(lo, hi byte) uint16 {
	return uint16(lo) | uint16(hi)<<8
}

// BCD decodes the same two bytes as four decimal digits, one per nibble,
// most significant digit in the high nibble of hi.
func BCD(lo, hi byte) int {
	return int(hi>>4)*1000 + int(hi&0x0F)*100 + int(lo>>4)*10 + int(lo&0x0F)
}

// Header is the first four bytes of a command unit or reply.
type Header struct {
	Opcode uint16
	SizeLo byte
	SizeHi byte
}

// ParseHeader reads a header from the start of buf. ok is false when buf is
// shorter than HeaderSize.
func ParseHeader(buf []byte) (h Header, ok bool) {
	if len(buf) < HeaderSize {
		return Header{}, false
	}
	return Header{
		Opcode: Word(buf[0], buf[1]),
		SizeLo: buf[2],
		SizeHi: buf[3],
	}, true
}

// WordSize is the size field read as a plain little-endian integer.
func (h Header) WordSize() int {
	return int(Word(h.SizeLo, h.SizeHi))
}

// BCDSize is the size field read as binary-coded decimal.
func (h Header) BCDSize() int {
	return BCD(h.SizeLo, h.SizeHi)
}

// Resolution is the outcome of matching a reply's size field against the
// number of bytes received so far.
type Resolution int

const (
	// ResolvedWord means the plain integer size equals the received length.
	ResolvedWord Resolution = iota
	// ResolvedBCD means the BCD size equals the received length.
	ResolvedBCD
	// NeedMore means the last read ended on a USB packet boundary and the
	// plain size promises more data.
	NeedMore
	// Unresolved means neither encoding can describe what was received.
	Unresolved
)

func (r Resolution) String() string {
	switch r {
	case ResolvedWord:
		return "word"
	case ResolvedBCD:
		return "bcd"
	case NeedMore:
		return "need-more"
	default:
		return "unresolved"
	}
}

// ResolveLength decides whether a reply of received bytes is complete.
// The checks run in a fixed order: plain word, BCD, then the packet
// boundary continuation. When the result is NeedMore, more is the number of
// bytes still promised by the plain size.
func ResolveLength(h Header, received int) (res Resolution, more int) {
	word := h.WordSize()
	if word == received {
		return ResolvedWord, 0
	}
	if h.BCDSize() == received {
		return ResolvedBCD, 0
	}
	// a read ending exactly on a packet boundary may not be the last one
	if word > received && received%USBPacketSize == ReplyMinSize {
		return NeedMore, word - received
	}
	return Unresolved, 0
}
