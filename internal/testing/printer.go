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

// Package testing provides test utilities including a wire-level virtual
// CAPT printer.
//
// VirtualPrinter parses the command units a host writes and queues replies
// the way a printer behind a full-speed USB link delivers them: a 6-byte
// first transfer followed by 64-byte packets. ReadPacket models bulk reads
// with those boundaries; Read models a serial bridge where the same bytes
// arrive as an unframed stream.
package testing

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-capt/internal/syncutil"
)

// Wire constants. These mirror the values in the capt package to avoid an
// import cycle.
const (
	opCheckStatus         = 0xA0A8
	opCheckExtendedStatus = 0xA0A1

	headerSize      = 4
	firstTransfer   = 6
	PacketSize      = 64
	extendedBodyLen = 40

	statusBusy            = 0x0001
	statusExtendedChanged = 0x0008
)

// DefaultDeviceID is the IEEE 1284 device ID reported by a new printer.
const DefaultDeviceID = "MFG:Canon;MDL:LBP2900;CMD:CAPT;VER:1.0;CLS:PRINTER;DES:Canon LBP2900;"

var (
	// ErrTimeout is returned by ReadPacket when no reply is pending
	ErrTimeout = errors.New("virtual printer: no data")
	// ErrDisconnected is returned after Disconnect
	ErrDisconnected = errors.New("virtual printer: disconnected")
)

// LengthEncoding selects how the printer fills the size field of replies.
type LengthEncoding int

const (
	// LengthWord writes the size as a little-endian integer.
	LengthWord LengthEncoding = iota
	// LengthBCD writes the size as four BCD digits, as some firmware does.
	LengthBCD
)

// Command is one top-level command unit received by the printer. A batch is
// recorded as a single command whose payload holds the inner units.
type Command struct {
	Payload []byte
	Opcode  uint16
}

// ReplyFunc builds the reply body for a command payload. Returning nil means
// the printer sends no reply.
type ReplyFunc func(payload []byte) []byte

// VirtualPrinter simulates a CAPT printer at the wire level.
type VirtualPrinter struct {
	handlers     map[uint16]ReplyFunc
	deviceID     string
	rx           []byte
	packets      [][]byte
	commands     []Command
	extended     [7]uint16
	pages        [4]uint16
	encoding     LengthEncoding
	busyPolls    int
	timeouts     int
	mu           syncutil.Mutex
	status       uint16
	disconnected bool
	dirty        bool
}

// NewVirtualPrinter creates a ready, idle printer.
func NewVirtualPrinter() *VirtualPrinter {
	return &VirtualPrinter{
		handlers: make(map[uint16]ReplyFunc),
		deviceID: DefaultDeviceID,
	}
}

// Write accepts host bytes. Complete command units are handled as soon as
// their declared size has arrived.
func (p *VirtualPrinter) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disconnected {
		return 0, ErrDisconnected
	}

	p.rx = append(p.rx, data...)
	for len(p.rx) >= headerSize {
		opcode := binary.LittleEndian.Uint16(p.rx[0:2])
		size := int(binary.LittleEndian.Uint16(p.rx[2:4]))
		if size < headerSize {
			// out of sync; a real printer would wait for a reset
			p.rx = p.rx[:0]
			break
		}
		if len(p.rx) < size {
			break
		}
		payload := append([]byte(nil), p.rx[headerSize:size]...)
		p.rx = p.rx[size:]
		p.handle(opcode, payload)
	}
	return len(data), nil
}

func (p *VirtualPrinter) handle(opcode uint16, payload []byte) {
	p.commands = append(p.commands, Command{Opcode: opcode, Payload: payload})

	if fn, ok := p.handlers[opcode]; ok {
		if body := fn(payload); body != nil {
			p.queueReply(opcode, body)
		}
		return
	}

	switch opcode {
	case opCheckStatus:
		p.queueReply(opcode, p.basicStatus())
	case opCheckExtendedStatus:
		p.queueReply(opcode, p.extendedStatus())
	}
}

func (p *VirtualPrinter) basicStatus() []byte {
	word := p.status &^ statusBusy
	if p.dirty {
		word |= statusExtendedChanged
	}
	if p.busyPolls > 0 {
		p.busyPolls--
		word |= statusBusy
	}
	return binary.LittleEndian.AppendUint16(nil, word)
}

func (p *VirtualPrinter) extendedStatus() []byte {
	p.dirty = false
	body := make([]byte, extendedBodyLen)
	put := func(off int, v uint16) { binary.LittleEndian.PutUint16(body[off:], v) }

	put(0, p.status&^statusBusy)
	put(8, p.extended[1])
	put(10, p.extended[2])
	put(12, p.extended[3])
	put(14, p.pages[0])
	put(16, p.pages[1])
	put(18, p.pages[2])
	put(20, p.pages[3])
	put(24, p.extended[4])
	put(30, p.extended[5])
	put(38, p.extended[6])
	return body
}

// queueReply frames body and splits it into transfers. Caller holds mu.
func (p *VirtualPrinter) queueReply(opcode uint16, body []byte) {
	total := headerSize + len(body)
	reply := make([]byte, 0, total)
	reply = binary.LittleEndian.AppendUint16(reply, opcode)
	if p.encoding == LengthBCD {
		reply = binary.LittleEndian.AppendUint16(reply, encodeBCD(total))
	} else {
		reply = binary.LittleEndian.AppendUint16(reply, uint16(total))
	}
	reply = append(reply, body...)

	first := min(firstTransfer, len(reply))
	p.packets = append(p.packets, reply[:first])
	for rest := reply[first:]; len(rest) > 0; {
		n := min(PacketSize, len(rest))
		p.packets = append(p.packets, rest[:n])
		rest = rest[n:]
	}
}

func encodeBCD(v int) uint16 {
	var out uint16
	for shift := 0; shift < 16; shift += 4 {
		out |= uint16(v%10) << shift
		v /= 10
	}
	return out
}

// ReadPacket returns the next transfer, or as much of it as fits in buf.
// An unread tail stays queued as the front of the next transfer.
func (p *VirtualPrinter) ReadPacket(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disconnected {
		return 0, ErrDisconnected
	}
	if p.timeouts > 0 {
		p.timeouts--
		return 0, ErrTimeout
	}
	if len(p.packets) == 0 {
		return 0, ErrTimeout
	}

	pkt := p.packets[0]
	n := copy(buf, pkt)
	if n < len(pkt) {
		p.packets[0] = pkt[n:]
	} else {
		p.packets = p.packets[1:]
	}
	return n, nil
}

// Read returns pending reply bytes as an unframed stream. It returns 0, nil
// when nothing is pending, like a serial port whose read timeout expired.
func (p *VirtualPrinter) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disconnected {
		return 0, ErrDisconnected
	}
	if p.timeouts > 0 {
		p.timeouts--
		return 0, nil
	}

	total := 0
	for total < len(buf) && len(p.packets) > 0 {
		pkt := p.packets[0]
		n := copy(buf[total:], pkt)
		total += n
		if n < len(pkt) {
			p.packets[0] = pkt[n:]
		} else {
			p.packets = p.packets[1:]
		}
	}
	return total, nil
}

// Handle installs a reply builder for opcode, replacing any built-in reply.
func (p *VirtualPrinter) Handle(opcode uint16, fn ReplyFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[opcode] = fn
}

// SetDeviceID sets the IEEE 1284 device ID string.
func (p *VirtualPrinter) SetDeviceID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deviceID = id
}

// DeviceID returns the device ID as the GET_DEVICE_ID request delivers it:
// a big-endian length that counts itself, followed by the string.
func (p *VirtualPrinter) DeviceID() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := binary.BigEndian.AppendUint16(nil, uint16(len(p.deviceID)+2))
	return append(out, p.deviceID...)
}

// SetStatus sets status word 0. The busy bit is driven by SetBusyPolls.
func (p *VirtualPrinter) SetStatus(word uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = word
}

// SetExtendedWord sets one of the extended status words 1 to 6. The next
// basic status then flags the extended status as changed.
func (p *VirtualPrinter) SetExtendedWord(index int, word uint16) error {
	if index < 1 || index >= len(p.extended) {
		return fmt.Errorf("extended status word %d out of range", index)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extended[index] = word
	p.dirty = true
	return nil
}

// SetPages sets the page counters reported in the extended status.
func (p *VirtualPrinter) SetPages(decoding, printing, out, completed uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages = [4]uint16{decoding, printing, out, completed}
	p.dirty = true
}

// SetBusyPolls makes the next n basic status replies report busy.
func (p *VirtualPrinter) SetBusyPolls(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busyPolls = n
}

// InjectTimeouts makes the next n reads return no data even when a reply
// is pending.
func (p *VirtualPrinter) InjectTimeouts(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeouts = n
}

// SetLengthEncoding selects the size field encoding of later replies.
func (p *VirtualPrinter) SetLengthEncoding(enc LengthEncoding) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.encoding = enc
}

// Commands returns a copy of the commands received so far.
func (p *VirtualPrinter) Commands() []Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Command(nil), p.commands...)
}

// Pending returns the number of reply bytes not yet read.
func (p *VirtualPrinter) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, pkt := range p.packets {
		n += len(pkt)
	}
	return n
}

// Disconnect makes every later read and write fail, like an unplugged cable.
func (p *VirtualPrinter) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = true
}

// Reset returns the printer to its power-on state. Handlers and the device
// ID are kept.
func (p *VirtualPrinter) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rx = nil
	p.packets = nil
	p.commands = nil
	p.extended = [7]uint16{}
	p.pages = [4]uint16{}
	p.status = 0
	p.busyPolls = 0
	p.timeouts = 0
	p.disconnected = false
	p.dirty = false
}
