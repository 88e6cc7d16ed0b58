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


package testing

import (
	"fmt"
	"io"
	"math/rand/v2"
	"time"
)

// BridgeChip is the USB-serial converter between the host and a printer's
// serial port. A chip forwards bytes to the host in packets of its own
// size, so one printer reply can reach the host split at odd offsets.
type BridgeChip int

const (
	// ChipDirect passes bytes through as the printer sends them.
	ChipDirect BridgeChip = iota
	// ChipCDC is a CDC-ACM converter with 64 byte bulk packets.
	ChipCDC
	// ChipFTDI spends two bytes of every 64 byte packet on modem status.
	ChipFTDI
	// ChipCH340 forwards 32 byte packets.
	ChipCH340
)

// PacketData is how many data bytes the chip carries per packet, or 0 when
// reads are not split at packet boundaries.
func (c BridgeChip) PacketData() int {
	switch c {
	case ChipCDC:
		return PacketSize
	case ChipFTDI:
		return PacketSize - 2
	case ChipCH340:
		return PacketSize / 2
	default:
		return 0
	}
}

func (c BridgeChip) String() string {
	switch c {
	case ChipDirect:
		return "direct"
	case ChipCDC:
		return "cdc-acm"
	case ChipFTDI:
		return "ftdi"
	case ChipCH340:
		return "ch340"
	default:
		return fmt.Sprintf("BridgeChip(%d)", int(c))
	}
}

// BridgeConfig describes how a SerialBridge mangles the read side.
type BridgeConfig struct {
	// Latency is the upper bound of the random delay before each read.
	Latency time.Duration
	// Stall is how long the bridge goes quiet once StallAfter bytes of a
	// reply have been delivered.
	Stall      time.Duration
	StallAfter int
	Seed       uint64
	Chip       BridgeChip
	// Fragment hands out a random share of what is available.
	Fragment bool
}

// DefaultBridgeConfig is an FTDI converter with fragmented, slightly late
// reads.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Chip:     ChipFTDI,
		Latency:  5 * time.Millisecond,
		Fragment: true,
	}
}

// SerialBridge sits between a serial transport and a printer simulator and
// reproduces what a USB-serial converter does to replies. Writes reach the
// printer untouched. Bytes pulled from the printer are buffered, so no
// amount of splitting loses or reorders them.
type SerialBridge struct {
	printer   io.ReadWriter
	rng       *rand.Rand
	pending   []byte
	config    BridgeConfig
	burst     int // bytes handed out since the printer last produced data
	delivered int // bytes handed out since the stall was armed
	stalled   bool
}

// NewSerialBridge puts a bridge in front of printer. A zero Seed picks a
// random one.
func NewSerialBridge(printer io.ReadWriter, config BridgeConfig) *SerialBridge {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // simulation only
	}
	return &SerialBridge{
		printer: printer,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0x43415054)), //nolint:gosec // simulation only
	}
}

func (b *SerialBridge) Write(data []byte) (int, error) {
	return b.printer.Write(data) //nolint:wrapcheck // pass-through
}

// Read returns buffered printer output shaped by the bridge configuration.
// It returns 0 with a nil error when the printer has nothing to send,
// like a serial port whose read timeout expired.
func (b *SerialBridge) Read(buf []byte) (int, error) {
	if b.config.Latency > 0 {
		time.Sleep(time.Duration(b.rng.Int64N(int64(b.config.Latency) + 1)))
	}

	if len(b.pending) == 0 {
		if err := b.fill(); err != nil {
			return 0, err
		}
		if len(b.pending) == 0 {
			return 0, nil
		}
	}

	n := b.allowance(min(len(b.pending), len(buf)))

	copy(buf, b.pending[:n])
	b.pending = b.pending[n:]
	b.burst += n
	b.delivered += n
	return n, nil
}

func (b *SerialBridge) fill() error {
	chunk := make([]byte, 1024)
	n, err := b.printer.Read(chunk)
	if err != nil {
		return err //nolint:wrapcheck // pass-through
	}
	if n > 0 {
		b.pending = append(b.pending, chunk[:n]...)
		b.burst = 0
	}
	return nil
}

// allowance trims n to what the bridge would hand out on this read.
func (b *SerialBridge) allowance(n int) int {
	if b.config.StallAfter > 0 && !b.stalled {
		if b.delivered >= b.config.StallAfter {
			b.stalled = true
			time.Sleep(b.config.Stall)
		} else {
			n = min(n, b.config.StallAfter-b.delivered)
		}
	}

	if size := b.config.Chip.PacketData(); size > 0 {
		n = min(n, size-b.burst%size)
	}

	if b.config.Fragment && n > 1 {
		n = 1 + b.rng.IntN(n)
	}
	return n
}

// Rearm makes the bridge stall again after the next StallAfter bytes.
func (b *SerialBridge) Rearm() {
	b.delivered = 0
	b.stalled = false
}

// Discard drops printer output the bridge has buffered but not delivered,
// as a port flush would.
func (b *SerialBridge) Discard() {
	b.pending = b.pending[:0]
	b.burst = 0
}
