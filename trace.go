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

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// WireEvent is what happened on the wire during a transaction
type WireEvent uint8

const (
	// WireSent is a chunk of the command written to the printer
	WireSent WireEvent = iota
	// WireReceived is a bulk read that returned data
	WireReceived
	// WireTimeout is a bulk read that returned nothing in time
	WireTimeout
)

func (e WireEvent) String() string {
	switch e {
	case WireSent:
		return "sent"
	case WireReceived:
		return "received"
	case WireTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("WireEvent(%d)", int(e))
	}
}

// WireRecord is one entry of a transaction trace. Wait is the read
// timeout that expired for WireTimeout records.
type WireRecord struct {
	At    time.Time
	Data  []byte
	Wait  time.Duration
	Event WireEvent
}

func (r WireRecord) String() string {
	switch r.Event {
	case WireSent:
		return "> " + formatHexBytes(r.Data)
	case WireReceived:
		return "< " + formatHexBytes(r.Data)
	default:
		return fmt.Sprintf("! no reply within %d msec", r.Wait.Milliseconds())
	}
}

// TransactionError carries the last wire records of the transaction that
// failed. It wraps the failure, so errors.Is and errors.As see through it.
//
//	if tx := capt.TransactionTrace(err); tx != nil {
//		log.Print(tx.Dump())
//	}
type TransactionError struct {
	Err       error
	Transport string
	Records   []WireRecord
	Opcode    uint16
}

func (e *TransactionError) Error() string {
	return e.Err.Error()
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// Dump renders the records one per line, oldest first.
func (e *TransactionError) Dump() string {
	if len(e.Records) == 0 {
		return fmt.Sprintf("[%s] %04X: nothing on the wire", e.Transport, e.Opcode)
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s] %04X: %d wire records\n", e.Transport, e.Opcode, len(e.Records))
	for _, r := range e.Records {
		_, _ = fmt.Fprintf(&sb, "  %s\n", r)
	}
	return sb.String()
}

// TransactionTrace returns the wire trace attached to err, or nil.
func TransactionTrace(err error) *TransactionError {
	var tx *TransactionError
	if errors.As(err, &tx) {
		return tx
	}
	return nil
}

const hexDumpLimit = 32

func formatHexBytes(data []byte) string {
	switch {
	case len(data) == 0:
		return "(empty)"
	case len(data) > hexDumpLimit:
		return fmt.Sprintf("% X ... (%d bytes total)", data[:hexDumpLimit], len(data))
	default:
		return fmt.Sprintf("% X", data)
	}
}

// wireRecorder keeps the most recent records of the current transaction
// in a ring. It is only touched with the session I/O lock held.
type wireRecorder struct {
	transport string
	ring      []WireRecord
	next      int
	full      bool
	opcode    uint16
}

func newWireRecorder(transport string, size int) *wireRecorder {
	if size <= 0 {
		size = 16
	}
	return &wireRecorder{transport: transport, ring: make([]WireRecord, size)}
}

// begin starts a new transaction and forgets the previous one
func (w *wireRecorder) begin(opcode uint16) {
	w.opcode = opcode
	w.next = 0
	w.full = false
}

func (w *wireRecorder) sent(data []byte) {
	w.add(WireRecord{Event: WireSent, Data: data})
}

func (w *wireRecorder) received(data []byte) {
	w.add(WireRecord{Event: WireReceived, Data: data})
}

func (w *wireRecorder) timedOut(wait time.Duration) {
	w.add(WireRecord{Event: WireTimeout, Wait: wait})
}

func (w *wireRecorder) add(r WireRecord) {
	r.At = time.Now()
	r.Data = append([]byte(nil), r.Data...)
	w.ring[w.next] = r
	w.next = (w.next + 1) % len(w.ring)
	if w.next == 0 {
		w.full = true
	}
}

func (w *wireRecorder) records() []WireRecord {
	if !w.full {
		return append([]WireRecord(nil), w.ring[:w.next]...)
	}
	out := make([]WireRecord, 0, len(w.ring))
	out = append(out, w.ring[w.next:]...)
	return append(out, w.ring[:w.next]...)
}

// wrap attaches the records so far to err. A nil err stays nil.
func (w *wireRecorder) wrap(err error) error {
	if err == nil {
		return nil
	}
	return &TransactionError{
		Err:       err,
		Transport: w.transport,
		Opcode:    w.opcode,
		Records:   w.records(),
	}
}
