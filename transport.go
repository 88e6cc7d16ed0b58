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
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-capt/internal/syncutil"
)

// Fixed endpoints of the printer interface
const (
	EndpointOut = 0x01 // host to device
	EndpointIn  = 0x82 // device to host
)

// Transport is the bulk/control transfer capability of one claimed printer
// interface. Backends open the interface on the fixed endpoint pair, so the
// transfer methods carry no endpoint argument.
//
// Timeouts must be reported as errors wrapping ErrTransportTimeout; the
// session retries those on receive and treats everything else as fatal.
type Transport interface {
	// BulkWrite writes data to the OUT endpoint and returns the number of
	// bytes the device accepted.
	BulkWrite(ctx context.Context, data []byte, timeout time.Duration) (int, error)

	// BulkRead reads at most len(buf) bytes from the IN endpoint.
	BulkRead(ctx context.Context, buf []byte, timeout time.Duration) (int, error)

	// ControlTransfer performs a control request on the default pipe.
	ControlTransfer(ctx context.Context, requestType, request uint8, value, index uint16,
		buf []byte, timeout time.Duration) (int, error)

	// Close releases the interface, device handle and context
	Close() error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUSB represents a libusb bulk transport.
	TransportUSB TransportType = "usb"
	// TransportUSBLP represents the Linux usblp character device.
	TransportUSBLP TransportType = "usblp"
	// TransportUART represents a serial line bridge.
	TransportUART TransportType = "uart"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// MockRead is one scripted result of MockTransport.BulkRead. A read with Err
// set returns that error; otherwise up to len(buf) bytes of Data are
// returned and any remainder is kept for the next read.
type MockRead struct {
	Err  error
	Data []byte
}

// MockWrite records one BulkWrite call.
type MockWrite struct {
	Data    []byte
	Timeout time.Duration
}

// MockReadCall records the arguments of one BulkRead call.
type MockReadCall struct {
	Size    int
	Timeout time.Duration
}

// MockTransport provides a scripted implementation of Transport for testing
type MockTransport struct {
	writeErr     error
	controlErr   error
	reads        []MockRead
	writes       []MockWrite
	readCalls    []MockReadCall
	controlReply []byte
	writeHook    func(index int)
	failWriteAt  int
	writeLimit   int
	closeCount   int
	mu           syncutil.Mutex
	connected    bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected:   true,
		failWriteAt: -1,
	}
}

// BulkWrite implements Transport
func (m *MockTransport) BulkWrite(ctx context.Context, data []byte, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, ErrTransportClosed
	}

	index := len(m.writes)
	if m.failWriteAt >= 0 && index == m.failWriteAt {
		m.failWriteAt = -1
		return 0, m.writeErr
	}

	n := len(data)
	if m.writeLimit > 0 && n > m.writeLimit {
		n = m.writeLimit
	}
	m.writes = append(m.writes, MockWrite{
		Data:    append([]byte(nil), data[:n]...),
		Timeout: timeout,
	})
	if m.writeHook != nil {
		m.writeHook(index)
	}
	return n, nil
}

// BulkRead implements Transport. An empty script behaves like a device with
// nothing to say: every read times out.
func (m *MockTransport) BulkRead(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, ErrTransportClosed
	}

	m.readCalls = append(m.readCalls, MockReadCall{Size: len(buf), Timeout: timeout})

	if len(m.reads) == 0 {
		return 0, NewTimeoutError("BulkRead", "mock")
	}

	step := &m.reads[0]
	if step.Err != nil {
		err := step.Err
		m.reads = m.reads[1:]
		return 0, err
	}

	n := copy(buf, step.Data)
	step.Data = step.Data[n:]
	if len(step.Data) == 0 {
		m.reads = m.reads[1:]
	}
	return n, nil
}

// ControlTransfer implements Transport
func (m *MockTransport) ControlTransfer(ctx context.Context, _, _ uint8, _, _ uint16,
	buf []byte, _ time.Duration,
) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, ErrTransportClosed
	}
	if m.controlErr != nil {
		return 0, m.controlErr
	}
	return copy(buf, m.controlReply), nil
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.closeCount++
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// QueueRead appends scripted read results
func (m *MockTransport) QueueRead(reads ...MockRead) {
	m.mu.Lock()
	for _, r := range reads {
		r.Data = append([]byte(nil), r.Data...)
		m.reads = append(m.reads, r)
	}
	m.mu.Unlock()
}

// QueueData appends one successful read per chunk
func (m *MockTransport) QueueData(chunks ...[]byte) {
	for _, c := range chunks {
		m.QueueRead(MockRead{Data: c})
	}
}

// QueueTimeouts appends n timed-out reads
func (m *MockTransport) QueueTimeouts(n int) {
	for range n {
		m.QueueRead(MockRead{Err: NewTimeoutError("BulkRead", "mock")})
	}
}

// FailWrite makes the write with the given zero-based index fail with err
func (m *MockTransport) FailWrite(index int, err error) {
	m.mu.Lock()
	m.failWriteAt = index
	m.writeErr = err
	m.mu.Unlock()
}

// OnWrite registers fn to run after each accepted write. fn must not call
// back into the mock.
func (m *MockTransport) OnWrite(fn func(index int)) {
	m.mu.Lock()
	m.writeHook = fn
	m.mu.Unlock()
}

// LimitWrite caps how many bytes a single write accepts (0 = unlimited)
func (m *MockTransport) LimitWrite(n int) {
	m.mu.Lock()
	m.writeLimit = n
	m.mu.Unlock()
}

// SetControlReply configures the control transfer response
func (m *MockTransport) SetControlReply(reply []byte, err error) {
	m.mu.Lock()
	m.controlReply = append([]byte(nil), reply...)
	m.controlErr = err
	m.mu.Unlock()
}

// Writes returns a copy of the recorded writes
func (m *MockTransport) Writes() []MockWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockWrite(nil), m.writes...)
}

// Written returns every byte written, concatenated
func (m *MockTransport) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []byte
	for _, w := range m.writes {
		out = append(out, w.Data...)
	}
	return out
}

// ReadCalls returns a copy of the recorded read calls
func (m *MockTransport) ReadCalls() []MockReadCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockReadCall(nil), m.readCalls...)
}

// PendingReads returns how many scripted reads are left
func (m *MockTransport) PendingReads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reads)
}

// CloseCount returns how many times Close was called
func (m *MockTransport) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

// Reset clears recorded calls and scripted reads and reconnects
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.reads = nil
	m.writes = nil
	m.readCalls = nil
	m.failWriteAt = -1
	m.connected = true
	m.mu.Unlock()
}

// String describes the mock for trace output
func (m *MockTransport) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("mock(writes=%d reads=%d pending=%d)", len(m.writes), len(m.readCalls), len(m.reads))
}
