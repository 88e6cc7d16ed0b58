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
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "bare timeout", err: ErrTransportTimeout, want: true},
		{name: "wrapped timeout", err: fmt.Errorf("receive: %w", ErrTransportTimeout), want: true},
		{name: "timeout transport error", err: NewTimeoutError("receive", "usb"), want: true},
		{
			name: "transient transport error",
			err:  NewTransportError("send", "usb", errors.New("busy"), ErrorTypeTransient),
			want: true,
		},
		{
			name: "permanent transport error",
			err:  NewTransportError("send", "usb", errors.New("gone"), ErrorTypePermanent),
			want: false,
		},
		{
			name: "protocol error wrapping timeout",
			err:  &ProtocolError{Op: "receive", Err: ErrTransportTimeout},
			want: false,
		},
		{name: "overflow", err: ErrBufferOverflow, want: false},
		{name: "plain error", err: errors.New("other"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "timeout", err: ErrTransportTimeout, want: false},
		{name: "timeout transport error", err: NewTimeoutError("receive", "usb"), want: false},
		{
			name: "permanent transport error",
			err:  NewTransportError("send", "usb", errors.New("stall"), ErrorTypePermanent),
			want: true,
		},
		{name: "protocol error", err: &ProtocolError{Op: "receive", Err: ErrProtocolMismatch}, want: true},
		{name: "overflow", err: fmt.Errorf("frame: %w", ErrBufferOverflow), want: true},
		{name: "closed transport", err: ErrTransportClosed, want: true},
		{name: "closed session", err: ErrSessionClosed, want: true},
		{name: "device not found", err: ErrDeviceNotFound, want: true},
		{name: "EOF", err: io.EOF, want: true},
		{name: "ENODEV", err: fmt.Errorf("read: %w", syscall.ENODEV), want: true},
		{name: "plain error", err: errors.New("other"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrorTypeTransient, GetErrorType(nil))
	assert.Equal(t, ErrorTypeTimeout, GetErrorType(ErrTransportTimeout))
	assert.Equal(t, ErrorTypePermanent, GetErrorType(ErrSessionClosed))
	assert.Equal(t, ErrorTypeTransient, GetErrorType(errors.New("other")))
	assert.Equal(t, ErrorTypePermanent,
		GetErrorType(NewTransportError("send", "", errors.New("x"), ErrorTypePermanent)))
}

func TestErrorType_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "transient", ErrorTypeTransient.String())
	assert.Equal(t, "permanent", ErrorTypePermanent.String())
	assert.Equal(t, "timeout", ErrorTypeTimeout.String())
	assert.Equal(t, "ErrorType(9)", ErrorType(9).String())
}

func TestTransportError_Error(t *testing.T) {
	t.Parallel()

	withPort := NewTransportError("send", "/dev/usb/lp0", ErrShortWrite, ErrorTypePermanent)
	assert.Equal(t, "send /dev/usb/lp0: short write", withPort.Error())
	assert.False(t, withPort.Retryable)
	assert.ErrorIs(t, withPort, ErrShortWrite)

	noPort := NewTimeoutError("receive", "")
	assert.Equal(t, "receive: transport timeout", noPort.Error())
	assert.True(t, noPort.Retryable)
}

func TestProtocolError_Error(t *testing.T) {
	t.Parallel()

	err := &ProtocolError{
		Op:       "receive",
		Opcode:   0xA0A8,
		Err:      ErrBadReplySize,
		Raw:      []byte{0xA8, 0xA0, 0x0A, 0x00},
		Expected: 10,
		Got:      8,
	}
	assert.Equal(t,
		"receive A0A8: reply size cannot be resolved (expected 10, got 8) [A8 A0 0A 00]",
		err.Error())
	assert.ErrorIs(t, err, ErrBadReplySize)

	bare := &ProtocolError{Op: "receive", Opcode: 0x1234, Err: ErrProtocolMismatch}
	assert.Equal(t, "receive 1234: reply opcode does not match request", bare.Error())
}

func TestIsDeviceGoneError(t *testing.T) {
	t.Parallel()

	assert.True(t, isDeviceGoneError(syscall.EIO))
	assert.True(t, isDeviceGoneError(fmt.Errorf("write: %w", syscall.ENXIO)))
	assert.False(t, isDeviceGoneError(syscall.EAGAIN))
	assert.False(t, isDeviceGoneError(nil))
	assert.False(t, isDeviceGoneError(errors.New("gone")))
}
