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

package usb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-capt"
)

func TestParsePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		want    Config
		wantErr bool
	}{
		{name: "empty selects any Canon", path: "", want: DefaultConfig()},
		{name: "scheme only", path: "usb:", want: DefaultConfig()},
		{
			name: "vid and pid",
			path: "04a9:2676",
			want: Config{VendorID: 0x04A9, ProductID: 0x2676, Configuration: 1},
		},
		{
			name: "with serial and scheme",
			path: "usb:04A9:266A:0000A1B2C3",
			want: Config{VendorID: 0x04A9, ProductID: 0x266A, Serial: "0000A1B2C3", Configuration: 1},
		},
		{name: "missing pid", path: "04a9", wantErr: true},
		{name: "bad vid", path: "canon:2676", wantErr: true},
		{name: "bad pid", path: "04a9:xyz", wantErr: true},
		{name: "pid out of range", path: "04a9:12345", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParsePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_Matches(t *testing.T) {
	t.Parallel()

	lbp2900 := &gousb.DeviceDesc{Vendor: 0x04A9, Product: 0x2676}
	other := &gousb.DeviceDesc{Vendor: 0x03F0, Product: 0x2676}

	anyCanon := DefaultConfig()
	assert.True(t, anyCanon.matches(lbp2900))
	assert.False(t, anyCanon.matches(other))

	model := Config{VendorID: 0x04A9, ProductID: 0x2676}
	assert.True(t, model.matches(lbp2900))
	model.ProductID = 0x266A
	assert.False(t, model.matches(lbp2900))
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err     error
		wantIs  error
		name    string
		timeout bool
		fatal   bool
	}{
		{name: "libusb timeout", err: gousb.ErrorTimeout, wantIs: capt.ErrTransportTimeout, timeout: true},
		{name: "transfer timed out", err: gousb.TransferTimedOut, wantIs: capt.ErrTransportTimeout, timeout: true},
		{name: "no device", err: gousb.ErrorNoDevice, wantIs: capt.ErrDeviceNotFound, fatal: true},
		{name: "transfer no device", err: gousb.TransferNoDevice, wantIs: capt.ErrDeviceNotFound, fatal: true},
		{name: "not supported", err: gousb.ErrorNotSupported, wantIs: capt.ErrNotSupported},
		{name: "pipe stall", err: gousb.ErrorPipe, wantIs: gousb.ErrorPipe, fatal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := classifyError("read", "usb:04a9:2676@1.4", tt.err)
			require.ErrorIs(t, err, tt.wantIs)
			assert.Equal(t, tt.timeout, capt.IsTimeout(err))
			assert.Equal(t, tt.fatal, capt.IsFatal(err))
		})
	}
}

func TestClassify_Contexts(t *testing.T) {
	t.Parallel()

	tr := &Transport{name: "usb:test"}

	t.Run("own deadline is a timeout", func(t *testing.T) {
		t.Parallel()

		transfer, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-transfer.Done()

		err := tr.classify(context.Background(), transfer, "read", gousb.TransferCancelled)
		assert.True(t, capt.IsTimeout(err))
	})

	t.Run("caller cancellation wins", func(t *testing.T) {
		t.Parallel()

		parent, cancel := context.WithCancel(context.Background())
		cancel()

		err := tr.classify(parent, parent, "read", gousb.TransferCancelled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, capt.IsTimeout(err))
	})

	t.Run("device error", func(t *testing.T) {
		t.Parallel()

		err := tr.classify(context.Background(), context.Background(), "write", gousb.ErrorIO)
		assert.True(t, capt.IsFatal(err))
		assert.Contains(t, err.Error(), "write usb:test")
	})
}

func TestDeviceName(t *testing.T) {
	t.Parallel()

	desc := &gousb.DeviceDesc{Vendor: 0x04A9, Product: 0x2676, Bus: 1, Address: 4}
	assert.Equal(t, "usb:04a9:2676@1.4", deviceName(desc))
}

func TestTransport_Closed(t *testing.T) {
	t.Parallel()

	tr := &Transport{name: "usb:test"}
	ctx := context.Background()

	assert.False(t, tr.IsConnected())
	assert.Equal(t, capt.TransportUSB, tr.Type())
	assert.Equal(t, "usb:test", tr.String())

	_, err := tr.BulkWrite(ctx, []byte{1}, time.Second)
	require.ErrorIs(t, err, capt.ErrTransportClosed)
	_, err = tr.BulkRead(ctx, make([]byte, 6), time.Second)
	require.ErrorIs(t, err, capt.ErrTransportClosed)
	_, err = tr.ControlTransfer(ctx, 0xA1, 0, 0, 0, make([]byte, 8), time.Second)
	require.ErrorIs(t, err, capt.ErrTransportClosed)
	require.NoError(t, tr.Close())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = tr.ControlTransfer(cancelled, 0xA1, 0, 0, 0, make([]byte, 8), time.Second)
	assert.True(t, errors.Is(err, context.Canceled))
}
