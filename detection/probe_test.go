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

package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	capt "github.com/ZaparooProject/go-capt"
)

const testDeviceID = "MFG:Canon;MDL:LBP2900;CMD:CAPT;VER:1.0;CLS:PRINTER;DES:Canon LBP2900;"

func rawDeviceID(id string) []byte {
	n := len(id) + 2
	return append([]byte{byte(n >> 8), byte(n)}, id...)
}

func mockFactory(mock *capt.MockTransport) capt.TransportFactory {
	return func(string) (capt.Transport, error) {
		return mock, nil
	}
}

// idle basic status reply: opcode A0A8, size 6, status word 0
var idleStatusReply = []byte{0xA8, 0xA0, 0x06, 0x00, 0x00, 0x00}

func TestProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		setup      func(*capt.MockTransport)
		wantErr    error
		name       string
		mode       Mode
		confidence Confidence
		writes     int
		hasStatus  bool
	}{
		{
			name: "safe reads device ID only",
			mode: Safe,
			setup: func(m *capt.MockTransport) {
				m.SetControlReply(rawDeviceID(testDeviceID), nil)
			},
			confidence: Medium,
		},
		{
			name: "full also queries status",
			mode: Full,
			setup: func(m *capt.MockTransport) {
				m.SetControlReply(rawDeviceID(testDeviceID), nil)
				m.QueueData(idleStatusReply)
			},
			confidence: High,
			writes:     1,
			hasStatus:  true,
		},
		{
			name: "other command set",
			mode: Safe,
			setup: func(m *capt.MockTransport) {
				m.SetControlReply(rawDeviceID("MFG:Canon;MDL:iR1020;CMD:UFR II;"), nil)
			},
			wantErr: ErrNotCAPT,
		},
		{
			name: "no device ID support falls back to status",
			mode: Safe,
			setup: func(m *capt.MockTransport) {
				m.SetControlReply(nil, capt.ErrNotSupported)
				m.QueueData(idleStatusReply)
			},
			confidence: High,
			writes:     1,
			hasStatus:  true,
		},
		{
			name: "silent printer",
			mode: Full,
			setup: func(m *capt.MockTransport) {
				m.SetControlReply(rawDeviceID(testDeviceID), nil)
			},
			wantErr: capt.ErrTransportTimeout,
			writes:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := capt.NewMockTransport()
			tt.setup(mock)

			result, err := Probe(context.Background(), mockFactory(mock), "/dev/usb/lp0", tt.mode, 100*time.Millisecond)
			assert.Len(t, mock.Writes(), tt.writes)
			assert.Equal(t, 1, mock.CloseCount(), "probe releases the printer")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.confidence, result.Confidence)
			assert.Equal(t, tt.hasStatus, result.HasStatus)
		})
	}
}

func TestProbe_Passive(t *testing.T) {
	t.Parallel()

	opened := false
	factory := func(string) (capt.Transport, error) {
		opened = true
		return capt.NewMockTransport(), nil
	}

	result, err := Probe(context.Background(), factory, "/dev/usb/lp0", Passive, time.Second)
	require.NoError(t, err)
	assert.False(t, opened, "passive mode never opens the device")
	assert.Equal(t, Low, result.Confidence)
}

func TestProbe_OpenFailure(t *testing.T) {
	t.Parallel()

	openErr := errors.New("permission denied")
	factory := func(string) (capt.Transport, error) { return nil, openErr }

	_, err := Probe(context.Background(), factory, "/dev/usb/lp0", Safe, time.Second)
	require.ErrorIs(t, err, openErr)
	assert.Contains(t, err.Error(), "/dev/usb/lp0")
}

func TestProbeResult_Metadata(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ProbeResult{}.Metadata())

	result := ProbeResult{DeviceID: capt.ParseDeviceID(testDeviceID), HasStatus: true}
	meta := result.Metadata()
	assert.Equal(t, testDeviceID, meta[MetaDeviceID])
	assert.Equal(t, result.Status.String(), meta[MetaStatus])
}

func TestProbeConfig(t *testing.T) {
	t.Parallel()

	config := probeConfig(0)
	require.NoError(t, config.Validate())
	assert.Equal(t, defaultProbeTimeout, config.IdentifyTimeout)
	assert.Equal(t, 2, config.Receive.MaxAttempts)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	printers := map[string]*capt.MockTransport{}
	newPrinter := func(path string, id string, err error) {
		mock := capt.NewMockTransport()
		mock.SetControlReply(rawDeviceID(id), err)
		printers[path] = mock
	}
	newPrinter("/dev/usb/lp0", testDeviceID, nil)
	newPrinter("/dev/usb/lp1", "MFG:Canon;MDL:iR1020;CMD:UFR II;", nil)
	newPrinter("/dev/usb/lp2", "", errors.New("pipe stall"))
	newPrinter("/dev/usb/lp3", "", errors.New("pipe stall"))

	factory := func(path string) (capt.Transport, error) {
		return printers[path], nil
	}

	candidates := []Candidate{
		{Path: "/dev/usb/lp0", Metadata: map[string]string{MetaVIDPID: "04A9:2676"}, Known: true},
		{Path: "/dev/usb/lp1", Metadata: map[string]string{MetaVIDPID: "04A9:26DA"}},
		{Path: "/dev/usb/lp2", Metadata: map[string]string{MetaVIDPID: "04A9:26B9"}, Known: true},
		{Path: "/dev/usb/lp3", Metadata: map[string]string{MetaVIDPID: "04A9:1111"}},
		{Path: "/dev/usb/lp4", Metadata: map[string]string{MetaVIDPID: "04A9:2222"}},
		{Path: "/dev/usb/lp5", Metadata: map[string]string{MetaVIDPID: "04A9:3333"}},
	}

	t.Run("passive", func(t *testing.T) {
		t.Parallel()

		opts := &Options{Mode: Passive, IgnorePaths: []string{"/dev/usb/lp4"}, Blocklist: []string{"04A9:3333"}}
		devices := Resolve(context.Background(), "usblp", candidates, factory, opts)
		require.Len(t, devices, 4)
		assert.Equal(t, Medium, devices[0].Confidence)
		assert.Equal(t, Low, devices[1].Confidence)
		assert.Equal(t, "04A9:2676", devices[0].Metadata[MetaVIDPID])
	})

	t.Run("safe", func(t *testing.T) {
		t.Parallel()

		opts := &Options{Mode: Safe, ProbeTimeout: 100 * time.Millisecond}
		devices := Resolve(context.Background(), "usblp", candidates[:4], factory, opts)
		require.Len(t, devices, 2)

		assert.Equal(t, "/dev/usb/lp0", devices[0].Path)
		assert.Equal(t, "Canon LBP2900", devices[0].Name)
		assert.Equal(t, Medium, devices[0].Confidence)
		assert.Equal(t, testDeviceID, devices[0].Metadata[MetaDeviceID])

		assert.Equal(t, "/dev/usb/lp2", devices[1].Path, "known model kept when it does not answer")
		assert.Equal(t, Low, devices[1].Confidence)
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Empty(t, Resolve(ctx, "usblp", candidates, factory, &Options{Mode: Passive}))
	})
}
