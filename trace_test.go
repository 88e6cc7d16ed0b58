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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireRecorder_KeepsNewest(t *testing.T) {
	t.Parallel()

	w := newWireRecorder("usb", 3)
	w.begin(CmdCheckStatus)
	w.sent([]byte{0xA8, 0xA0, 0x04, 0x00})
	w.timedOut(time.Second)
	w.received([]byte{0xA8, 0xA0})
	w.received([]byte{0x06, 0x00})

	tx := TransactionTrace(fmt.Errorf("outer: %w", w.wrap(ErrTransportTimeout)))
	require.NotNil(t, tx)
	require.ErrorIs(t, tx, ErrTransportTimeout)
	assert.Equal(t, "usb", tx.Transport)
	assert.Equal(t, CmdCheckStatus, tx.Opcode)

	require.Len(t, tx.Records, 3, "oldest record is dropped")
	assert.Equal(t, WireTimeout, tx.Records[0].Event)
	assert.Equal(t, []byte{0xA8, 0xA0}, tx.Records[1].Data)
	assert.Equal(t, []byte{0x06, 0x00}, tx.Records[2].Data)
}

func TestWireRecorder_BeginForgetsPrevious(t *testing.T) {
	t.Parallel()

	w := newWireRecorder("mock", 0)
	w.begin(0x1234)
	w.sent([]byte{1})
	w.begin(CmdCheckExtendedStatus)

	assert.Nil(t, w.wrap(nil))

	tx := TransactionTrace(w.wrap(ErrSessionClosed))
	require.NotNil(t, tx)
	assert.Empty(t, tx.Records)
	assert.Equal(t, "[mock] A0A1: nothing on the wire", tx.Dump())
	assert.Equal(t, ErrSessionClosed.Error(), tx.Error())
}

func TestWireRecorder_CopiesData(t *testing.T) {
	t.Parallel()

	w := newWireRecorder("mock", 4)
	w.begin(0x1234)
	data := []byte{0xAA, 0xBB}
	w.sent(data)
	data[0] = 0x00

	tx := TransactionTrace(w.wrap(errors.New("x")))
	require.NotNil(t, tx)
	assert.Equal(t, []byte{0xAA, 0xBB}, tx.Records[0].Data)
}

func TestTransactionError_Dump(t *testing.T) {
	t.Parallel()

	w := newWireRecorder("usblp", 8)
	w.begin(CmdCheckStatus)
	w.sent([]byte{0xA8, 0xA0, 0x04, 0x00})
	w.timedOut(1500 * time.Millisecond)
	w.received([]byte{0xA8, 0xA0, 0x06, 0x00, 0x00, 0x00})

	dump := TransactionTrace(w.wrap(ErrTransportTimeout)).Dump()
	assert.Equal(t, strings.Join([]string{
		"[usblp] A0A8: 3 wire records",
		"  > A8 A0 04 00",
		"  ! no reply within 1500 msec",
		"  < A8 A0 06 00 00 00",
		"",
	}, "\n"), dump)
}

func TestWireEvent_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sent", WireSent.String())
	assert.Equal(t, "received", WireReceived.String())
	assert.Equal(t, "timeout", WireTimeout.String())
	assert.Equal(t, "WireEvent(9)", WireEvent(9).String())
	assert.Nil(t, TransactionTrace(errors.New("untraced")))
}

func TestFormatHexBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "(empty)", formatHexBytes(nil))
	assert.Equal(t, "01 AB", formatHexBytes([]byte{0x01, 0xAB}))

	long := formatHexBytes(make([]byte, 40))
	assert.True(t, strings.HasSuffix(long, " ... (40 bytes total)"))
	assert.Equal(t, 32*3-1, len(strings.TrimSuffix(long, " ... (40 bytes total)")))
}
