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

package polling

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	capt "github.com/ZaparooProject/go-capt"
)

func TestNewDefaultRecoverer(t *testing.T) {
	t.Parallel()

	session, _ := newPrinterSession(t)

	t.Run("WithDefaults", func(t *testing.T) {
		t.Parallel()
		r := NewDefaultRecoverer(session, nil, 0, 0)
		assert.NotNil(t, r)
		assert.Equal(t, 3, r.maxAttempts)
		assert.Equal(t, 500*time.Millisecond, r.backoff)
	})

	t.Run("WithCustomValues", func(t *testing.T) {
		t.Parallel()
		r := NewDefaultRecoverer(session, nil, 100*time.Millisecond, 5)
		assert.Equal(t, 5, r.maxAttempts)
		assert.Equal(t, 100*time.Millisecond, r.backoff)
	})
}

func TestDefaultRecoverer_ResyncSuccess(t *testing.T) {
	t.Parallel()

	session, printer := newPrinterSession(t)
	r := NewDefaultRecoverer(session, nil, time.Millisecond, 3)

	require.NoError(t, r.AttemptRecovery(context.Background()))
	assert.Same(t, session, r.Session())
	require.NotEmpty(t, printer.Commands())
	assert.Equal(t, capt.CmdCheckStatus, printer.Commands()[0].Opcode)
}

func TestDefaultRecoverer_ResyncFailsNoReopen(t *testing.T) {
	t.Parallel()

	session, printer := newPrinterSession(t)

	// the first status reply arrives too late and is left on the wire, then
	// the printer stops answering
	var calls atomic.Int32
	printer.Handle(capt.CmdCheckStatus, func([]byte) []byte {
		if calls.Add(1) == 1 {
			return make([]byte, 10)
		}
		return nil
	})
	printer.InjectTimeouts(fastReceive().MaxAttempts)

	r := NewDefaultRecoverer(session, nil, time.Millisecond, 2)

	err := r.AttemptRecovery(context.Background())
	require.Error(t, err)
	assert.True(t, capt.IsTimeout(err))

	// the second attempt drained the stale reply before asking again
	assert.Equal(t, int32(2), calls.Load())
	assert.Zero(t, printer.Pending())
	assert.Same(t, session, r.Session())
}

func TestDefaultRecoverer_ClosedSessionNoReopen(t *testing.T) {
	t.Parallel()

	session, _ := newPrinterSession(t)
	require.NoError(t, session.Close())

	r := NewDefaultRecoverer(session, nil, time.Millisecond, 2)
	assert.ErrorIs(t, r.AttemptRecovery(context.Background()), capt.ErrSessionClosed)
}

func TestDefaultRecoverer_FullReconnectSuccess(t *testing.T) {
	t.Parallel()

	session, printer := newPrinterSession(t)
	newSession, _ := newPrinterSession(t)
	printer.Disconnect()

	reopenCalled := false
	reopenFunc := func(context.Context) (*capt.Session, error) {
		reopenCalled = true
		return newSession, nil
	}

	r := NewDefaultRecoverer(session, reopenFunc, time.Millisecond, 3)

	require.NoError(t, r.AttemptRecovery(context.Background()))
	assert.True(t, reopenCalled)
	assert.Same(t, newSession, r.Session())
	assert.True(t, session.IsClosed(), "the old session is released")
}

func TestDefaultRecoverer_AllAttemptsFail(t *testing.T) {
	t.Parallel()

	session, printer := newPrinterSession(t)
	printer.Disconnect()

	attempts := 0
	reopenErr := errors.New("reopen failed")
	reopenFunc := func(context.Context) (*capt.Session, error) {
		attempts++
		return nil, reopenErr
	}

	r := NewDefaultRecoverer(session, reopenFunc, time.Millisecond, 2)

	err := r.AttemptRecovery(context.Background())
	require.ErrorIs(t, err, reopenErr)
	assert.Equal(t, 2, attempts)
}

func TestDefaultRecoverer_ContextCancellation(t *testing.T) {
	t.Parallel()

	session, _ := newPrinterSession(t)
	require.NoError(t, session.Close())

	r := NewDefaultRecoverer(session, nil, 100*time.Millisecond, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	err := r.AttemptRecovery(ctx)
	require.Error(t, err)
	assert.Equal(t, context.Canceled, err)
}

func TestDefaultRecoverer_ReopenedPrinterMustAnswer(t *testing.T) {
	t.Parallel()

	session, printer := newPrinterSession(t)
	silent, silentPrinter := newPrinterSession(t)
	printer.Disconnect()
	silentPrinter.Disconnect()

	r := NewDefaultRecoverer(session, func(context.Context) (*capt.Session, error) {
		return silent, nil
	}, time.Millisecond, 1)

	err := r.AttemptRecovery(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reopened printer does not answer")
	assert.Same(t, session, r.Session(), "an unusable session is not adopted")
	assert.True(t, silent.IsClosed())
}
