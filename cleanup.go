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
)

// OnJobCancelled brings the device back in sync after a transaction was
// interrupted. An unfinished send is completed first, then any reply the
// printer may still produce is read and discarded. Afterwards the session is
// idle with an empty buffer, whatever the outcome.
//
// It may be called from another goroutine while the interrupted transaction
// is still unwinding; it waits for that goroutine to release the transport.
// Pass a fresh context, not the cancelled one.
func (s *Session) OnJobCancelled(ctx context.Context) error {
	if s.TransactionState() == TxIdle {
		return nil
	}

	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	state := s.TransactionState()
	if state == TxIdle {
		return nil
	}

	defer func() {
		s.buf.Reset()
		s.flushed = 0
		s.state.Store(int32(TxIdle))
	}()

	if s.closed.Load() {
		Debugf("transport already released, dropping %s transaction", state)
		return nil
	}

	if state == TxSending {
		if err := s.flush(ctx); err != nil {
			return fmt.Errorf("finish interrupted send: %w", err)
		}
		Debugln("finished interrupted send")
		// the command went out, so a reply may follow
		s.state.Store(int32(TxReceiving))
	}

	dropped, err := s.drain(ctx)
	Debugf("finished interrupted recv, %d bytes discarded", dropped)
	if err != nil {
		return fmt.Errorf("drain reply: %w", err)
	}
	return nil
}

// drain reads and discards up to DrainBytes from the device in packet-sized
// reads. Timeouts are expected and ignored; any other failure stops it.
func (s *Session) drain(ctx context.Context) (int, error) {
	var scratch [DrainReadSize]byte
	dropped := 0

	for remaining := DrainBytes; remaining > 0; remaining -= DrainReadSize {
		n, err := s.transport.BulkRead(ctx, scratch[:], s.config.DrainTimeout)
		dropped += n
		if err == nil || IsTimeout(err) {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return dropped, ctxErr
		}
		return dropped, NewTransportError("drain", s.portName(),
			fmt.Errorf("%w: %w", ErrTransportRead, err), ErrorTypePermanent)
	}
	return dropped, nil
}
