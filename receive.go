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

	"github.com/ZaparooProject/go-capt/internal/frame"
)

// SendAndReceive sends one command and reads its reply. The returned reply
// holds the reply bytes after the 4-byte header, truncated to replyCapacity
// when replyCapacity is not negative. total is the full reply size including
// the header.
//
// The transaction stays open if ctx ends mid-transfer; call OnJobCancelled
// to bring the device back in sync before the next transaction.
func (s *Session) SendAndReceive(
	ctx context.Context, opcode uint16, payload []byte, replyCapacity int,
) (reply []byte, total int, err error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	return s.sendAndReceiveLocked(ctx, opcode, payload, replyCapacity)
}

func (s *Session) sendAndReceiveLocked(
	ctx context.Context, opcode uint16, payload []byte, replyCapacity int,
) ([]byte, int, error) {
	if err := s.checkOpen(); err != nil {
		return nil, 0, err
	}

	s.wire.begin(opcode)
	if err := s.frameCommand(opcode, payload); err != nil {
		return nil, 0, err
	}

	s.state.Store(int32(TxSending))
	if err := s.flush(ctx); err != nil {
		return nil, 0, s.wire.wrap(err)
	}

	s.state.Store(int32(TxReceiving))
	total, err := s.receiveReply(ctx, opcode)
	if err != nil {
		return nil, 0, s.wire.wrap(err)
	}

	body := s.buf.Bytes()[frame.HeaderSize:total]
	if replyCapacity >= 0 && replyCapacity < len(body) {
		body = body[:replyCapacity]
	}
	reply := make([]byte, len(body))
	copy(reply, body)

	s.state.Store(int32(TxIdle))
	return reply, total, nil
}

// receiveReply reads and reassembles the reply to opcode into the buffer
// and returns its size.
func (s *Session) receiveReply(ctx context.Context, opcode uint16) (int, error) {
	s.buf.Reset()

	n, err := s.receive(ctx, 0, frame.ReplyMinSize)
	if err != nil {
		return 0, err
	}
	if err := s.buf.SetLen(n); err != nil {
		return 0, fmt.Errorf("receive: %w", err)
	}

	raw := s.buf.Bytes()
	h, ok := frame.ParseHeader(raw)
	if n != frame.ReplyMinSize || !ok || h.Opcode != opcode {
		errorf("bad reply from printer, expected %02X %02X xx xx xx xx, got %s",
			frame.Lo(opcode), frame.Hi(opcode), frame.Dump(raw, frame.ReplyMinSize))
		return 0, &ProtocolError{
			Op:       "receive",
			Opcode:   opcode,
			Err:      ErrProtocolMismatch,
			Raw:      append([]byte(nil), raw...),
			Expected: frame.ReplyMinSize,
			Got:      n,
		}
	}

	for {
		received := s.buf.Len()
		res, more := frame.ResolveLength(h, received)

		switch res {
		case frame.ResolvedWord, frame.ResolvedBCD:
			Debugf("reply %04X complete, %d bytes (%s)", opcode, received, res)
			return received, nil
		case frame.NeedMore:
			n, err := s.receive(ctx, received, more)
			if err != nil {
				return 0, err
			}
			if n == 0 {
				return 0, s.badReplySize(opcode, h)
			}
			if err := s.buf.SetLen(received + n); err != nil {
				return 0, fmt.Errorf("receive: %w", err)
			}
		default:
			return 0, s.badReplySize(opcode, h)
		}
	}
}

func (s *Session) badReplySize(opcode uint16, h frame.Header) error {
	raw := s.buf.Bytes()
	errorf("bad reply from printer, expected size %02X %02X, got %02X %02X",
		frame.Lo(uint16(len(raw))), frame.Hi(uint16(len(raw))), h.SizeLo, h.SizeHi)
	errorf("reply dump %s", frame.Dump(raw, 64))
	return &ProtocolError{
		Op:       "receive",
		Opcode:   opcode,
		Err:      ErrBadReplySize,
		Raw:      append([]byte(nil), raw...),
		Expected: h.WordSize(),
		Got:      len(raw),
	}
}

// receive reads up to expected bytes at offset of the buffer. Timeouts are
// retried with a growing timeout until the configured attempt limit or ctx
// ends. Any other read failure tears the transport down.
func (s *Session) receive(ctx context.Context, offset, expected int) (int, error) {
	space, err := s.buf.ReadSpace(offset, expected)
	if err != nil {
		alertf("input buffer overflow")
		s.teardown()
		return 0, NewTransportError("receive", s.portName(),
			fmt.Errorf("%d bytes at offset %d: %w", expected, offset, err), ErrorTypePermanent)
	}

	cfg := s.config.Receive
	timeout := cfg.InitialTimeout

	for attempt := 1; ; attempt++ {
		Debugf("waiting for %d bytes", expected)
		n, err := s.transport.BulkRead(ctx, space, timeout)
		if err != nil && n > 0 && IsTimeout(err) {
			// a timeout after a partial packet still delivered data
			err = nil
		}
		if err == nil {
			s.wire.received(space[:n])
			Debugf("received %d bytes", n)
			return n, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("receive interrupted: %w", ctxErr)
		}

		if !IsTimeout(err) {
			errorf("no reply from printer (%v)", err)
			s.teardown()
			return 0, NewTransportError("receive", s.portName(),
				fmt.Errorf("%w: %w", ErrTransportRead, err), ErrorTypePermanent)
		}

		s.wire.timedOut(timeout)
		if cfg.exhausted(attempt) {
			errorf("no reply from printer after %d attempts", attempt)
			return 0, NewTransportError("receive", s.portName(),
				fmt.Errorf("%w after %d attempts", ErrTransportTimeout, attempt), ErrorTypeTimeout)
		}

		Debugf("no reply after %d msec, retrying", timeout.Milliseconds())
		if err := s.sleep(ctx, cfg.RetryDelay); err != nil {
			return 0, err
		}
		timeout = calculateNextTimeout(timeout, cfg)
	}
}
