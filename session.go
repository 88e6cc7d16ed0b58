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
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-capt/internal/frame"
	"github.com/ZaparooProject/go-capt/internal/syncutil"
)

// SessionConfig contains configuration options for a Session
type SessionConfig struct {
	// Receive configures timeouts and retries of reply reads
	Receive *ReceiveConfig
	// WriteTimeout is the timeout of each bulk write chunk
	WriteTimeout time.Duration
	// PollInterval is the pause between polls in WaitUntilReady
	PollInterval time.Duration
	// DrainTimeout is the per-read timeout used when resynchronising
	DrainTimeout time.Duration
	// IdentifyTimeout is the timeout of the device ID request
	IdentifyTimeout time.Duration
	// TraceSize is the number of wire events kept for error reports
	TraceSize int
}

// DefaultSessionConfig returns default session configuration
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		Receive:         DefaultReceiveConfig(),
		WriteTimeout:    WriteTimeout,
		PollInterval:    StatusPollInterval,
		DrainTimeout:    DrainReadTimeout,
		IdentifyTimeout: IdentifyTimeout,
		TraceSize:       16,
	}
}

// Validate checks the configuration
func (c *SessionConfig) Validate() error {
	if c.Receive == nil {
		return fmt.Errorf("%w: receive configuration missing", ErrInvalidConfig)
	}
	if err := c.Receive.Validate(); err != nil {
		return err
	}
	if c.WriteTimeout <= 0 || c.DrainTimeout <= 0 || c.IdentifyTimeout <= 0 {
		return fmt.Errorf("%w: transfer timeouts must be positive", ErrInvalidConfig)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("%w: poll interval must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Option configures a Session
type Option func(*Session) error

// WithConfig replaces the whole session configuration
func WithConfig(config *SessionConfig) Option {
	return func(s *Session) error {
		if config == nil {
			return fmt.Errorf("%w: nil session configuration", ErrInvalidConfig)
		}
		s.config = config
		return nil
	}
}

// WithReceiveConfig replaces the receive retry configuration
func WithReceiveConfig(config *ReceiveConfig) Option {
	return func(s *Session) error {
		if config == nil {
			return fmt.Errorf("%w: nil receive configuration", ErrInvalidConfig)
		}
		s.config.Receive = config
		return nil
	}
}

// WithPollInterval sets the pause between status polls
func WithPollInterval(interval time.Duration) Option {
	return func(s *Session) error {
		s.config.PollInterval = interval
		return nil
	}
}

// TxState is the state of the current send/receive transaction
type TxState int32

const (
	// TxIdle means no transaction is open
	TxIdle TxState = iota
	// TxSending means a transaction is open and its command is not fully sent
	TxSending
	// TxReceiving means the command was sent and the reply is outstanding
	TxReceiving
)

func (t TxState) String() string {
	switch t {
	case TxIdle:
		return "idle"
	case TxSending:
		return "sending"
	case TxReceiving:
		return "receiving"
	default:
		return fmt.Sprintf("TxState(%d)", int32(t))
	}
}

// Session drives one printer connection. It owns the I/O buffer, the
// transaction state and the status record.
//
// Thread Safety: only one transaction may be in flight at a time. Transport
// access is serialised internally, but callers must not interleave
// Send/SendAndReceive/batch calls from several goroutines. OnJobCancelled is
// the one method meant to be called concurrently with a transaction.
type Session struct {
	transport Transport
	config    *SessionConfig
	buf       *frame.Buffer
	wire      *wireRecorder
	sleep     func(context.Context, time.Duration) error
	status    Status
	flushed   int
	state     atomic.Int32
	closed    atomic.Bool
	ioMu      syncutil.Mutex
	statusMu  syncutil.RWMutex
}

// NewSession creates a session on an opened transport
func NewSession(transport Transport, opts ...Option) (*Session, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidConfig)
	}

	s := &Session{
		transport: transport,
		config:    DefaultSessionConfig(),
		buf:       frame.NewBuffer(),
		sleep:     sleepWithContext,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	s.wire = newWireRecorder(string(transport.Type()), s.config.TraceSize)
	return s, nil
}

// TransportFactory is a function type for creating transports
type TransportFactory func(path string) (Transport, error)

// Connect opens a transport with factory and starts a session on it. The
// transport is closed again if the session cannot be created.
func Connect(path string, factory TransportFactory, opts ...Option) (*Session, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: nil transport factory", ErrInvalidConfig)
	}

	transport, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	session, err := NewSession(transport, opts...)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	return session, nil
}

// Transport returns the underlying transport
func (s *Session) Transport() Transport {
	return s.transport
}

// TransactionState returns the current transaction state
func (s *Session) TransactionState() TxState {
	return TxState(s.state.Load())
}

// IsClosed reports whether the session was closed or torn down after a
// fatal error
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Close releases the transport. Closing twice is a no-op.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// teardown releases the transport after a fatal transport condition
func (s *Session) teardown() {
	if s.closed.Swap(true) {
		return
	}
	Debugf("freeing %s transport", s.transport.Type())
	if err := s.transport.Close(); err != nil {
		Debugf("transport close failed: %v", err)
	}
}

func (s *Session) checkOpen() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) portName() string {
	if named, ok := s.transport.(fmt.Stringer); ok {
		return named.String()
	}
	return string(s.transport.Type())
}

// frameCommand resets the buffer and frames a single command unit
func (s *Session) frameCommand(opcode uint16, payload []byte) error {
	s.buf.Reset()
	s.flushed = 0
	if err := s.buf.AppendCommand(opcode, payload); err != nil {
		alertf("output buffer overflow")
		return fmt.Errorf("frame command %04X: %w", opcode, err)
	}
	return nil
}

// Send frames one command and writes it without waiting for a reply
func (s *Session) Send(ctx context.Context, opcode uint16, payload []byte) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.frameCommand(opcode, payload); err != nil {
		return err
	}
	return s.flush(ctx)
}

// BeginBatch starts a multi-command message with the given outer opcode
func (s *Session) BeginBatch(opcode uint16) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	s.buf.BeginBatch(opcode)
	s.flushed = 0
}

// AddToBatch appends one command unit to the batch
func (s *Session) AddToBatch(opcode uint16, payload []byte) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if err := s.buf.AddToBatch(opcode, payload); err != nil {
		alertf("output buffer overflow")
		return fmt.Errorf("add %04X to batch: %w", opcode, err)
	}
	return nil
}

// SendBatch finalises the batch length and writes the whole message. No
// reply is read.
func (s *Session) SendBatch(ctx context.Context) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.buf.Len() < frame.HeaderSize {
		return errors.New("send batch: no batch started")
	}
	s.buf.FinalizeBatchLength()
	s.flushed = 0
	return s.flush(ctx)
}

// flush writes the unsent part of the buffer in chunks of at most
// frame.ChunkSize bytes. Any failed or short chunk write tears the transport
// down; a cancelled context leaves the remainder for OnJobCancelled.
func (s *Session) flush(ctx context.Context) error {
	data := s.buf.Bytes()
	if debugEnabled.Load() && s.flushed == 0 {
		Debugf("send %s", frame.Dump(data, 128))
	}

	for s.flushed < len(data) {
		end := min(s.flushed+frame.ChunkSize, len(data))
		chunk := data[s.flushed:end]

		n, err := s.transport.BulkWrite(ctx, chunk, s.config.WriteTimeout)
		if n > 0 {
			s.wire.sent(chunk[:n])
			s.flushed += n
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("send interrupted after %d of %d bytes: %w", s.flushed, len(data), ctxErr)
			}
			Debugf("cannot send buffer (%v)", err)
			s.teardown()
			return NewTransportError("send", s.portName(),
				fmt.Errorf("%w: %w", ErrTransportWrite, err), ErrorTypePermanent)
		}
		if n < len(chunk) {
			Debugf("short write: %d of %d bytes", n, len(chunk))
			s.teardown()
			return NewTransportError("send", s.portName(),
				fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(chunk)), ErrorTypePermanent)
		}
	}
	return nil
}
