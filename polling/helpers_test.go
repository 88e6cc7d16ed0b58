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

	"github.com/stretchr/testify/require"

	capt "github.com/ZaparooProject/go-capt"
	virt "github.com/ZaparooProject/go-capt/internal/testing"
)

// printerTransport connects a session to a virtual printer
type printerTransport struct {
	printer *virt.VirtualPrinter
	closed  atomic.Bool
}

func (p *printerTransport) BulkWrite(ctx context.Context, data []byte, _ time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if p.closed.Load() {
		return 0, capt.ErrTransportClosed
	}
	return p.printer.Write(data) //nolint:wrapcheck // test adapter
}

func (p *printerTransport) BulkRead(ctx context.Context, buf []byte, _ time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if p.closed.Load() {
		return 0, capt.ErrTransportClosed
	}
	n, err := p.printer.ReadPacket(buf)
	if errors.Is(err, virt.ErrTimeout) {
		return 0, capt.NewTimeoutError("read", "virtual")
	}
	return n, err //nolint:wrapcheck // test adapter
}

func (*printerTransport) ControlTransfer(
	context.Context, uint8, uint8, uint16, uint16, []byte, time.Duration,
) (int, error) {
	return 0, capt.ErrNotSupported
}

func (p *printerTransport) Close() error {
	p.closed.Store(true)
	return nil
}

func (p *printerTransport) IsConnected() bool { return !p.closed.Load() }
func (*printerTransport) Type() capt.TransportType { return capt.TransportMock }

func fastReceive() *capt.ReceiveConfig {
	return &capt.ReceiveConfig{
		InitialTimeout:    10 * time.Millisecond,
		BackoffMultiplier: 1,
		MaxAttempts:       2,
	}
}

func newPrinterSession(t *testing.T) (*capt.Session, *virt.VirtualPrinter) {
	t.Helper()

	printer := virt.NewVirtualPrinter()
	session, err := capt.NewSession(&printerTransport{printer: printer}, capt.WithReceiveConfig(fastReceive()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session, printer
}

func fastConfig() *Config {
	return &Config{
		PollInterval:         2 * time.Millisecond,
		MaxConsecutiveErrors: 0,
	}
}

// runMonitor starts m in the background and returns a function that stops
// it and yields Start's result
func runMonitor(t *testing.T, m *Monitor) (stop func() error, done <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- m.Start(ctx) }()

	t.Cleanup(cancel)
	return func() error {
		cancel()
		select {
		case err := <-result:
			return err
		case <-time.After(time.Second):
			t.Fatal("monitor did not stop")
			return nil
		}
	}, result
}
