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

//go:build linux

// Package usblp talks to CAPT printers through the Linux usblp driver
// (/dev/usb/lpN). The kernel owns the interface, so no libusb access or
// driver detach is needed; the IEEE 1284 device ID comes from the
// LPIOC_GET_DEVICE_ID ioctl.
package usblp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ZaparooProject/go-capt"
	"github.com/ZaparooProject/go-capt/internal/syncutil"
)

const (
	// pollSlice bounds a single poll so ctx is noticed promptly
	pollSlice = 100 * time.Millisecond

	requestTypeDeviceID = 0xA1
	requestGetDeviceID  = 0x00
)

var errWaitTimeout = errors.New("poll timeout")

// lpiocGetDeviceID encodes LPIOC_GET_DEVICE_ID(size), _IOC(_IOC_READ, 'P', 1, size)
func lpiocGetDeviceID(size int) uintptr {
	return uintptr(iocRead)<<iocDirShift | uintptr(size)<<iocSizeShift | uintptr('P')<<8 | 1
}

// Transport implements capt.Transport on a usblp character device.
type Transport struct {
	path   string
	rfd    int
	wfd    int
	mu     syncutil.Mutex
	closed bool
}

// New opens the usblp device at path.
func New(path string) (*Transport, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return newFromFDs(path, fd, fd), nil
}

// Open is a capt.TransportFactory for usblp devices.
func Open(path string) (capt.Transport, error) {
	return New(path)
}

// newFromFDs wraps non-blocking descriptors. A device uses the same
// descriptor for both directions.
func newFromFDs(path string, rfd, wfd int) *Transport {
	return &Transport{path: path, rfd: rfd, wfd: wfd}
}

// wait polls fd for events until timeout or ctx ends
func wait(ctx context.Context, fd int, events int16, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errWaitTimeout
		}

		ms := max(int(min(remaining, pollSlice).Milliseconds()), 1)
		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		n, err := unix.Poll(fds, ms)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			continue
		}

		revents := fds[0].Revents
		if revents&events != 0 {
			return nil
		}
		if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return unix.ENODEV
		}
	}
}

// BulkWrite writes all of data or fails when timeout passes first.
func (t *Transport) BulkWrite(ctx context.Context, data []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, capt.ErrTransportClosed
	}

	deadline := time.Now().Add(timeout)
	written := 0
	for written < len(data) {
		if err := wait(ctx, t.wfd, unix.POLLOUT, time.Until(deadline)); err != nil {
			return written, t.classify("write", err)
		}
		n, err := unix.Write(t.wfd, data[written:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return written, t.classify("write", err)
		}
		written += n
	}
	return written, nil
}

// BulkRead returns whatever the driver has ready once data arrives.
func (t *Transport) BulkRead(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, capt.ErrTransportClosed
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := wait(ctx, t.rfd, unix.POLLIN, time.Until(deadline)); err != nil {
			return 0, t.classify("read", err)
		}
		n, err := unix.Read(t.rfd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return 0, t.classify("read", err)
		}
		return n, nil
	}
}

// ControlTransfer supports only the GET_DEVICE_ID class request, which
// the driver answers from its cached descriptor.
func (t *Transport) ControlTransfer(
	ctx context.Context, requestType, request uint8, _, _ uint16,
	buf []byte, _ time.Duration,
) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if requestType != requestTypeDeviceID || request != requestGetDeviceID || len(buf) == 0 {
		return 0, capt.ErrNotSupported
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, capt.ErrTransportClosed
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.wfd),
		lpiocGetDeviceID(len(buf)), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		if errno == unix.ENOTTY || errno == unix.EINVAL {
			return 0, fmt.Errorf("%s is not a printer device: %w", t.path, capt.ErrNotSupported)
		}
		return 0, t.classify("get device id", errno)
	}
	return deviceIDLength(buf), nil
}

// deviceIDLength returns how much of buf the driver filled: the ID's own
// big-endian length prefix, capped at the buffer size.
func deviceIDLength(buf []byte) int {
	if len(buf) < 2 {
		return 0
	}
	return min(int(binary.BigEndian.Uint16(buf)), len(buf))
}

func (t *Transport) classify(op string, err error) error {
	switch {
	case errors.Is(err, errWaitTimeout):
		return capt.NewTimeoutError(op, t.path)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENXIO), errors.Is(err, unix.EPIPE):
		return capt.NewTransportError(op, t.path,
			fmt.Errorf("%w: %w", capt.ErrDeviceNotFound, err), capt.ErrorTypePermanent)
	default:
		return capt.NewTransportError(op, t.path, err, capt.ErrorTypePermanent)
	}
}

// Close closes the device. Closing twice is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	err := unix.Close(t.rfd)
	if t.wfd != t.rfd {
		err = errors.Join(err, unix.Close(t.wfd))
	}
	if err != nil {
		return fmt.Errorf("usblp close failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns the transport type
func (*Transport) Type() capt.TransportType {
	return capt.TransportUSBLP
}

// String returns the device path
func (t *Transport) String() string {
	return t.path
}
