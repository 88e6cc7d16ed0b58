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
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Identify reads the IEEE 1284 device ID string from the printer. The
// two-byte length prefix is stripped and trailing padding trimmed.
func (s *Session) Identify(ctx context.Context) (string, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if err := s.checkOpen(); err != nil {
		return "", err
	}

	Debugf("attempt to get IEEE 1284 device ID")
	buf := make([]byte, deviceIDBufferSize)
	n, err := s.transport.ControlTransfer(ctx, requestTypeDeviceID, requestGetDeviceID,
		0, 0, buf, s.config.IdentifyTimeout)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return "", fmt.Errorf("identify interrupted: %w", ctx.Err())
		case errors.Is(err, ErrNotSupported):
			return "", fmt.Errorf("identify: %w", err)
		}
		errorf("unable to get device ID string (%v)", err)
		s.teardown()
		return "", NewTransportError("identify", s.portName(), err, ErrorTypePermanent)
	}

	id := decodeDeviceID(buf[:n])
	if id == "" {
		return "", ErrNoDeviceID
	}
	Debugf("printer ID string: %s", id)
	return id, nil
}

// decodeDeviceID strips the big-endian length prefix of a raw device ID
func decodeDeviceID(raw []byte) string {
	if len(raw) < 2 {
		return ""
	}
	length := int(binary.BigEndian.Uint16(raw))
	body := raw[2:]
	if length >= 2 && length <= len(raw) {
		body = raw[2:length]
	}
	return strings.TrimRight(string(body), "\x00\r\n ")
}

// DeviceID is a parsed IEEE 1284 device ID: semicolon separated KEY:value
// pairs. Keys are stored upper case.
type DeviceID struct {
	Raw    string
	Fields map[string]string
}

// ParseDeviceID splits a device ID string into its fields. Malformed pairs
// are skipped.
func ParseDeviceID(id string) DeviceID {
	d := DeviceID{Raw: id, Fields: make(map[string]string)}
	for _, pair := range strings.Split(id, ";") {
		key, value, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		d.Fields[key] = strings.TrimSpace(value)
	}
	return d
}

func (d DeviceID) lookup(keys ...string) string {
	for _, k := range keys {
		if v, ok := d.Fields[k]; ok {
			return v
		}
	}
	return ""
}

// Manufacturer returns the MFG field
func (d DeviceID) Manufacturer() string {
	return d.lookup("MANUFACTURER", "MFG")
}

// Model returns the MDL field
func (d DeviceID) Model() string {
	return d.lookup("MODEL", "MDL")
}

// CommandSet returns the list of command languages the printer accepts
func (d DeviceID) CommandSet() []string {
	raw := d.lookup("COMMAND SET", "CMD")
	if raw == "" {
		return nil
	}
	var cmds []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cmds = append(cmds, c)
		}
	}
	return cmds
}

// SupportsCAPT reports whether CAPT is among the advertised command sets
func (d DeviceID) SupportsCAPT() bool {
	return slices.ContainsFunc(d.CommandSet(), func(c string) bool {
		return strings.EqualFold(c, "CAPT")
	})
}

func (d DeviceID) String() string {
	return fmt.Sprintf("%s %s", d.Manufacturer(), d.Model())
}
