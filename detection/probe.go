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
	"fmt"
	"maps"
	"time"

	capt "github.com/ZaparooProject/go-capt"
)

const defaultProbeTimeout = 2 * time.Second

// ProbeResult is what a probe learned about a printer
type ProbeResult struct {
	DeviceID   capt.DeviceID
	Status     capt.Status
	Confidence Confidence
	HasStatus  bool
}

// Metadata renders the result for DeviceInfo.Metadata
func (r ProbeResult) Metadata() map[string]string {
	meta := make(map[string]string)
	if r.DeviceID.Raw != "" {
		meta[MetaDeviceID] = r.DeviceID.Raw
	}
	if r.HasStatus {
		meta[MetaStatus] = r.Status.String()
	}
	return meta
}

// probeConfig keeps a probe from retrying a silent device indefinitely
func probeConfig(timeout time.Duration) *capt.SessionConfig {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	config := capt.DefaultSessionConfig()
	config.Receive = &capt.ReceiveConfig{
		InitialTimeout:    timeout / 2,
		RetryDelay:        0,
		MaxTimeout:        timeout / 2,
		BackoffMultiplier: 1,
		MaxAttempts:       2,
	}
	config.IdentifyTimeout = timeout
	config.WriteTimeout = timeout
	config.DrainTimeout = timeout / 4
	return config
}

// Probe opens the printer at path and checks that it speaks CAPT.
//
// Safe mode only reads the device ID. Full mode also asks for the basic
// status. A transport without device ID support (serial lines) can only be
// confirmed by a status request, which Safe mode then issues as well.
func Probe(
	ctx context.Context, factory capt.TransportFactory, path string, mode Mode, timeout time.Duration,
) (ProbeResult, error) {
	var result ProbeResult
	if mode == Passive {
		return result, nil
	}

	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session, err := capt.Connect(path, factory, capt.WithConfig(probeConfig(timeout)))
	if err != nil {
		return result, fmt.Errorf("probe %s: %w", path, err)
	}
	defer func() { _ = session.Close() }()

	needStatus := mode == Full
	id, err := session.Identify(ctx)
	switch {
	case errors.Is(err, capt.ErrNotSupported):
		needStatus = true
	case err != nil:
		return result, fmt.Errorf("probe %s: %w", path, err)
	default:
		result.DeviceID = capt.ParseDeviceID(id)
		if !result.DeviceID.SupportsCAPT() {
			return result, fmt.Errorf("probe %s: %w", path, ErrNotCAPT)
		}
		result.Confidence = Medium
	}

	if !needStatus {
		return result, nil
	}

	status, err := session.GetStatus(ctx)
	if err != nil {
		return result, fmt.Errorf("probe %s: status: %w", path, err)
	}
	result.Status = status
	result.HasStatus = true
	result.Confidence = High
	return result, nil
}

// Candidate is a device found by enumeration, before any probing
type Candidate struct {
	// Metadata gathered while enumerating (MetaVIDPID, MetaSerial)
	Metadata map[string]string
	// Path accepted by the transport factory
	Path string
	// Name reported by the operating system
	Name string
	// Known is set when the VID:PID belongs to a known CAPT model
	Known bool
}

// Resolve applies the ignore and block lists to candidates and, outside
// Passive mode, probes each remaining one through factory.
//
// A printer that answers with another command set is dropped. A known
// model that fails to answer is kept at Low confidence since it may just
// be busy or asleep; unknown devices that fail are dropped.
func Resolve(
	ctx context.Context, transport string, candidates []Candidate, factory capt.TransportFactory, opts *Options,
) []DeviceInfo {
	var devices []DeviceInfo
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		if IsPathIgnored(c.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid := c.Metadata[MetaVIDPID]; vidpid != "" && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}

		device := DeviceInfo{
			Transport:  transport,
			Path:       c.Path,
			Name:       c.Name,
			Confidence: Low,
			Metadata:   make(map[string]string, len(c.Metadata)+2),
		}
		maps.Copy(device.Metadata, c.Metadata)
		if c.Known {
			device.Confidence = Medium
		}

		if opts.Mode == Passive {
			devices = append(devices, device)
			continue
		}

		result, err := Probe(ctx, factory, c.Path, opts.Mode, opts.ProbeTimeout)
		if err != nil {
			capt.Debugf("%s probe failed: %v", transport, err)
			if errors.Is(err, ErrNotCAPT) || !c.Known {
				continue
			}
			device.Confidence = Low
			devices = append(devices, device)
			continue
		}

		maps.Copy(device.Metadata, result.Metadata())
		if result.DeviceID.Model() != "" {
			device.Name = result.DeviceID.String()
		}
		device.Confidence = max(result.Confidence, device.Confidence)
		devices = append(devices, device)
	}
	return devices
}
