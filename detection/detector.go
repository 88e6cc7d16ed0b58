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

// Package detection finds attached CAPT printers. Transport specific
// detectors register themselves on import; DetectAll runs every registered
// detector in parallel and merges the results.
package detection

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Mode represents the level of invasiveness for device detection
type Mode int

const (
	// Passive mode only reads descriptors the operating system already has
	Passive Mode = iota
	// Safe mode opens the printer and reads its IEEE 1284 device ID
	Safe
	// Full mode additionally queries the printer status
	Full
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case Passive:
		return "passive"
	case Safe:
		return "safe"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Confidence represents the confidence level of device detection
type Confidence int

const (
	// Low confidence - a Canon printer class device, protocol unknown
	Low Confidence = iota
	// Medium confidence - a known CAPT model, or the device ID advertises
	// the CAPT command set
	Medium
	// High confidence - the printer answered a CAPT status query
	High
)

// String returns the confidence name
func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// Metadata keys set by the detectors
const (
	MetaVIDPID   = "vidpid"
	MetaSerial   = "serial"
	MetaDeviceID = "device_id"
	MetaStatus   = "status"
)

// DeviceInfo represents a detected printer
type DeviceInfo struct {
	// Additional metadata (see the Meta* keys)
	Metadata map[string]string
	// Transport type: "usb", "usblp", "uart"
	Transport string
	// Connection path accepted by the transport's Open
	// (e.g. "04a9:2676:SERIAL", "/dev/usb/lp0")
	Path string
	// Human-readable device name
	Name string
	// Detection confidence level
	Confidence Confidence
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	name := ""
	if d.Name != "" {
		name = d.Name + " "
	}
	return fmt.Sprintf("%s%s device at %s (confidence: %s)", name, d.Transport, d.Path, d.Confidence)
}

// Options configures the detection behavior
type Options struct {
	// USB VID:PID pairs to skip (e.g., ["04A9:2676", "04A9:*"])
	Blocklist []string
	// Device paths to explicitly ignore (e.g., ["/dev/usb/lp0"])
	IgnorePaths []string
	// Which transports to check (empty = all)
	Transports []string
	// Cache TTL duration
	CacheTTL time.Duration
	// Maximum time to wait for detection
	Timeout time.Duration
	// ProbeTimeout bounds each probe in Safe and Full mode
	ProbeTimeout time.Duration
	// Detection invasiveness level
	Mode Mode
	// Enable result caching
	EnableCache bool
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{
		Mode:         Safe,
		Timeout:      5 * time.Second,
		ProbeTimeout: 2 * time.Second,
		Blocklist:    DefaultBlocklist(),
		EnableCache:  true,
		CacheTTL:     30 * time.Second,
	}
}

// Detector interface for transport-specific device detection
type Detector interface {
	// Detect searches for devices using the given options
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	// Transport returns the transport type this detector handles
	Transport() string
}

// Errors
var (
	// ErrNoDevicesFound indicates no CAPT printers were detected
	ErrNoDevicesFound = errors.New("no CAPT printers found")
	// ErrDetectionTimeout indicates detection timed out
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrUnsupportedPlatform indicates the platform doesn't support this detection method
	ErrUnsupportedPlatform = errors.New("platform not supported")
	// ErrNotCAPT indicates a probed printer does not speak CAPT
	ErrNotCAPT = errors.New("printer does not advertise the CAPT command set")
)

// registry holds all registered detectors
var registry []Detector

// RegisterDetector adds a detector to the registry
func RegisterDetector(d Detector) {
	registry = append(registry, d)
}

// getDetectors returns detectors filtered by transport types
func getDetectors(transports []string) []Detector {
	if len(transports) == 0 {
		return registry
	}

	var filtered []Detector
	for _, d := range registry {
		if slices.Contains(transports, d.Transport()) {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

type detectionResult struct {
	err     error
	devices []DeviceInfo
}

// DetectAll searches for CAPT printers on every registered transport.
// opts.Timeout, when set, bounds the whole search.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	detectors := getDetectors(opts.Transports)
	if len(detectors) == 0 {
		return nil, errors.New("no detectors available for specified transports")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	results := make(chan detectionResult, len(detectors))
	for _, detector := range detectors {
		go func(d Detector) {
			results <- runSingleDetector(ctx, d, opts)
		}(detector)
	}
	return collectDetectionResults(ctx, results, len(detectors))
}

// runSingleDetector performs detection for a single detector
func runSingleDetector(ctx context.Context, detector Detector, opts *Options) detectionResult {
	key := cacheKey{detector.Transport(), opts.Mode}

	if opts.EnableCache {
		if cached, found := getCached(key, opts.CacheTTL); found {
			// cached results bypassed Detect, so filter them again
			return detectionResult{devices: filterDevices(cached, opts)}
		}
	}

	devices, err := detector.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) && !errors.Is(err, ErrUnsupportedPlatform) {
		return detectionResult{err: err}
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			setCached(key, devices)
		} else {
			// a printer that was unplugged must not linger until TTL expiry
			clearCacheForKey(key)
		}
	}

	return detectionResult{devices: devices}
}

// collectDetectionResults gathers results from all detector goroutines
func collectDetectionResults(
	ctx context.Context,
	results chan detectionResult,
	numDetectors int,
) ([]DeviceInfo, error) {
	var allDevices []DeviceInfo
	var errs []error

	for range numDetectors {
		select {
		case res := <-results:
			if res.err != nil {
				errs = append(errs, res.err)
			} else {
				allDevices = append(allDevices, res.devices...)
			}
		case <-ctx.Done():
			return nil, ErrDetectionTimeout
		}
	}

	return processDetectionResults(allDevices, errs)
}

// processDetectionResults returns devices even if some detectors failed
func processDetectionResults(allDevices []DeviceInfo, errs []error) ([]DeviceInfo, error) {
	if len(allDevices) > 0 {
		return mergeDuplicates(allDevices), nil
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNoDevicesFound
}

// transportRank orders transports for the same printer: the kernel driver
// is already bound, libusb would have to detach it, and a serial bridge
// hides the printer behind a converter.
func transportRank(transport string) int {
	switch transport {
	case "usblp":
		return 0
	case "usb":
		return 1
	case "uart":
		return 2
	default:
		return 3
	}
}

// mergeDuplicates orders devices best first and keeps one entry per
// printer. A printer found through several transports is recognized by
// its USB ID and serial number; devices lacking either are never merged.
func mergeDuplicates(devices []DeviceInfo) []DeviceInfo {
	sorted := slices.Clone(devices)
	slices.SortStableFunc(sorted, func(a, b DeviceInfo) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return cmp.Compare(transportRank(a.Transport), transportRank(b.Transport))
	})

	seen := make(map[[2]string]bool)
	out := sorted[:0]
	for _, d := range sorted {
		id, serial := d.Metadata[MetaVIDPID], d.Metadata[MetaSerial]
		if id != "" && serial != "" {
			key := [2]string{id, serial}
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, d)
	}
	return out
}

// filterDevices applies IgnorePaths and Blocklist filtering to a device list
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}

	var filtered []DeviceInfo
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := device.Metadata[MetaVIDPID]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		filtered = append(filtered, device)
	}
	return filtered
}

// Best returns the device with the highest confidence, preferring earlier
// entries on ties. ok is false for an empty list.
func Best(devices []DeviceInfo) (best DeviceInfo, ok bool) {
	for i, d := range devices {
		if i == 0 || d.Confidence > best.Confidence {
			best = d
		}
	}
	return best, len(devices) > 0
}

// ClearDetectionCache removes all cached detection results
func ClearDetectionCache() {
	clearCache()
}

// ClearDetectionCacheForTransport removes cached results for a specific
// transport in every mode
func ClearDetectionCacheForTransport(transport string) {
	clearCacheForTransport(transport)
}
