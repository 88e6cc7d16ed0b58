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

import "time"

// SleepRecoveryConfig configures detection of host sleep/wake. A detected
// sleep runs the monitor's recoverer before the next poll.
type SleepRecoveryConfig struct {
	// Enabled enables sleep detection and recovery attempts
	Enabled bool

	// TimeDiscontinuityThreshold is the minimum elapsed time beyond the expected
	// poll interval that indicates a sleep occurred. Default: 2 seconds
	TimeDiscontinuityThreshold time.Duration
}

// DefaultSleepRecoveryConfig returns sensible defaults for sleep recovery
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
	}
}

// DetectSleep checks if the elapsed time since last poll indicates a system sleep.
// Returns true if elapsed time exceeds (pollInterval + TimeDiscontinuityThreshold).
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, pollInterval time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	expectedMax := pollInterval + cfg.TimeDiscontinuityThreshold
	return elapsed > expectedMax
}

// Config holds status monitoring options
type Config struct {
	// PollInterval is the pause between status requests while the
	// printer status is changing
	PollInterval time.Duration
	// IdleInterval replaces PollInterval once the status has been stable
	// for IdleAfter. Zero disables the slowdown.
	IdleInterval time.Duration
	// IdleAfter is how long the status must stay unchanged before polling
	// slows down
	IdleAfter time.Duration
	// MaxConsecutiveErrors stops the monitor after that many failed polls
	// in a row. Zero means never.
	MaxConsecutiveErrors int
	// Extended requests the extended status record instead of the basic one
	Extended bool
	// SleepRecovery configures automatic recovery after host sleep/wake cycles
	SleepRecovery SleepRecoveryConfig
}

// DefaultConfig returns the default monitoring configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:         time.Second,
		IdleInterval:         5 * time.Second,
		IdleAfter:            30 * time.Second,
		MaxConsecutiveErrors: 5,
		SleepRecovery:        DefaultSleepRecoveryConfig(),
	}
}
