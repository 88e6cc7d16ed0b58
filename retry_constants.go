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

import "time"

// Receive retry constants control how long the driver waits for a reply.
// A slow printer (warming up, feeding paper) may take many seconds to answer
// a status query, so timeouts are retried rather than treated as failures.
const (
	// ReceiveInitialTimeout is the timeout of the first read attempt.
	ReceiveInitialTimeout = 1000 * time.Millisecond
	// ReceiveRetryDelay is the pause after a timed-out read.
	ReceiveRetryDelay = 1 * time.Second
	// ReceiveBackoffMultiplier grows the read timeout after each timeout.
	ReceiveBackoffMultiplier = 2.0
	// ReceiveMaxTimeout caps the read timeout growth.
	ReceiveMaxTimeout = 64 * time.Second
)

// Transfer timeouts for operations that are never retried.
const (
	// WriteTimeout is the timeout of each bulk write chunk.
	WriteTimeout = 1000 * time.Millisecond
	// IdentifyTimeout is the timeout of the device ID control transfer.
	IdentifyTimeout = 300 * time.Millisecond
)

// Cleanup constants control resynchronisation after a cancelled job.
const (
	// DrainBytes is how much the cleanup reads from the device at most.
	DrainBytes = 0x10000
	// DrainReadSize is the size of each drain read, one USB packet.
	DrainReadSize = 64
	// DrainReadTimeout is the timeout of each drain read.
	DrainReadTimeout = 10 * time.Millisecond
)

// StatusPollInterval is the pause between status polls while the printer
// reports busy.
const StatusPollInterval = 1 * time.Second
