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
	"time"
)

// ReceiveConfig configures how a single receive waits for the printer
type ReceiveConfig struct {
	// InitialTimeout is the timeout of the first read attempt
	InitialTimeout time.Duration
	// RetryDelay is the pause after each timed-out attempt
	RetryDelay time.Duration
	// MaxTimeout caps the per-attempt timeout (0 = no cap)
	MaxTimeout time.Duration
	// BackoffMultiplier is the factor by which the timeout grows
	BackoffMultiplier float64
	// MaxAttempts bounds the number of attempts (0 = retry until the
	// context ends)
	MaxAttempts int
}

// DefaultReceiveConfig returns the default receive configuration: 1 s first
// timeout, doubling after each timeout, one second pause in between, no
// attempt limit.
func DefaultReceiveConfig() *ReceiveConfig {
	return &ReceiveConfig{
		InitialTimeout:    ReceiveInitialTimeout,
		RetryDelay:        ReceiveRetryDelay,
		MaxTimeout:        ReceiveMaxTimeout,
		BackoffMultiplier: ReceiveBackoffMultiplier,
		MaxAttempts:       0,
	}
}

// Validate checks the configuration for values the receive loop cannot use
func (c *ReceiveConfig) Validate() error {
	switch {
	case c.InitialTimeout <= 0:
		return fmt.Errorf("%w: initial timeout must be positive", ErrInvalidConfig)
	case c.RetryDelay < 0:
		return fmt.Errorf("%w: retry delay must not be negative", ErrInvalidConfig)
	case c.BackoffMultiplier < 1:
		return fmt.Errorf("%w: backoff multiplier must be at least 1", ErrInvalidConfig)
	case c.MaxAttempts < 0:
		return fmt.Errorf("%w: max attempts must not be negative", ErrInvalidConfig)
	case c.MaxTimeout != 0 && c.MaxTimeout < c.InitialTimeout:
		return fmt.Errorf("%w: max timeout below initial timeout", ErrInvalidConfig)
	default:
		return nil
	}
}

// exhausted reports whether attempt (1-based) was the last one allowed
func (c *ReceiveConfig) exhausted(attempt int) bool {
	return c.MaxAttempts > 0 && attempt >= c.MaxAttempts
}

// calculateNextTimeout grows the read timeout, honouring MaxTimeout
func calculateNextTimeout(timeout time.Duration, config *ReceiveConfig) time.Duration {
	next := time.Duration(float64(timeout) * config.BackoffMultiplier)
	if config.MaxTimeout > 0 && next > config.MaxTimeout {
		return config.MaxTimeout
	}
	return next
}

// sleepWithContext sleeps for d unless ctx ends first
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
