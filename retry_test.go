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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiveConfig_Defaults(t *testing.T) {
	t.Parallel()

	config := DefaultReceiveConfig()

	require.NotNil(t, config)
	assert.Equal(t, time.Second, config.InitialTimeout)
	assert.Equal(t, time.Second, config.RetryDelay)
	assert.InDelta(t, 2.0, config.BackoffMultiplier, 0)
	assert.Zero(t, config.MaxAttempts, "retries until the context ends")
	assert.NoError(t, config.Validate())
}

func TestReceiveConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mutate  func(*ReceiveConfig)
		name    string
		wantErr bool
	}{
		{name: "defaults", mutate: func(*ReceiveConfig) {}},
		{name: "zero initial timeout", mutate: func(c *ReceiveConfig) { c.InitialTimeout = 0 }, wantErr: true},
		{name: "negative delay", mutate: func(c *ReceiveConfig) { c.RetryDelay = -1 }, wantErr: true},
		{name: "zero delay", mutate: func(c *ReceiveConfig) { c.RetryDelay = 0 }},
		{name: "shrinking backoff", mutate: func(c *ReceiveConfig) { c.BackoffMultiplier = 0.5 }, wantErr: true},
		{name: "negative attempts", mutate: func(c *ReceiveConfig) { c.MaxAttempts = -1 }, wantErr: true},
		{name: "cap below initial", mutate: func(c *ReceiveConfig) { c.MaxTimeout = time.Millisecond }, wantErr: true},
		{name: "no cap", mutate: func(c *ReceiveConfig) { c.MaxTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			config := DefaultReceiveConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReceiveConfig_Exhausted(t *testing.T) {
	t.Parallel()

	unlimited := &ReceiveConfig{MaxAttempts: 0}
	assert.False(t, unlimited.exhausted(1))
	assert.False(t, unlimited.exhausted(1000))

	limited := &ReceiveConfig{MaxAttempts: 3}
	assert.False(t, limited.exhausted(2))
	assert.True(t, limited.exhausted(3))
}

func TestCalculateNextTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		config  *ReceiveConfig
		name    string
		current time.Duration
		want    time.Duration
	}{
		{
			name:    "doubles",
			current: time.Second,
			config:  &ReceiveConfig{BackoffMultiplier: 2},
			want:    2 * time.Second,
		},
		{
			name:    "capped",
			current: 40 * time.Second,
			config:  &ReceiveConfig{BackoffMultiplier: 2, MaxTimeout: 64 * time.Second},
			want:    64 * time.Second,
		},
		{
			name:    "no cap",
			current: 64 * time.Second,
			config:  &ReceiveConfig{BackoffMultiplier: 2},
			want:    128 * time.Second,
		},
		{
			name:    "fractional multiplier",
			current: 200 * time.Millisecond,
			config:  &ReceiveConfig{BackoffMultiplier: 1.5},
			want:    300 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, calculateNextTimeout(tt.current, tt.config))
		})
	}
}

func TestSleepWithContext(t *testing.T) {
	t.Parallel()

	t.Run("completes", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, sleepWithContext(context.Background(), time.Millisecond))
	})

	t.Run("zero duration", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, sleepWithContext(context.Background(), 0))
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		err := sleepWithContext(ctx, time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})
}
