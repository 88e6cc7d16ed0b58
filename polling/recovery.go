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
	"fmt"
	"time"

	capt "github.com/ZaparooProject/go-capt"
	"github.com/ZaparooProject/go-capt/internal/syncutil"
)

// SessionRecoverer brings a monitored printer back after host sleep or
// a fatal session error.
type SessionRecoverer interface {
	// AttemptRecovery returns nil once Session answers status queries again
	AttemptRecovery(ctx context.Context) error

	// Session returns the session to poll, which changes after a reopen
	Session() *capt.Session
}

// ReopenFunc opens a fresh session to the same printer
type ReopenFunc func(ctx context.Context) (*capt.Session, error)

// DefaultRecoverer tries, on each attempt, two things in order:
//
//  1. resynchronise the open session: finish or drain whatever
//     transaction the interruption left behind, then query status
//  2. close the session and open a new one with ReopenFunc, keeping it
//     only if the printer answers a status query
type DefaultRecoverer struct {
	session     *capt.Session
	reopen      ReopenFunc
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewDefaultRecoverer returns a recoverer for session. With a nil reopen
// only resynchronisation is tried. Zero backoff and maxAttempts select
// 500ms and 3.
func NewDefaultRecoverer(
	session *capt.Session,
	reopen ReopenFunc,
	backoff time.Duration,
	maxAttempts int,
) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{
		session:     session,
		reopen:      reopen,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

func (r *DefaultRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		if lastErr = r.resync(ctx); lastErr == nil {
			return nil
		}
		capt.Debugf("recovery attempt %d: resync failed: %v", attempt+1, lastErr)

		if r.reopen == nil {
			continue
		}
		if lastErr = r.reconnect(ctx); lastErr == nil {
			return nil
		}
		capt.Debugf("recovery attempt %d: reopen failed: %v", attempt+1, lastErr)
	}
	return lastErr
}

func (r *DefaultRecoverer) resync(ctx context.Context) error {
	if r.session.IsClosed() {
		return capt.ErrSessionClosed
	}
	if err := r.session.OnJobCancelled(ctx); err != nil {
		return err
	}
	_, err := r.session.GetStatus(ctx)
	return err
}

func (r *DefaultRecoverer) reconnect(ctx context.Context) error {
	_ = r.session.Close()

	session, err := r.reopen(ctx)
	if err != nil {
		return err
	}
	if _, err := session.GetStatus(ctx); err != nil {
		_ = session.Close()
		return fmt.Errorf("reopened printer does not answer: %w", err)
	}
	r.session = session
	return nil
}

// Session returns the current session
func (r *DefaultRecoverer) Session() *capt.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}
