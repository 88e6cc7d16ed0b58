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

// Package polling watches a printer's status in the background.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	capt "github.com/ZaparooProject/go-capt"
	"github.com/ZaparooProject/go-capt/internal/syncutil"
)

// Metrics tracks operational counters of a Monitor
type Metrics struct {
	PollCycles      int64         // Total number of polling cycles
	PollErrors      int64         // Number of failed polls
	StatusChanges   int64         // Number of status changes seen
	Recoveries      int64         // Number of successful recoveries
	LastPollLatency time.Duration // Duration of last status request
}

// Monitor polls a printer's status and reports changes through callbacks.
//
// The monitor shares the session with the caller. Use Exclusive to run a
// job on the session without status requests interleaving.
type Monitor struct {
	OnStatus    func(st capt.Status) error
	OnChange    func(old, st capt.Status) error
	OnReady     func()
	OnOffline   func(err error)
	config      *Config
	session     *capt.Session
	recoverer   SessionRecoverer
	pauseChan   chan struct{}
	resumeChan  chan struct{}
	ackChan     chan struct{}
	now         func() time.Time
	state       PrinterState
	stateMutex  syncutil.RWMutex
	exclusive   syncutil.Mutex
	pollCycles  atomic.Int64
	pollErrors  atomic.Int64
	changes     atomic.Int64
	recoveries  atomic.Int64
	lastLatency atomic.Int64
	closed      atomic.Bool
	isPaused    atomic.Bool
}

// NewMonitor creates a status monitor for session
func NewMonitor(session *capt.Session, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Monitor{
		session:    session,
		config:     config,
		now:        time.Now,
		pauseChan:  make(chan struct{}, 1),
		resumeChan: make(chan struct{}, 1),
		ackChan:    make(chan struct{}, 1),
	}
}

// SetRecoverer installs the strategy used after fatal errors and host
// sleep. Without one a fatal error stops the monitor.
func (m *Monitor) SetRecoverer(r SessionRecoverer) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.recoverer = r
}

// SetOnStatus sets the callback run after every successful poll.
func (m *Monitor) SetOnStatus(callback func(capt.Status) error) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.OnStatus = callback
}

// SetOnChange sets the callback run when the status record changes.
func (m *Monitor) SetOnChange(callback func(old, st capt.Status) error) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.OnChange = callback
}

// SetOnReady sets the callback run when the printer leaves the busy state.
func (m *Monitor) SetOnReady(callback func()) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.OnReady = callback
}

// SetOnOffline sets the callback run when a reachable printer stops answering.
func (m *Monitor) SetOnOffline(callback func(error)) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.OnOffline = callback
}

// State returns a copy of the tracked printer state
func (m *Monitor) State() PrinterState {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return m.state
}

// Session returns the session currently polled. It changes after a
// recovery that reopened the printer.
func (m *Monitor) Session() *capt.Session {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return m.session
}

// Metrics returns current operational counters
func (m *Monitor) Metrics() Metrics {
	return Metrics{
		PollCycles:      m.pollCycles.Load(),
		PollErrors:      m.pollErrors.Load(),
		StatusChanges:   m.changes.Load(),
		Recoveries:      m.recoveries.Load(),
		LastPollLatency: time.Duration(m.lastLatency.Load()),
	}
}

// CurrentInterval returns the pause before the next poll
func (m *Monitor) CurrentInterval() time.Duration {
	if m.config.IdleInterval <= 0 {
		return m.config.PollInterval
	}
	m.stateMutex.RLock()
	stable := m.state.StableFor(m.now())
	condition := m.state.Condition
	m.stateMutex.RUnlock()

	if condition == ConditionReady && stable >= m.config.IdleAfter {
		return m.config.IdleInterval
	}
	return m.config.PollInterval
}

// Start polls until ctx ends, the monitor is closed, a callback fails or
// the printer cannot be reached any more.
func (m *Monitor) Start(ctx context.Context) error {
	if m.config.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", capt.ErrInvalidConfig)
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	var lastPoll time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.pauseChan:
			if err := m.handlePauseSignal(ctx); err != nil {
				return err
			}
			if m.closed.Load() {
				return nil
			}
			continue
		case <-timer.C:
		}

		if m.closed.Load() {
			return nil
		}

		if !lastPoll.IsZero() {
			elapsed := m.now().Sub(lastPoll)
			if m.config.SleepRecovery.DetectSleep(elapsed, m.CurrentInterval()) {
				capt.Debugf("host sleep detected (%v since last poll)", elapsed)
				m.recover(ctx)
			}
		}
		lastPoll = m.now()

		if err := m.pollOnce(ctx); err != nil {
			return err
		}
		timer.Reset(m.CurrentInterval())
	}
}

// Close stops the monitor after the current poll. The session is left open.
func (m *Monitor) Close() error {
	m.closed.Store(true)
	m.isPaused.Store(false)

	// Drain pause/resume channels to prevent future state corruption
	select {
	case <-m.pauseChan:
	default:
	}
	select {
	case <-m.resumeChan:
	default:
	}
	// wake a loop waiting for resume
	select {
	case m.resumeChan <- struct{}{}:
	default:
	}
	return nil
}

// pollOnce performs one status request and processes the result
func (m *Monitor) pollOnce(ctx context.Context) error {
	session := m.Session()

	start := m.now()
	var st capt.Status
	var err error
	if m.config.Extended {
		st, err = session.GetExtendedStatus(ctx)
	} else {
		st, err = session.GetStatus(ctx)
	}
	m.pollCycles.Add(1)
	m.lastLatency.Store(int64(m.now().Sub(start)))

	if err != nil {
		return m.handlePollingError(ctx, err)
	}
	return m.processStatus(st)
}

// handlePollingError records a failed poll. Fatal errors trigger recovery
// when a recoverer is installed and stop the monitor otherwise.
func (m *Monitor) handlePollingError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.pollErrors.Add(1)

	m.stateMutex.Lock()
	wentOffline := m.state.TransitionToOffline(err, m.now())
	failures := m.state.ConsecutiveErrors
	onOffline := m.OnOffline
	recoverer := m.recoverer
	m.stateMutex.Unlock()

	capt.Debugf("status poll failed (%d in a row): %v", failures, err)
	if wentOffline && onOffline != nil {
		m.safeCall("OnOffline", func() error {
			onOffline(err)
			return nil
		})
	}

	if m.config.MaxConsecutiveErrors > 0 && failures >= m.config.MaxConsecutiveErrors {
		return fmt.Errorf("%w: %w", ErrTooManyErrors, err)
	}
	if capt.IsFatal(err) {
		if recoverer == nil {
			return fmt.Errorf("status poll failed: %w", err)
		}
		m.recover(ctx)
	}
	return nil
}

// recover runs the recoverer and adopts its session on success
func (m *Monitor) recover(ctx context.Context) {
	m.stateMutex.RLock()
	recoverer := m.recoverer
	m.stateMutex.RUnlock()
	if recoverer == nil {
		return
	}

	if err := recoverer.AttemptRecovery(ctx); err != nil {
		capt.Debugf("printer recovery failed: %v", err)
		return
	}
	m.recoveries.Add(1)

	m.stateMutex.Lock()
	m.session = recoverer.Session()
	m.stateMutex.Unlock()
}

// processStatus updates the state and runs the callbacks
func (m *Monitor) processStatus(st capt.Status) error {
	m.stateMutex.Lock()
	old := m.state.Status
	wasBusy := m.state.Condition == ConditionBusy
	changed := m.state.TransitionToStatus(st, m.now())
	ready := wasBusy && m.state.Condition == ConditionReady
	onStatus := m.OnStatus
	onChange := m.OnChange
	onReady := m.OnReady
	m.stateMutex.Unlock()

	// Call callbacks outside the lock to avoid potential deadlocks
	if onStatus != nil {
		if err := m.safeCall("OnStatus", func() error { return onStatus(st) }); err != nil {
			return err
		}
	}
	if changed {
		m.changes.Add(1)
		if onChange != nil {
			if err := m.safeCall("OnChange", func() error { return onChange(old, st) }); err != nil {
				return err
			}
		}
	}
	if ready && onReady != nil {
		return m.safeCall("OnReady", func() error {
			onReady()
			return nil
		})
	}
	return nil
}

// safeCall executes a callback with panic recovery
func (*Monitor) safeCall(name string, fn func() error) error {
	var callbackErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				callbackErr = fmt.Errorf("%s callback panicked: %v", name, r)
			}
		}()
		callbackErr = fn()
	}()
	if callbackErr != nil {
		return fmt.Errorf("%s callback failed: %w", name, callbackErr)
	}
	return nil
}

// Pause temporarily stops the polling loop
func (m *Monitor) Pause() {
	if m.isPaused.CompareAndSwap(false, true) {
		select {
		case m.pauseChan <- struct{}{}:
		default:
		}
	}
}

// Resume restarts the polling loop after a pause
func (m *Monitor) Resume() {
	if m.isPaused.CompareAndSwap(true, false) {
		select {
		case m.resumeChan <- struct{}{}:
		default:
		}
	}
}

// pauseWithAck pauses polling and waits until the loop is idle
func (m *Monitor) pauseWithAck(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !m.isPaused.CompareAndSwap(false, true) {
		return nil
	}

	select {
	case m.pauseChan <- struct{}{}:
		// No acknowledgment means no polling loop is running
		ackTimeout := time.NewTimer(100 * time.Millisecond)
		defer ackTimeout.Stop()

		select {
		case <-m.ackChan:
			return nil
		case <-ackTimeout.C:
			return nil
		case <-ctx.Done():
			m.isPaused.Store(false)
			return ctx.Err()
		}
	case <-ctx.Done():
		m.isPaused.Store(false)
		return ctx.Err()
	default:
		return nil
	}
}

// handlePauseSignal sends acknowledgment and waits for resume
func (m *Monitor) handlePauseSignal(ctx context.Context) error {
	select {
	case m.ackChan <- struct{}{}:
	default:
	}
	select {
	case <-m.resumeChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Exclusive pauses polling, runs fn on the current session and resumes.
// Calls are serialised.
func (m *Monitor) Exclusive(ctx context.Context, fn func(context.Context, *capt.Session) error) error {
	m.exclusive.Lock()
	defer m.exclusive.Unlock()

	if err := m.pauseWithAck(ctx); err != nil {
		return fmt.Errorf("failed to pause polling: %w", err)
	}
	defer m.Resume()

	err := fn(ctx, m.Session())
	if err != nil && errors.Is(err, context.Canceled) {
		// a cancelled job leaves the printer mid-transaction
		if cleanupErr := m.Session().OnJobCancelled(context.WithoutCancel(ctx)); cleanupErr != nil {
			capt.Debugf("cleanup after cancelled job failed: %v", cleanupErr)
		}
	}
	return err
}
