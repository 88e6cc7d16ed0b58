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
	"errors"
	"fmt"
	"time"

	capt "github.com/ZaparooProject/go-capt"
)

// Condition is the coarse printer condition derived from polling
type Condition int

const (
	// ConditionUnknown means no poll has completed yet
	ConditionUnknown Condition = iota
	// ConditionReady means the printer answered and is not busy
	ConditionReady
	// ConditionBusy means the printer answered with the busy flag set
	ConditionBusy
	// ConditionOffline means the last poll failed
	ConditionOffline
)

func (c Condition) String() string {
	switch c {
	case ConditionUnknown:
		return "unknown"
	case ConditionReady:
		return "ready"
	case ConditionBusy:
		return "busy"
	case ConditionOffline:
		return "offline"
	default:
		return fmt.Sprintf("Condition(%d)", int(c))
	}
}

// PrinterState tracks what the monitor knows about a printer
type PrinterState struct {
	LastPoll          time.Time
	LastChange        time.Time
	LastErr           error
	Status            capt.Status
	Condition         Condition
	ConsecutiveErrors int
	Polled            bool
}

// ErrTooManyErrors is returned by Start when MaxConsecutiveErrors polls in
// a row failed
var ErrTooManyErrors = errors.New("too many consecutive polling errors")

// conditionOf maps a status record to a condition
func conditionOf(st capt.Status) Condition {
	if st.Has(capt.FlagBusy) {
		return ConditionBusy
	}
	return ConditionReady
}

// TransitionToStatus records a successful poll and reports whether the
// status record differs from the previous one
func (ps *PrinterState) TransitionToStatus(st capt.Status, now time.Time) bool {
	changed := !ps.Polled || ps.Status != st
	ps.Status = st
	ps.Condition = conditionOf(st)
	ps.LastPoll = now
	ps.LastErr = nil
	ps.ConsecutiveErrors = 0
	ps.Polled = true
	if changed {
		ps.LastChange = now
	}
	return changed
}

// TransitionToOffline records a failed poll and reports whether the
// printer was reachable before
func (ps *PrinterState) TransitionToOffline(err error, now time.Time) bool {
	wasOnline := ps.Condition != ConditionOffline
	ps.Condition = ConditionOffline
	ps.LastPoll = now
	ps.LastErr = err
	ps.ConsecutiveErrors++
	return wasOnline
}

// StableFor reports how long the status has been unchanged
func (ps *PrinterState) StableFor(now time.Time) time.Duration {
	if !ps.Polled || ps.Condition == ConditionOffline {
		return 0
	}
	return now.Sub(ps.LastChange)
}
