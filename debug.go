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
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// debugEnabled turns on console debug output. The session log gets debug
// lines regardless.
var debugEnabled atomic.Bool

// errorWriter receives ERROR and ALERT lines. Print filters and CUPS
// backends read these from stderr.
var errorWriter io.Writer = os.Stderr

func init() {
	if os.Getenv("CAPT_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled.Store(true)
	}
}

// Debugf logs a debug line to the session log and, in debug mode, to
// stdout.
func Debugf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	activeLog.line("DEBUG", message)
	if debugEnabled.Load() {
		_, _ = fmt.Printf("DEBUG: CAPT: %s\n", message)
	}
}

// Debugln is Debugf with fmt.Sprintln formatting.
func Debugln(args ...any) {
	message := fmt.Sprintln(args...)
	message = message[:len(message)-1]
	activeLog.line("DEBUG", message)
	if debugEnabled.Load() {
		_, _ = fmt.Printf("DEBUG: CAPT: %s\n", message)
	}
}

// errorf reports a condition that ends the current session.
func errorf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	activeLog.line("ERROR", message)
	_, _ = fmt.Fprintf(errorWriter, "ERROR: CAPT: %s\n", message)
}

// alertf reports an internal driver bug.
func alertf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	activeLog.line("ALERT", message)
	_, _ = fmt.Fprintf(errorWriter, "ALERT: bug in CAPT driver, %s\n", message)
}

// SetDebugEnabled switches console debug output on or off.
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}
