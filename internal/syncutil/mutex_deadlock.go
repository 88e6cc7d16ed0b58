//go:build deadlock

// Package syncutil provides the mutex types shared by the session, the
// transports and the status monitor. This file is compiled when building
// with -tags=deadlock.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// IOHoldTimeout is how long a lock may be held before it is reported. The
// session I/O lock stays held across a whole reply wait, and a busy printer
// can take several backed-off receive attempts to answer.
const IOHoldTimeout = 5 * time.Minute

func init() {
	deadlock.Opts.DeadlockTimeout = IOHoldTimeout
}

// Mutex wraps deadlock.Mutex for deadlock detection.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex wraps deadlock.RWMutex for deadlock detection.
type RWMutex struct {
	deadlock.RWMutex
}
