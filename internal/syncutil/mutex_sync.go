//go:build !deadlock

// Package syncutil provides the mutex types shared by the session, the
// transports and the status monitor. By default they are plain sync types.
// Build with -tags=deadlock to report locks held longer than IOHoldTimeout
// via github.com/sasha-s/go-deadlock.
package syncutil

import (
	"sync"
	"time"
)

// IOHoldTimeout is only enforced in deadlock builds.
const IOHoldTimeout = 5 * time.Minute

// Mutex wraps sync.Mutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.Mutex to expose its interface
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.RWMutex to expose its interface
type RWMutex struct {
	sync.RWMutex
}
