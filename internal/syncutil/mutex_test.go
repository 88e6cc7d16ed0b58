//go:build !deadlock

package syncutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMutex_Exclusive(t *testing.T) {
	t.Parallel()

	var mu Mutex
	mu.Lock()
	assert.False(t, mu.TryLock())
	mu.Unlock()
	assert.True(t, mu.TryLock())
	mu.Unlock()
}

func TestRWMutex_SharedReaders(t *testing.T) {
	t.Parallel()

	var mu RWMutex
	mu.RLock()
	mu.RLock()
	assert.False(t, mu.TryLock())
	mu.RUnlock()
	mu.RUnlock()
	assert.True(t, mu.TryLock())
	mu.Unlock()
}

func TestIOHoldTimeout_CoversLongReplies(t *testing.T) {
	t.Parallel()

	assert.GreaterOrEqual(t, IOHoldTimeout, 64*time.Second)
}
