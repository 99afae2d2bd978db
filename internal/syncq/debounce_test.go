package syncq

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerCoalesces(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { fired.Add(1) })
	for range 10 {
		d.Trigger()
		time.Sleep(2 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestDebouncerCancel(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { fired.Add(1) })
	assert.False(t, d.Cancel())
	d.Trigger()
	assert.True(t, d.Cancel())
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fired.Load())
}
