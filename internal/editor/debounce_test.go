package editor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_CoalescesBursts(t *testing.T) {
	var calls atomic.Int32
	d := newDebouncer(20*time.Millisecond, func() { calls.Add(1) })

	for range 10 {
		d.Trigger()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 2*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, d.Pending())
}

func TestDebouncer_FlushAndStop(t *testing.T) {
	var calls atomic.Int32
	d := newDebouncer(time.Hour, func() { calls.Add(1) })

	d.Flush()
	assert.Equal(t, int32(0), calls.Load(), "nothing pending")

	d.Trigger()
	assert.True(t, d.Pending())
	d.Flush()
	assert.Equal(t, int32(1), calls.Load())

	d.Trigger()
	d.Stop()
	d.Flush()
	assert.Equal(t, int32(1), calls.Load(), "stopped call never runs")
}
