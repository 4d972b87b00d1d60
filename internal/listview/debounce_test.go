package listview

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var fired atomic.Int32
	var last atomic.Value

	for _, v := range []string{"a", "ab", "abc"} {
		d.Trigger(func() {
			fired.Add(1)
			last.Store(v)
		})
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 2*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, "abc", last.Load())
	assert.False(t, d.Pending())
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var fired atomic.Int32
	d.Trigger(func() { fired.Add(1) })
	assert.True(t, d.Pending())
	assert.True(t, d.Cancel())
	assert.False(t, d.Cancel())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestDebouncerFlush(t *testing.T) {
	d := NewDebouncer(time.Hour)
	var fired atomic.Int32
	d.Trigger(func() { fired.Add(1) })
	assert.True(t, d.Flush())
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, d.Flush())
}

func TestDefaultDebounce(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, NewDebouncer(0).Delay())
	assert.Equal(t, DefaultDebounce, New[order](ordersSchema, &recordingFetcher{}).debounce.Delay())
}
