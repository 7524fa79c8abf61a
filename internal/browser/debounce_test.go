package browser

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCoalesceSingleCallerProceeds(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	assert.True(t, d.Coalesce(context.Background()))
}

func TestCoalesceOnlyLastCallerProceeds(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var mu sync.Mutex
	results := make(map[int]bool)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok := d.Coalesce(context.Background())
			mu.Lock()
			results[i] = ok
			mu.Unlock()
		}(i)
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	assert.False(t, results[0])
	assert.False(t, results[1])
	assert.True(t, results[2])
}

func TestCoalesceSequentialBurstsBothProceed(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	assert.True(t, d.Coalesce(context.Background()))
	assert.True(t, d.Coalesce(context.Background()))
}

func TestCoalesceCancelledContext(t *testing.T) {
	d := NewDebouncer(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, d.Coalesce(ctx))
}
