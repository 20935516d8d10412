package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var start = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func TestFakeClock_StepsAfterEachRead(t *testing.T) {
	clock := NewFakeClock(start, time.Second)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start.Add(time.Second), clock.Now())
	assert.Equal(t, start.Add(2*time.Second), clock.Peek())
}

func TestFakeClock_ZeroStepFreezes(t *testing.T) {
	clock := NewFakeClock(start, 0)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())

	clock.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), clock.Now())
}

func TestFakeClock_SetAndReset(t *testing.T) {
	clock := NewFakeClock(start, time.Minute)
	later := start.Add(48 * time.Hour)

	clock.Set(later)
	assert.Equal(t, later, clock.Now())

	clock.Reset()
	assert.Equal(t, start, clock.Now())
}

func TestFakeClock_ThreadSafe(t *testing.T) {
	clock := NewFakeClock(start, time.Millisecond)
	const numGoroutines = 100

	var wg sync.WaitGroup
	seen := make(chan time.Time, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- clock.Now()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[time.Time]bool)
	for ts := range seen {
		unique[ts] = true
	}
	assert.Len(t, unique, numGoroutines)
	assert.Equal(t, start.Add(numGoroutines*time.Millisecond), clock.Peek())
}
