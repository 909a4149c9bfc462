package clock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonotonicStrictlyIncreasing(t *testing.T) {
	src := Monotonic()
	prev := src()
	for i := 0; i < 1000; i++ {
		next := src()
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestMonotonicConcurrentUniqueness(t *testing.T) {
	src := Monotonic()
	const goroutines = 50
	const perGoroutine = 200

	seen := make(chan Tick, goroutines*perGoroutine)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				seen <- src()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[Tick]struct{}, goroutines*perGoroutine)
	for tick := range seen {
		_, dup := unique[tick]
		assert.False(t, dup, "tick %d issued twice", tick)
		unique[tick] = struct{}{}
	}
	assert.Len(t, unique, goroutines*perGoroutine)
}
