package canvas

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"sync"
)

// Allocator hands out node ids of the form "<type>-<n>". Counters are kept
// per type and only ever increase until Reset.
type Allocator struct {
	mu       sync.Mutex
	counters map[string]int
}

// NewAllocator creates an allocator seeded with the given counters.
func NewAllocator(counters map[string]int) *Allocator {
	a := &Allocator{counters: make(map[string]int)}
	for k, v := range counters {
		if v > 0 {
			a.counters[k] = v
		}
	}
	return a
}

// Next returns the next id for nodeType.
func (a *Allocator) Next(nodeType string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters[nodeType]++
	return fmt.Sprintf("%s-%d", nodeType, a.counters[nodeType])
}

// Observe bumps the counter for nodeType so that an existing id of the
// form "<type>-<n>" is never handed out again.
func (a *Allocator) Observe(nodeType, id string) {
	prefix := nodeType + "-"
	if !strings.HasPrefix(id, prefix) {
		return
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
	if err != nil || n <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if n > a.counters[nodeType] {
		a.counters[nodeType] = n
	}
}

// Counters returns a copy of the per-type counters.
func (a *Allocator) Counters() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.counters)
}

// Reset forgets every counter.
func (a *Allocator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters = make(map[string]int)
}

// Restore replaces the counters wholesale.
func (a *Allocator) Restore(counters map[string]int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters = make(map[string]int, len(counters))
	for k, v := range counters {
		if v > 0 {
			a.counters[k] = v
		}
	}
}
