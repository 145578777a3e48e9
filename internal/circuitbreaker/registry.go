package circuitbreaker

import (
	"sync"
	"time"
)

// Registry keeps one breaker per backend address.
type Registry struct {
	mutex     sync.RWMutex
	breakers  map[string]*CircuitBreaker
	threshold int
	timeout   time.Duration
}

func NewRegistry(threshold int, timeout time.Duration) *Registry {
	return &Registry{
		breakers:  make(map[string]*CircuitBreaker),
		threshold: threshold,
		timeout:   timeout,
	}
}

// Breaker returns the breaker for the given backend address, creating it on
// first use.
func (r *Registry) Breaker(addr string) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[addr]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[addr]; exists {
		return cb
	}

	cb = NewCircuitBreaker(r.threshold, r.timeout)
	r.breakers[addr] = cb
	return cb
}

// Stats returns the current state of every known breaker.
func (r *Registry) Stats() map[string]State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]State, len(r.breakers))
	for addr, cb := range r.breakers {
		stats[addr] = cb.State()
	}
	return stats
}
