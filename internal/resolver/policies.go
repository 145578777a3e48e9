package resolver

import (
	"sort"

	"github.com/angeloszaimis/metric-balancer/internal/backend"
)

// leastLoadedUp returns the healthy backend with the lowest arrival rate,
// tie-broken by server index order, or nil when none are up.
func (r *Resolver) leastLoadedUp() *backend.Backend {
	rates := make([]float64, len(r.servers))
	order := make([]int, len(r.servers))
	for i, b := range r.servers {
		rates[i] = b.ArrivalRate()
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		return rates[order[a]] < rates[order[b]]
	})

	for _, i := range order {
		if r.servers[i].IsUp() {
			return r.servers[i]
		}
	}
	return nil
}

// randomUp samples uniform server-index slots until it finds a healthy
// backend that is not the excluded one, giving up after N draws.
func (r *Resolver) randomUp(except *backend.Backend) *backend.Backend {
	n := len(r.servers)
	if n == 0 {
		return nil
	}

	for attempt := 0; attempt < n; attempt++ {
		b := r.servers[r.intn(n)]
		if !b.IsUp() {
			continue
		}
		if except != nil && b.Equal(except) {
			continue
		}
		return b
	}
	return nil
}

// roundRobinLocked stripes new metrics across the server index keyed by the
// current assignment count, falling back to a random healthy backend when the
// slot is down. Callers must hold mu.
func (r *Resolver) roundRobinLocked() *backend.Backend {
	if len(r.servers) == 0 {
		return nil
	}

	b := r.servers[len(r.metricToHost)%len(r.servers)]
	if b.IsUp() {
		return b
	}
	return r.randomUp(nil)
}

// firstUp scans the server index in order for any healthy backend.
func (r *Resolver) firstUp() *backend.Backend {
	for _, b := range r.servers {
		if b.IsUp() {
			return b
		}
	}
	return nil
}
