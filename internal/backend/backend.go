package backend

import (
	"net"
	"strconv"
	"sync"

	"github.com/angeloszaimis/metric-balancer/internal/rate"
)

// Backend represents a single downstream metric-ingest server addressed by
// host and TCP port. Liveness is mutated only by the health checker; the
// arrival-rate tracker is marked each time the resolver picks the backend on
// the ingest path.
type Backend struct {
	host    string
	tcpPort int
	tracker rate.Tracker

	mutex sync.Mutex
	up    bool
}

// New creates a Backend for the given host and TCP port. The backend starts
// in the up state; the health checker corrects it on its first probe.
func New(host string, tcpPort int, tracker rate.Tracker) *Backend {
	return &Backend{
		host:    host,
		tcpPort: tcpPort,
		tracker: tracker,
		up:      true,
	}
}

// Host returns the backend host name.
func (b *Backend) Host() string {
	return b.host
}

// TCPPort returns the backend TCP port.
func (b *Backend) TCPPort() int {
	return b.tcpPort
}

// Addr renders the backend address as host:port.
func (b *Backend) Addr() string {
	return net.JoinHostPort(b.host, strconv.Itoa(b.tcpPort))
}

// IsUp returns true if the backend is currently considered alive.
func (b *Backend) IsUp() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.up
}

// SetUp updates the backend's liveness.
// Returns true if the status changed, false if it was already in that state.
func (b *Backend) SetUp(up bool) (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.up == up {
		return false
	}

	b.up = up
	return true
}

// Arrived records one arrival on the backend's arrival-rate tracker.
func (b *Backend) Arrived() {
	b.tracker.Arrived()
}

// ArrivalRate returns the backend's current arrival rate in lines per second.
func (b *Backend) ArrivalRate() float64 {
	return b.tracker.Rate()
}

// Equal reports whether two backends address the same server.
func (b *Backend) Equal(other *Backend) bool {
	if other == nil {
		return false
	}
	return b.host == other.host && b.tcpPort == other.tcpPort
}
