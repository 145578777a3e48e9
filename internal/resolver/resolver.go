package resolver

import (
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/angeloszaimis/metric-balancer/internal/assignment"
	"github.com/angeloszaimis/metric-balancer/internal/backend"
	"github.com/angeloszaimis/metric-balancer/internal/rate"
)

// Schedule holds the timings of the three background tasks.
type Schedule struct {
	FullRebalanceDelay time.Duration
	BalanceDelay       time.Duration
	BalancePeriod      time.Duration
	BalanceWindow      time.Duration
	PersistDelay       time.Duration
	PersistPeriod      time.Duration
}

func DefaultSchedule() Schedule {
	return Schedule{
		FullRebalanceDelay: 5 * time.Minute,
		BalanceDelay:       10 * time.Minute,
		BalancePeriod:      2 * time.Minute,
		BalanceWindow:      30 * time.Minute,
		PersistDelay:       10 * time.Minute,
		PersistPeriod:      60 * time.Minute,
	}
}

// Resolver owns the metric-to-backend assignments. It pins each metric name
// to one backend, tracks per-metric and per-backend arrival rates on the
// ingest path, and periodically rebalances pins across healthy backends.
//
// Two mutexes guard the mutable state: mu for the metric-to-backend map and
// rmu for the tracker registry. When both are needed, rmu is locked first.
type Resolver struct {
	log     *slog.Logger
	clock   clockwork.Clock
	servers []*backend.Backend

	mu           sync.Mutex
	metricToHost map[string]*backend.Backend

	rmu      sync.Mutex
	trackers map[string]rate.Tracker

	newTracker func(metric string) rate.Tracker
	intn       func(n int) int

	assignmentFile string
	sched          Schedule
	balanceUntil   time.Time
}

// Option configures a Resolver at construction.
type Option func(*Resolver)

// WithClock substitutes the clock driving the rebalance schedule.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Resolver) { r.clock = clock }
}

// WithTrackerFactory substitutes the per-metric arrival-rate tracker
// constructor.
func WithTrackerFactory(f func(metric string) rate.Tracker) Option {
	return func(r *Resolver) { r.newTracker = f }
}

// WithRand substitutes the random slot sampler used by the random policy.
func WithRand(intn func(n int) int) Option {
	return func(r *Resolver) { r.intn = intn }
}

// New builds a Resolver over a fixed backend set. The backend order defines
// the server index used by the round-robin policy and by tie-breaks. If
// assignmentFile is non-empty, persisted assignments are loaded immediately;
// rows naming an unknown backend are rebound via round-robin.
func New(log *slog.Logger, servers []*backend.Backend, assignmentFile string, sched Schedule, opts ...Option) *Resolver {
	r := &Resolver{
		log:            log,
		clock:          clockwork.NewRealClock(),
		servers:        servers,
		metricToHost:   make(map[string]*backend.Backend),
		trackers:       make(map[string]rate.Tracker),
		newTracker:     func(string) rate.Tracker { return rate.NewTracker() },
		intn:           rand.IntN,
		assignmentFile: assignmentFile,
		sched:          sched,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.balanceUntil = r.clock.Now().Add(sched.BalanceWindow)

	if assignmentFile != "" {
		r.loadAssignments()
	}

	return r
}

// ResolveIngest returns the backend for one data line of the given metric,
// updating per-metric and per-backend arrival rates. An empty metric name is
// routed to a random healthy backend without recording an assignment.
func (r *Resolver) ResolveIngest(metric string) *backend.Backend {
	if metric != "" {
		r.rmu.Lock()
		tracker, ok := r.trackers[metric]
		if !ok {
			tracker = r.newTracker(metric)
			r.trackers[metric] = tracker
		}
		r.rmu.Unlock()
		tracker.Arrived()
	}

	var b *backend.Backend
	if metric == "" {
		b = r.randomUp(nil)
	} else {
		r.mu.Lock()
		b = r.metricToHost[metric]
		switch {
		case b == nil:
			b = r.roundRobinLocked()
			if b != nil {
				r.metricToHost[metric] = b
			}
		case !b.IsUp():
			if replacement := r.leastLoadedUp(); replacement != nil {
				r.log.Debug("reassigning metric from down backend",
					slog.String("metric", metric),
					slog.String("from", b.Addr()),
					slog.String("to", replacement.Addr()))
				r.metricToHost[metric] = replacement
				b = replacement
			}
		}
		r.mu.Unlock()
	}

	// if all else fails, take the first healthy backend in index order
	if b == nil || !b.IsUp() {
		if scanned := r.firstUp(); scanned != nil {
			b = scanned
			if metric != "" {
				r.mu.Lock()
				r.metricToHost[metric] = b
				r.mu.Unlock()
			}
		}
	}

	if b != nil {
		b.Arrived()
	}
	return b
}

// Resolve returns a backend for a non-ingest request. It never touches the
// arrival-rate trackers; on a miss or a down pin it falls back to a random
// healthy backend, and records a binding only when the final index-order scan
// had to run for a named metric.
func (r *Resolver) Resolve(metric string) *backend.Backend {
	var b *backend.Backend
	if metric != "" {
		r.mu.Lock()
		b = r.metricToHost[metric]
		r.mu.Unlock()
	}

	if b == nil || !b.IsUp() {
		b = r.randomUp(nil)
	}

	if b == nil || !b.IsUp() {
		if scanned := r.firstUp(); scanned != nil {
			b = scanned
			if metric != "" {
				r.mu.Lock()
				r.metricToHost[metric] = b
				r.mu.Unlock()
			}
		}
	}

	return b
}

// Assignments snapshots the current pins as persistable rows, sorted by
// metric name, each carrying the metric's current arrival rate.
func (r *Resolver) Assignments() []assignment.Row {
	r.rmu.Lock()
	defer r.rmu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := make([]assignment.Row, 0, len(r.metricToHost))
	for metric, b := range r.metricToHost {
		var pinnedRate float64
		if tracker, ok := r.trackers[metric]; ok {
			pinnedRate = tracker.Rate()
		}
		rows = append(rows, assignment.Row{
			Metric:  metric,
			Host:    b.Host(),
			TCPPort: b.TCPPort(),
			Rate:    pinnedRate,
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Metric < rows[j].Metric })
	return rows
}

// WriteAssignments persists the current pins to the assignment file.
func (r *Resolver) WriteAssignments() error {
	if r.assignmentFile == "" {
		return nil
	}
	return assignment.Write(r.assignmentFile, r.Assignments())
}

func (r *Resolver) loadAssignments() {
	rows := assignment.Read(r.assignmentFile, r.log)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		b := r.findHost(row.Host, row.TCPPort)
		if b == nil {
			b = r.roundRobinLocked()
		} else {
			r.log.Debug("restored assignment",
				slog.String("metric", row.Metric),
				slog.String("backend", b.Addr()))
		}
		if b != nil {
			r.metricToHost[row.Metric] = b
		}
	}

	r.log.Info("loaded assignments",
		slog.String("path", r.assignmentFile),
		slog.Int("metrics", len(r.metricToHost)))
}

func (r *Resolver) findHost(host string, tcpPort int) *backend.Backend {
	for _, b := range r.servers {
		if b.Host() == host && b.TCPPort() == tcpPort {
			return b
		}
	}
	return nil
}
