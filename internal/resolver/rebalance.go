package resolver

import (
	"log/slog"
	"math"
	"sort"

	"github.com/angeloszaimis/metric-balancer/internal/backend"
)

type metricRate struct {
	name string
	rate float64
}

// rateSortedLocked returns (metric, rate) pairs ascending by rate. Equal
// rates keep a stable name order so equal-rate metrics never collapse.
// Callers must hold rmu.
func (r *Resolver) rateSortedLocked() []metricRate {
	sorted := make([]metricRate, 0, len(r.trackers))
	for name, tracker := range r.trackers {
		sorted = append(sorted, metricRate{name: name, rate: tracker.Rate()})
	}

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].rate != sorted[j].rate {
			return sorted[i].rate < sorted[j].rate
		}
		return sorted[i].name < sorted[j].name
	})
	return sorted
}

// RebalanceAllMetrics drops every pin and re-stripes the full metric
// population across the server index in ascending rate order. Every metric
// pinned before the call is pinned after it; a metric keeps its old backend
// only when no healthy backend is available for its slot.
func (r *Resolver) RebalanceAllMetrics() {
	r.rmu.Lock()
	defer r.rmu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := make([]metricRate, 0, len(r.metricToHost))
	for metric := range r.metricToHost {
		var pinned float64
		if tracker, ok := r.trackers[metric]; ok {
			pinned = tracker.Rate()
		}
		sorted = append(sorted, metricRate{name: metric, rate: pinned})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].rate != sorted[j].rate {
			return sorted[i].rate < sorted[j].rate
		}
		return sorted[i].name < sorted[j].name
	})

	old := r.metricToHost
	r.metricToHost = make(map[string]*backend.Backend, len(old))
	for _, entry := range sorted {
		b := r.roundRobinLocked()
		if b == nil {
			b = old[entry.name]
		}
		r.metricToHost[entry.name] = b
	}

	r.log.Info("full rebalance complete", slog.Int("metrics", len(r.metricToHost)))
}

// Balance nudges load from the busiest healthy backend toward the least
// loaded one. It moves at most round(0.20 * metrics / servers) above-median
// metrics currently pinned to the busiest backend, stopping once a tenth of
// the high-side imbalance has been shed. A no-op while the busiest backend is
// within 5% of the average rate.
func (r *Resolver) Balance() {
	r.log.Info("rebalancing begin")

	var total float64
	var mostUsed, leastUsed *backend.Backend
	var highest, lowest float64
	for _, b := range r.servers {
		arrivalRate := b.ArrivalRate()
		total += arrivalRate
		if !b.IsUp() {
			continue
		}
		if leastUsed == nil || arrivalRate < lowest {
			leastUsed = b
			lowest = arrivalRate
		}
		if mostUsed == nil || arrivalRate > highest {
			mostUsed = b
			highest = arrivalRate
		}
	}

	if mostUsed == nil {
		r.log.Warn("rebalancing skipped, no backends up")
		return
	}

	average := total / float64(len(r.servers))
	r.log.Info("rebalancing rates",
		slog.Float64("high", highest),
		slog.Float64("avg", average),
		slog.Float64("low", lowest))

	if highest <= average*1.05 {
		r.log.Info("rebalancing end", slog.Int("reassigned", 0))
		return
	}

	deltaHigh := (highest - average) * 0.1
	deltaLow := (average - lowest) * 0.1

	r.rmu.Lock()
	defer r.rmu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := r.rateSortedLocked()
	maxToReassign := int(math.Round(float64(len(sorted)) / float64(len(r.servers)) * 0.20))

	reassigned := 0
	// skip the lower half; cold metrics are not worth churning
	for i := len(sorted)/2 + 1; i < len(sorted) && deltaHigh > 0 && reassigned < maxToReassign; i++ {
		candidate := sorted[i]
		current := r.metricToHost[candidate.name]
		if current == nil || !current.Equal(mostUsed) {
			continue
		}

		r.metricToHost[candidate.name] = leastUsed
		deltaHigh -= candidate.rate
		deltaLow -= candidate.rate
		reassigned++

		r.log.Debug("reassigned metric",
			slog.String("metric", candidate.name),
			slog.String("from", mostUsed.Addr()),
			slog.String("to", leastUsed.Addr()))
	}

	r.log.Info("rebalancing end", slog.Int("reassigned", reassigned))
}
