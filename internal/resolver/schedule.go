package resolver

import (
	"context"
	"log/slog"
	"time"
)

// Start launches the three background tasks: a one-shot full rebalance, the
// periodic incremental balance gated by the balance window, and periodic
// assignment persistence. Every task logs and swallows its own failures; none
// of them can kill the schedule. All tasks stop when ctx is cancelled.
func (r *Resolver) Start(ctx context.Context) {
	go r.runOnce(ctx, r.sched.FullRebalanceDelay, "full-rebalance", r.RebalanceAllMetrics)

	go r.runEvery(ctx, r.sched.BalanceDelay, r.sched.BalancePeriod, "balance", func() {
		if r.clock.Now().Before(r.balanceUntil) {
			r.Balance()
		}
	})

	go r.runEvery(ctx, r.sched.PersistDelay, r.sched.PersistPeriod, "persist-assignments", func() {
		if err := r.WriteAssignments(); err != nil {
			r.log.Error("failed to persist assignments", slog.Any("err", err))
		}
	})
}

func (r *Resolver) runOnce(ctx context.Context, delay time.Duration, name string, task func()) {
	select {
	case <-ctx.Done():
		return
	case <-r.clock.After(delay):
		r.runTask(name, task)
	}
}

func (r *Resolver) runEvery(ctx context.Context, delay, period time.Duration, name string, task func()) {
	select {
	case <-ctx.Done():
		return
	case <-r.clock.After(delay):
	}
	r.runTask(name, task)

	ticker := r.clock.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.runTask(name, task)
		}
	}
}

func (r *Resolver) runTask(name string, task func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("background task failed",
				slog.String("task", name),
				slog.Any("panic", p))
		}
	}()
	task()
}
