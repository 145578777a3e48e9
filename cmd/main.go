package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/metric-balancer/config"
	"github.com/angeloszaimis/metric-balancer/internal/backend"
	"github.com/angeloszaimis/metric-balancer/internal/circuitbreaker"
	"github.com/angeloszaimis/metric-balancer/internal/healthcheck"
	"github.com/angeloszaimis/metric-balancer/internal/metrics"
	"github.com/angeloszaimis/metric-balancer/internal/pool"
	"github.com/angeloszaimis/metric-balancer/internal/rate"
	"github.com/angeloszaimis/metric-balancer/internal/relay"
	"github.com/angeloszaimis/metric-balancer/internal/resolver"
	"github.com/angeloszaimis/metric-balancer/internal/tcpserver"
	"github.com/angeloszaimis/metric-balancer/pkg/logger"
)

const (
	dialFailureThreshold = 3
	dialBreakerReset     = 30 * time.Second
	eventBufferSize      = 1024
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(eventBufferSize, log)
	collector.Start(ctx)

	backends, err := initializeBackends(ctx, cfg, log, collector)
	if err != nil {
		log.Error("Failed to initialize backends", slog.Any("err", err))
		os.Exit(1)
	}

	sched, err := rebalanceSchedule(cfg.Rebalance)
	if err != nil {
		log.Error("Failed to parse rebalance timings", slog.Any("err", err))
		os.Exit(1)
	}

	res := resolver.New(log, backends, cfg.Assignments.File, sched)
	res.Start(ctx)

	dialTimeout, err := time.ParseDuration(cfg.Pool.DialTimeout)
	if err != nil {
		log.Error("Failed to parse pool dial timeout", slog.Any("err", err))
		os.Exit(1)
	}

	breakers := circuitbreaker.NewRegistry(dialFailureThreshold, dialBreakerReset)
	clientPool := pool.New(log, cfg.Pool.MaxIdle, dialTimeout, breakers)
	defer clientPool.Close()

	relayHandler := relay.NewHandler(log, res, poolAdapter{clientPool}, collector)

	ingest, err := tcpserver.New(log, cfg.Server.Address, relayHandler, collector)
	if err != nil {
		log.Error("Failed to create ingest server", slog.Any("err", err))
		os.Exit(1)
	}

	admin, err := setupAdminServer(cfg.Admin.Address, collector, res, breakers)
	if err != nil {
		log.Error("Failed to create admin server", slog.Any("err", err))
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ingest.Start(gctx)
	})

	g.Go(func() error {
		return admin.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")
		if err := ingest.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down ingest server", slog.Any("err", err))
		}
		if err := admin.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down admin server", slog.Any("err", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Error running balancer", slog.Any("err", err))
		os.Exit(1)
	}

	// pins younger than the persistence period would otherwise be lost
	if err := res.WriteAssignments(); err != nil {
		log.Error("Failed to persist assignments on shutdown", slog.Any("err", err))
	}
}

func initializeBackends(ctx context.Context, cfg *config.Config, log *slog.Logger, collector *metrics.Collector) ([]*backend.Backend, error) {
	healthCheckInterval, err := time.ParseDuration(cfg.HealthCheck.Interval)
	if err != nil {
		return nil, err
	}

	var backends []*backend.Backend

	for _, bc := range cfg.Backends {
		b := backend.New(bc.Host, bc.TCPPort, rate.NewTracker())
		backends = append(backends, b)
		go healthcheck.Run(ctx, b, healthCheckInterval, log, collector)
	}

	if len(backends) == 0 {
		return nil, os.ErrInvalid
	}

	return backends, nil
}

func rebalanceSchedule(rc config.RebalanceConfig) (resolver.Schedule, error) {
	sched := resolver.DefaultSchedule()

	parse := func(s string, into *time.Duration) error {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*into = d
		return nil
	}

	for _, step := range []struct {
		value string
		into  *time.Duration
	}{
		{rc.FullDelay, &sched.FullRebalanceDelay},
		{rc.Delay, &sched.BalanceDelay},
		{rc.Period, &sched.BalancePeriod},
		{rc.Window, &sched.BalanceWindow},
		{rc.PersistDelay, &sched.PersistDelay},
		{rc.PersistPeriod, &sched.PersistPeriod},
	} {
		if err := parse(step.value, step.into); err != nil {
			return resolver.Schedule{}, err
		}
	}

	return sched, nil
}

// poolAdapter narrows the concrete pool to the relay's interface.
type poolAdapter struct {
	pool *pool.Pool
}

func (p poolAdapter) Borrow(b *backend.Backend) (relay.Client, error) {
	client, err := p.pool.Borrow(b)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (p poolAdapter) Return(b *backend.Backend, c relay.Client) {
	if client, ok := c.(*pool.Client); ok {
		p.pool.Return(b, client)
	}
}
