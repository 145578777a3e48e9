package resolver_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/metric-balancer/internal/backend"
	"github.com/angeloszaimis/metric-balancer/internal/rate"
	"github.com/angeloszaimis/metric-balancer/internal/resolver"
)

var _ = Describe("Schedule", func() {
	var (
		backends        []*backend.Backend
		backendTrackers []*fixedTracker
		metricTrackers  map[string]*fixedTracker
		clock           clockwork.FakeClock
		ctx             context.Context
		cancel          context.CancelFunc
		tempDir         string
	)

	newScheduled := func(file string, sched resolver.Schedule) *resolver.Resolver {
		return resolver.New(newLog(), backends, file, sched,
			resolver.WithClock(clock),
			resolver.WithTrackerFactory(func(metric string) rate.Tracker {
				t := &fixedTracker{}
				metricTrackers[metric] = t
				return t
			}))
	}

	BeforeEach(func() {
		backends, backendTrackers = threeBackends()
		metricTrackers = make(map[string]*fixedTracker)
		clock = clockwork.NewFakeClock()
		ctx, cancel = context.WithCancel(context.Background())

		var err error
		tempDir, err = os.MkdirTemp("", "schedule-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cancel()
		os.RemoveAll(tempDir)
	})

	It("should run the full rebalance once after its initial delay", func() {
		res := newScheduled("", resolver.DefaultSchedule())
		res.ResolveIngest("hot")
		res.ResolveIngest("cold")
		metricTrackers["hot"].setRate(100)
		metricTrackers["cold"].setRate(1)

		res.Start(ctx)
		clock.BlockUntil(3)
		clock.Advance(5 * time.Minute)

		Eventually(func() string {
			return pinsOf(res)["cold"]
		}).Should(Equal("h1"))
		Eventually(func() string {
			return pinsOf(res)["hot"]
		}).Should(Equal("h2"))
	})

	It("should persist assignments periodically", func() {
		path := filepath.Join(tempDir, "assignments.csv")
		res := newScheduled(path, resolver.DefaultSchedule())
		res.ResolveIngest("cpu")

		res.Start(ctx)
		clock.BlockUntil(3)
		clock.Advance(10 * time.Minute)

		Eventually(func() error {
			_, err := os.Stat(path)
			return err
		}).Should(Succeed())
	})

	It("should stop balancing after the balance window elapses", func() {
		sched := resolver.DefaultSchedule()
		sched.BalanceWindow = time.Minute // expires before the first balance run

		res := newScheduled("", sched)
		for i := 0; i < 10; i++ {
			res.ResolveIngest("metric." + string(rune('a'+i)))
		}
		for _, t := range metricTrackers {
			t.setRate(50)
		}
		backendTrackers[0].setRate(500)
		backendTrackers[1].setRate(10)
		backendTrackers[2].setRate(10)

		before := res.Assignments()

		res.Start(ctx)
		clock.BlockUntil(3)
		clock.Advance(10 * time.Minute)
		// the one-shot full rebalance has fired; the two periodic tasks are
		// back on their tickers
		clock.BlockUntil(2)
		clock.Advance(2 * time.Minute)

		Consistently(res.Assignments, 200*time.Millisecond, 20*time.Millisecond).Should(Equal(before))
	})
})
