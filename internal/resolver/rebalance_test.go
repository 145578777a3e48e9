package resolver_test

import (
	"fmt"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/metric-balancer/internal/assignment"
	"github.com/angeloszaimis/metric-balancer/internal/backend"
	"github.com/angeloszaimis/metric-balancer/internal/rate"
	"github.com/angeloszaimis/metric-balancer/internal/resolver"
)

var _ = Describe("Rebalancing", func() {
	var (
		backends        []*backend.Backend
		backendTrackers []*fixedTracker
		metricTrackers  map[string]*fixedTracker
		res             *resolver.Resolver
	)

	newResolver := func(file string) *resolver.Resolver {
		return resolver.New(newLog(), backends, file, resolver.DefaultSchedule(),
			resolver.WithTrackerFactory(func(metric string) rate.Tracker {
				t := &fixedTracker{}
				metricTrackers[metric] = t
				return t
			}))
	}

	BeforeEach(func() {
		backends, backendTrackers = threeBackends()
		metricTrackers = make(map[string]*fixedTracker)
		res = newResolver("")
	})

	Describe("RebalanceAllMetrics", func() {
		It("should keep every previously pinned metric pinned", func() {
			metrics := []string{"cpu", "mem", "disk", "net", "io"}
			for _, m := range metrics {
				res.ResolveIngest(m)
			}

			before := res.Assignments()
			res.RebalanceAllMetrics()
			after := res.Assignments()

			Expect(after).To(HaveLen(len(before)))
			names := make([]string, 0, len(after))
			for _, row := range after {
				names = append(names, row.Metric)
			}
			Expect(names).To(ConsistOf("cpu", "mem", "disk", "net", "io"))
		})

		It("should not collapse metrics with equal rates", func() {
			for i := 0; i < 20; i++ {
				res.ResolveIngest(fmt.Sprintf("metric.%02d", i))
			}

			res.RebalanceAllMetrics()
			Expect(res.Assignments()).To(HaveLen(20))
		})

		It("should stripe ascending-rate metrics across the server index", func() {
			res.ResolveIngest("hot")
			res.ResolveIngest("cold")
			res.ResolveIngest("warm")
			metricTrackers["cold"].setRate(1)
			metricTrackers["warm"].setRate(10)
			metricTrackers["hot"].setRate(100)

			res.RebalanceAllMetrics()

			pins := pinsOf(res)
			Expect(pins["cold"]).To(Equal("h1"))
			Expect(pins["warm"]).To(Equal("h2"))
			Expect(pins["hot"]).To(Equal("h3"))
		})
	})

	Describe("Balance", func() {
		It("should be a no-op when the busiest backend is within 5% of average", func() {
			for _, m := range []string{"cpu", "mem", "disk"} {
				res.ResolveIngest(m)
			}
			backendTrackers[0].setRate(100)
			backendTrackers[1].setRate(100)
			backendTrackers[2].setRate(104)

			before := res.Assignments()
			res.Balance()
			Expect(res.Assignments()).To(Equal(before))
		})

		It("should be a no-op when no backend is up", func() {
			res.ResolveIngest("cpu")
			for _, b := range backends {
				b.SetUp(false)
			}

			before := res.Assignments()
			res.Balance()
			Expect(res.Assignments()).To(Equal(before))
		})

		Context("with a hot backend", func() {
			var tempDir string

			BeforeEach(func() {
				var err error
				tempDir, err = os.MkdirTemp("", "balance-test-*")
				Expect(err).NotTo(HaveOccurred())

				// 100 metrics: 60 on h1, 20 each on h2 and h3, pinned
				// through the assignment file, every metric at rate 2.0
				var rows []assignment.Row
				add := func(prefix, host string, port, count int) {
					for i := 0; i < count; i++ {
						rows = append(rows, assignment.Row{
							Metric:  fmt.Sprintf("%s.%02d", prefix, i),
							Host:    host,
							TCPPort: port,
						})
					}
				}
				add("a", "h1", 1001, 60)
				add("b", "h2", 1002, 20)
				add("c", "h3", 1003, 20)

				path := filepath.Join(tempDir, "assignments.csv")
				Expect(assignment.Write(path, rows)).To(Succeed())

				res = newResolver(path)
				for _, row := range rows {
					res.ResolveIngest(row.Metric)
					metricTrackers[row.Metric].setRate(2.0)
				}

				backendTrackers[0].setRate(200)
				backendTrackers[1].setRate(100)
				backendTrackers[2].setRate(100)
			})

			AfterEach(func() {
				os.RemoveAll(tempDir)
			})

			It("should move a bounded number of pins off the busiest backend", func() {
				before := pinsOf(res)
				res.Balance()
				after := pinsOf(res)

				moved := 0
				for metric, host := range after {
					if host != before[metric] {
						moved++
						Expect(before[metric]).To(Equal("h1"))
						Expect(host).To(Equal("h2"))
					}
				}

				// cap is round(0.20 * 100 / 3) = 7
				Expect(moved).To(BeNumerically(">=", 1))
				Expect(moved).To(BeNumerically("<=", 7))
			})

			It("should stop once a tenth of the high-side imbalance is shed", func() {
				before := pinsOf(res)
				res.Balance()
				after := pinsOf(res)

				moved := 0
				for metric, host := range after {
					if host != before[metric] {
						moved++
					}
				}

				// deltaHigh = (200 - 400/3) * 0.1 = 6.67, each move debits 2.0
				Expect(moved).To(Equal(4))
			})
		})
	})
})
