package rate_test

import (
	"sync"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/metric-balancer/internal/rate"
)

func TestRate(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Rate Suite")
}

var _ = Describe("Tracker", func() {
	It("should report zero before the first arrival", func() {
		tracker := rate.NewTracker()
		Expect(tracker.Rate()).To(BeZero())
	})

	It("should always report a finite non-negative rate", func() {
		tracker := rate.NewTracker()
		for i := 0; i < 1000; i++ {
			tracker.Arrived()
		}
		Expect(tracker.Rate()).To(BeNumerically(">=", 0))
	})

	It("should be safe under concurrent arrivals", func() {
		tracker := rate.NewTracker()

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 1000; j++ {
					tracker.Arrived()
				}
			}()
		}
		wg.Wait()

		Expect(tracker.Rate()).To(BeNumerically(">=", 0))
	})
})
