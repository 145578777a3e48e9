package relay

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("borrowBackOff", func() {
	It("should sleep 500ms for the first nine failures", func() {
		b := &borrowBackOff{}
		for i := 0; i < 9; i++ {
			Expect(b.NextBackOff()).To(Equal(500 * time.Millisecond))
		}
	})

	It("should sleep a minute from the tenth failure on", func() {
		b := &borrowBackOff{}
		for i := 0; i < 9; i++ {
			b.NextBackOff()
		}
		Expect(b.NextBackOff()).To(Equal(time.Minute))
		Expect(b.NextBackOff()).To(Equal(time.Minute))
	})

	It("should start over after a reset", func() {
		b := &borrowBackOff{}
		for i := 0; i < 12; i++ {
			b.NextBackOff()
		}
		b.Reset()
		Expect(b.NextBackOff()).To(Equal(500 * time.Millisecond))
	})
})
