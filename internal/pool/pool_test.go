package pool_test

import (
	"bufio"
	"log/slog"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/metric-balancer/internal/backend"
	"github.com/angeloszaimis/metric-balancer/internal/circuitbreaker"
	"github.com/angeloszaimis/metric-balancer/internal/pool"
	"github.com/angeloszaimis/metric-balancer/internal/rate"
)

func TestPool(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pool Suite")
}

var _ = Describe("Pool", func() {
	var (
		log      *slog.Logger
		listener net.Listener
		b        *backend.Backend
		p        *pool.Pool
		lines    chan string
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, nil))

		var err error
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		lines = make(chan string, 16)
		go func() {
			for {
				conn, err := listener.Accept()
				if err != nil {
					return
				}
				go func(c net.Conn) {
					scanner := bufio.NewScanner(c)
					for scanner.Scan() {
						lines <- scanner.Text()
					}
				}(conn)
			}
		}()

		host, portStr, err := net.SplitHostPort(listener.Addr().String())
		Expect(err).NotTo(HaveOccurred())
		port, err := strconv.Atoi(portStr)
		Expect(err).NotTo(HaveOccurred())

		b = backend.New(host, port, rate.NewTracker())
		p = pool.New(log, 2, time.Second, circuitbreaker.NewRegistry(3, time.Second))
	})

	AfterEach(func() {
		p.Close()
		listener.Close()
	})

	Describe("Borrow", func() {
		It("should dial the backend and deliver written lines", func() {
			client, err := p.Borrow(b)
			Expect(err).NotTo(HaveOccurred())
			defer p.Return(b, client)

			Expect(client.Write("put sys.cpu.user 1 42.5 host=a\n")).To(Succeed())
			Expect(client.Flush()).To(Succeed())

			Eventually(lines).Should(Receive(Equal("put sys.cpu.user 1 42.5 host=a")))
		})

		It("should reuse a returned client", func() {
			client, err := p.Borrow(b)
			Expect(err).NotTo(HaveOccurred())
			p.Return(b, client)

			again, err := p.Borrow(b)
			Expect(err).NotTo(HaveOccurred())
			defer p.Return(b, again)

			Expect(again).To(BeIdenticalTo(client))
		})

		It("should fail when nothing is listening", func() {
			dead := backend.New("127.0.0.1", 1, rate.NewTracker())
			_, err := p.Borrow(dead)
			Expect(err).To(HaveOccurred())
		})

		It("should fail for a nil backend", func() {
			_, err := p.Borrow(nil)
			Expect(err).To(HaveOccurred())
		})

		It("should fail fast once the breaker opens", func() {
			dead := backend.New("127.0.0.1", 1, rate.NewTracker())
			for i := 0; i < 3; i++ {
				_, err := p.Borrow(dead)
				Expect(err).To(HaveOccurred())
			}

			_, err := p.Borrow(dead)
			Expect(err).To(MatchError(ContainSubstring("circuit open")))
		})
	})

	Describe("Return", func() {
		It("should close clients beyond the idle limit", func() {
			var clients []*pool.Client
			for i := 0; i < 3; i++ {
				c, err := p.Borrow(b)
				Expect(err).NotTo(HaveOccurred())
				clients = append(clients, c)
			}

			for _, c := range clients {
				p.Return(b, c)
			}

			// idle buffer holds two; the third was closed
			Expect(clients[2].Write("x")).To(Succeed())
			Expect(clients[2].Flush()).To(HaveOccurred())
		})
	})
})
