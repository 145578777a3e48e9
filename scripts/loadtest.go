//go:build ignore

// Loadtest is a concurrent put-line generator for balancer testing. It opens
// several connections, writes random data points across a configurable metric
// population, and reports throughput at the end.
//
// Usage:
//
//	go run loadtest.go -addr localhost:4242 -conns 10 -metrics 100 -lines 100000
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	addr := flag.String("addr", "localhost:4242", "balancer address")
	conns := flag.Int("conns", 10, "concurrent connections")
	metricCount := flag.Int("metrics", 100, "distinct metric names")
	lines := flag.Int("lines", 100000, "total lines to send")
	flag.Parse()

	perConn := *lines / *conns
	var sent atomic.Int64
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < *conns; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			conn, err := net.Dial("tcp", *addr)
			if err != nil {
				log.Printf("worker %d: dial: %v", worker, err)
				return
			}
			defer conn.Close()

			rng := rand.New(rand.NewSource(int64(worker)))
			writer := bufio.NewWriter(conn)
			for n := 0; n < perConn; n++ {
				metric := fmt.Sprintf("sys.metric.%03d", rng.Intn(*metricCount))
				fmt.Fprintf(writer, "put %s %d %f host=load%02d\n",
					metric, time.Now().Unix(), rng.Float64()*100, worker)
				sent.Add(1)
			}
			writer.Flush()
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(start)
	log.Printf("sent %d lines in %s (%.0f lines/s)",
		sent.Load(), elapsed, float64(sent.Load())/elapsed.Seconds())
}
