//go:build ignore

// Backend is a simple fake metric-ingest TCP server used for balancer
// testing. It consumes put lines, answers version queries, and logs a
// per-metric line count on shutdown.
//
// Usage:
//
//	go run backend.go -port 4243
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
)

func main() {
	port := flag.Int("port", 4243, "TCP port to listen on")
	flag.Parse()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Printf("fake ingest backend listening on :%d", *port)

	var mu sync.Mutex
	counts := make(map[string]int)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				scanner := bufio.NewScanner(c)
				for scanner.Scan() {
					fields := strings.Fields(scanner.Text())
					if len(fields) == 0 {
						continue
					}
					switch fields[0] {
					case "put":
						if len(fields) >= 2 {
							mu.Lock()
							counts[fields[1]]++
							mu.Unlock()
						}
					case "version":
						fmt.Fprintf(c, "fake-backend 0.1\n")
					}
				}
			}(conn)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	listener.Close()

	mu.Lock()
	defer mu.Unlock()
	metrics := make([]string, 0, len(counts))
	for m := range counts {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)
	for _, m := range metrics {
		log.Printf("%s: %d lines", m, counts[m])
	}
}
