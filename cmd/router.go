package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/angeloszaimis/metric-balancer/internal/circuitbreaker"
	"github.com/angeloszaimis/metric-balancer/internal/httpserver"
	"github.com/angeloszaimis/metric-balancer/internal/metrics"
	"github.com/angeloszaimis/metric-balancer/internal/resolver"
)

func setupAdminServer(addr string, collector *metrics.Collector, res *resolver.Resolver, breakers *circuitbreaker.Registry) (*httpserver.Server, error) {
	return httpserver.New(addr, setupRouter(collector, res, breakers))
}

func setupRouter(collector *metrics.Collector, res *resolver.Resolver, breakers *circuitbreaker.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/metrics", collector.Handler())
	mux.HandleFunc("/assignments", assignmentsHandler(res))
	mux.HandleFunc("/breakers", breakersHandler(breakers))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	return mux
}

// assignmentsHandler dumps the current pins in the same CSV shape as the
// assignment file.
func assignmentsHandler(res *resolver.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprintln(w, "metric,host,tcpPort,rate")
		for _, row := range res.Assignments() {
			fmt.Fprintf(w, "%s,%s,%d,%s\n",
				row.Metric, row.Host, row.TCPPort,
				strconv.FormatFloat(row.Rate, 'f', -1, 64))
		}
	}
}

func breakersHandler(breakers *circuitbreaker.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		for addr, state := range breakers.Stats() {
			fmt.Fprintf(w, "%s %s\n", addr, state)
		}
	}
}
