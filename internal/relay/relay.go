package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/angeloszaimis/metric-balancer/internal/backend"
	"github.com/angeloszaimis/metric-balancer/internal/metrics"
	"github.com/angeloszaimis/metric-balancer/internal/protocol"
)

// ErrPrefix heads every error line written back to the upstream caller.
const ErrPrefix = "Error storing put metric: "

// Resolver chooses a backend for a request. The ingest path updates arrival
// rates; the plain path does not.
type Resolver interface {
	ResolveIngest(metric string) *backend.Backend
	Resolve(metric string) *backend.Backend
}

// Client is a pooled connection to a backend.
type Client interface {
	Write(s string) error
	Flush() error
}

// Pool hands out pooled clients keyed by backend. Every successful Borrow
// must be paired with a Return.
type Pool interface {
	Borrow(b *backend.Backend) (Client, error)
	Return(b *backend.Backend, c Client)
}

// Handler forwards one parsed request to the backend chosen by the resolver
// over a pooled client connection.
type Handler struct {
	log       *slog.Logger
	resolver  Resolver
	pool      Pool
	collector *metrics.Collector
}

func NewHandler(log *slog.Logger, resolver Resolver, pool Pool, collector *metrics.Collector) *Handler {
	return &Handler{
		log:       log,
		resolver:  resolver,
		pool:      pool,
		collector: collector,
	}
}

// Handle binds the request to a backend and a pooled client, forwards one
// line, and returns the client. Borrow failures are retried indefinitely with
// escalating sleeps so backpressure stalls the upstream instead of dropping
// lines; the retry loop is cancellable through ctx. Forward failures are
// written back to the caller as an error line.
func (h *Handler) Handle(ctx context.Context, req protocol.Request, out io.Writer) error {
	var metric, line string
	var ingest bool

	if mr, ok := req.(*protocol.MetricRequest); ok {
		metric = mr.Name
		line = mr.Line
		ingest = true
	} else {
		line = "version"
	}

	b, client, err := h.acquire(ctx, metric, ingest)
	if err != nil {
		return err
	}
	defer h.pool.Return(b, client)

	h.emit(metrics.Event{Type: metrics.EventBackendSelected, Timestamp: time.Now(), Backend: b.Addr()})

	start := time.Now()
	err = client.Write(line + "\n")
	if err == nil {
		err = client.Flush()
	}

	h.emit(metrics.Event{
		Type:      metrics.EventForwardCompleted,
		Timestamp: time.Now(),
		Backend:   b.Addr(),
		Duration:  time.Since(start),
		Failed:    err != nil,
	})

	if err != nil {
		h.log.Error("error forwarding line",
			slog.String("backend", b.Addr()),
			slog.Any("err", err))
		fmt.Fprintf(out, "%s%s\n", ErrPrefix, err.Error())
	}
	return nil
}

// acquire resolves a backend and borrows a client for it, re-resolving on
// every attempt so a recovering fleet is picked up mid-retry.
func (h *Handler) acquire(ctx context.Context, metric string, ingest bool) (*backend.Backend, Client, error) {
	var chosen *backend.Backend
	var client Client

	operation := func() error {
		if ingest {
			chosen = h.resolver.ResolveIngest(metric)
		} else {
			chosen = h.resolver.Resolve(metric)
		}
		if chosen == nil {
			return errors.New("no backend available")
		}

		var err error
		client, err = h.pool.Borrow(chosen)
		return err
	}

	notify := func(err error, next time.Duration) {
		h.log.Error("borrow failed",
			slog.Any("err", err),
			slog.Duration("retry_in", next))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(&borrowBackOff{}, ctx), notify); err != nil {
		return nil, nil, err
	}
	return chosen, client, nil
}

// borrowBackOff sleeps 500ms for the first nine failures and a minute from
// the tenth on. It never gives up; cancellation comes from the context.
type borrowBackOff struct {
	failures int
}

func (b *borrowBackOff) NextBackOff() time.Duration {
	b.failures++
	if b.failures < 10 {
		return 500 * time.Millisecond
	}
	return time.Minute
}

func (b *borrowBackOff) Reset() {
	b.failures = 0
}

func (h *Handler) emit(event metrics.Event) {
	if h.collector == nil {
		return
	}
	h.collector.Emit(event)
}
