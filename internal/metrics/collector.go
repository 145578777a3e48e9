package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventLineReceived     EventType = "line_received"
	EventBackendSelected  EventType = "backend_selected"
	EventForwardCompleted EventType = "forward_completed"
	EventHealthChanged    EventType = "health_changed"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Backend   string
	Duration  time.Duration
	Failed    bool
	Healthy   bool
}

// Collector processes relay and health events off the request path through a
// buffered channel. Emit never blocks; events are dropped when the buffer is
// full.
type Collector struct {
	eventCh chan Event
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan Event, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Emit enqueues an event without blocking the caller.
func (c *Collector) Emit(event Event) {
	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("metrics collector started")
	defer c.logger.Info("metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventLineReceived:
		c.metrics.IncrementLines()

	case EventBackendSelected:
		c.metrics.RecordBackendSelection(event.Backend)

	case EventForwardCompleted:
		c.metrics.RecordForward(event.Backend, event.Duration, event.Failed)

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Backend, event.Healthy)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
