package healthcheck

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/angeloszaimis/metric-balancer/internal/backend"
	"github.com/angeloszaimis/metric-balancer/internal/metrics"
)

const dialTimeout = 5 * time.Second

// Run periodically probes a backend by opening a TCP connection to its
// ingest port. The backend's liveness flag is updated from the probe result;
// transitions are logged and reported to the collector when one is provided.
func Run(
	ctx context.Context,
	b *backend.Backend,
	interval time.Duration,
	logger *slog.Logger,
	collector *metrics.Collector,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("health check stopped",
				slog.String("backend", b.Addr()))
			return

		case <-ticker.C:
			up := probe(b.Addr())
			changed := b.SetUp(up)

			if changed {
				if up {
					logger.Info("backend is back up",
						slog.String("backend", b.Addr()))
				} else {
					logger.Warn("backend is down",
						slog.String("backend", b.Addr()))
				}
				if collector != nil {
					collector.Emit(metrics.Event{
						Type:      metrics.EventHealthChanged,
						Timestamp: time.Now(),
						Backend:   b.Addr(),
						Healthy:   up,
					})
				}
			}
		}
	}
}

func probe(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
