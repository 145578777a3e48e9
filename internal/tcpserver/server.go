package tcpserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/angeloszaimis/metric-balancer/internal/metrics"
	"github.com/angeloszaimis/metric-balancer/internal/protocol"
	"github.com/angeloszaimis/metric-balancer/internal/relay"
)

const maxLineBytes = 1024 * 1024

// RequestHandler forwards one parsed request; error lines for the caller are
// written to out.
type RequestHandler interface {
	Handle(ctx context.Context, req protocol.Request, out io.Writer) error
}

// Server accepts line-oriented ingest connections and feeds parsed requests
// to the relay. One goroutine serves each connection.
type Server struct {
	log       *slog.Logger
	addr      string
	handler   RequestHandler
	collector *metrics.Collector

	mutex    sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// New creates a server listening on addr. The address is validated before
// the server is created.
func New(log *slog.Logger, addr string, handler RequestHandler, collector *metrics.Collector) (*Server, error) {
	if err := validateHost(addr); err != nil {
		return nil, err
	}

	return &Server{
		log:       log,
		addr:      addr,
		handler:   handler,
		collector: collector,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Start listens and serves until Shutdown closes the listener.
// Returns an error unless the server is shut down cleanly.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	s.mutex.Lock()
	s.listener = listener
	s.mutex.Unlock()

	s.log.Info("ingest server listening", slog.String("addr", s.addr))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return err
		}

		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			defer conn.Close()
			s.serveConn(ctx, conn)
		}()
	}
}

// Shutdown closes the listener and all open connections, then waits for
// per-connection goroutines with a 5-second timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mutex.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	select {
	case <-done:
		return nil
	case <-shutdownCtx.Done():
		return shutdownCtx.Err()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	s.log.Debug("connection opened", slog.String("remote", conn.RemoteAddr().String()))

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if s.collector != nil {
			s.collector.Emit(metrics.Event{Type: metrics.EventLineReceived, Timestamp: time.Now()})
		}

		req, err := protocol.Parse(line)
		if err != nil {
			s.log.Warn("dropping malformed line",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.Any("err", err))
			fmt.Fprintf(conn, "%s%s\n", relay.ErrPrefix, err.Error())
			continue
		}

		if err := s.handler.Handle(ctx, req, conn); err != nil {
			s.log.Warn("relay aborted", slog.Any("err", err))
			return
		}
	}

	s.log.Debug("connection closed", slog.String("remote", conn.RemoteAddr().String()))
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func validateHost(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cant be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}
