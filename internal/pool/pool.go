package pool

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/angeloszaimis/metric-balancer/internal/backend"
	"github.com/angeloszaimis/metric-balancer/internal/circuitbreaker"
)

// Client is one pooled line-protocol connection to a backend. Writes are
// buffered; a forwarded line is not on the wire until Flush.
type Client struct {
	conn   net.Conn
	writer *bufio.Writer
}

func (c *Client) Write(s string) error {
	_, err := c.writer.WriteString(s)
	return err
}

func (c *Client) Flush() error {
	return c.writer.Flush()
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Pool keeps a bounded set of idle clients per backend. Borrow hands out an
// idle client or dials a new one; Return puts the client back or closes it
// when the idle buffer is full. Callers must pair every Borrow with a Return.
type Pool struct {
	log         *slog.Logger
	maxIdle     int
	dialTimeout time.Duration
	breakers    *circuitbreaker.Registry

	mutex sync.Mutex
	idle  map[string]chan *Client
}

func New(log *slog.Logger, maxIdle int, dialTimeout time.Duration, breakers *circuitbreaker.Registry) *Pool {
	return &Pool{
		log:         log,
		maxIdle:     maxIdle,
		dialTimeout: dialTimeout,
		breakers:    breakers,
		idle:        make(map[string]chan *Client),
	}
}

// Borrow returns a client connected to the given backend.
func (p *Pool) Borrow(b *backend.Backend) (*Client, error) {
	if b == nil {
		return nil, fmt.Errorf("no backend to borrow for")
	}

	select {
	case c := <-p.bucket(b.Addr()):
		return c, nil
	default:
	}

	return p.dial(b.Addr())
}

// Return gives a borrowed client back to the pool. Clients beyond the idle
// limit are closed.
func (p *Pool) Return(b *backend.Backend, c *Client) {
	if b == nil || c == nil {
		return
	}

	select {
	case p.bucket(b.Addr()) <- c:
	default:
		c.Close()
	}
}

// Discard closes a borrowed client instead of returning it. Use after a
// write failure, when the connection state is unknown.
func (p *Pool) Discard(c *Client) {
	if c != nil {
		c.Close()
	}
}

// Close drains and closes every idle client.
func (p *Pool) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, ch := range p.idle {
		for drained := false; !drained; {
			select {
			case c := <-ch:
				c.Close()
			default:
				drained = true
			}
		}
	}
	p.idle = make(map[string]chan *Client)
}

func (p *Pool) bucket(addr string) chan *Client {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	ch, ok := p.idle[addr]
	if !ok {
		ch = make(chan *Client, p.maxIdle)
		p.idle[addr] = ch
	}
	return ch
}

func (p *Pool) dial(addr string) (*Client, error) {
	cb := p.breakers.Breaker(addr)
	if !cb.Allow() {
		return nil, fmt.Errorf("circuit open for %s", addr)
	}

	conn, err := net.DialTimeout("tcp", addr, p.dialTimeout)
	if err != nil {
		cb.RecordFailure()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	cb.RecordSuccess()

	p.log.Debug("dialed backend", slog.String("backend", addr))
	return &Client{conn: conn, writer: bufio.NewWriter(conn)}, nil
}
