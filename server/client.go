package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nomasters/flatstore/logger"
)

// Client is a connection-pooled client for the protocol in protocol.go:
// persistent conns, idle timeout, and read/write deadlines, with wire
// calls built on the request/response framing in protocol.go.
type Client struct {
	pool         *connPool
	logger       logger.Logger
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// ClientConfig holds the options accepted by NewClient.
type ClientConfig struct {
	// Address of the flatstore server, e.g. "localhost:1337".
	Address string

	// MaxConnections in the pool. Defaults to 10.
	MaxConnections int

	// ReadTimeout for responses. Defaults to 5s.
	ReadTimeout time.Duration

	// WriteTimeout for requests. Defaults to 5s.
	WriteTimeout time.Duration

	// IdleTimeout before a pooled connection is closed. Defaults to 30s.
	IdleTimeout time.Duration

	// Logger receives connection diagnostics. Defaults to a no-op logger.
	Logger logger.Logger
}

// DefaultClientConfig returns a ClientConfig with sensible defaults.
func DefaultClientConfig(address string) *ClientConfig {
	return &ClientConfig{
		Address:        address,
		MaxConnections: 10,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		IdleTimeout:    30 * time.Second,
	}
}

// NewClient creates a pooled Client.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("server: ClientConfig.Address is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNoOp()
	}
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = 30 * time.Second
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 5 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Client{
		pool:         newConnPool(cfg.Address, maxConns, idle, log),
		logger:       log,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}, nil
}

// Append appends a record and returns its assigned seqno.
func (c *Client) Append(ctx context.Context, record []byte) (uint64, error) {
	resp, err := c.roundTrip(ctx, OpAppend, uint64(len(record)), record)
	if err != nil {
		return 0, err
	}
	if resp.status != StatusOK {
		return 0, fmt.Errorf("server: append failed: %s", resp.payload)
	}
	return resp.arg, nil
}

// Get returns the record at seqno, or ok=false if it does not exist.
func (c *Client) Get(ctx context.Context, seqno uint64) (record []byte, ok bool, err error) {
	resp, err := c.roundTrip(ctx, OpGet, seqno, nil)
	if err != nil {
		return nil, false, err
	}
	switch resp.status {
	case StatusOK:
		return resp.payload, true, nil
	case StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("server: get failed: %s", resp.payload)
	}
}

// Len returns the number of committed records on the server.
func (c *Client) Len(ctx context.Context) (uint64, error) {
	resp, err := c.roundTrip(ctx, OpLen, 0, nil)
	if err != nil {
		return 0, err
	}
	if resp.status != StatusOK {
		return 0, fmt.Errorf("server: len failed: %s", resp.payload)
	}
	return resp.arg, nil
}

// Last returns the most recently appended record.
func (c *Client) Last(ctx context.Context) (record []byte, ok bool, err error) {
	resp, err := c.roundTrip(ctx, OpLast, 0, nil)
	if err != nil {
		return nil, false, err
	}
	switch resp.status {
	case StatusOK:
		return resp.payload, true, nil
	case StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("server: last failed: %s", resp.payload)
	}
}

// Close releases all pooled connections.
func (c *Client) Close() error { return c.pool.Close() }

func (c *Client) roundTrip(ctx context.Context, op Op, arg uint64, payload []byte) (*response, error) {
	conn, err := c.pool.Get()
	if err != nil {
		return nil, fmt.Errorf("server: get connection: %w", err)
	}

	writeDeadline := time.Now().Add(c.writeTimeout)
	readDeadline := time.Now().Add(c.readTimeout)
	if dl, ok := ctx.Deadline(); ok {
		writeDeadline, readDeadline = dl, dl
	}
	conn.SetWriteDeadline(writeDeadline)

	if err := writeRequest(conn, op, arg, payload); err != nil {
		c.pool.MarkBad(conn)
		return nil, fmt.Errorf("server: write request: %w", err)
	}

	conn.SetReadDeadline(readDeadline)
	hdr, err := readResponse(conn)
	if err != nil {
		c.pool.MarkBad(conn)
		return nil, fmt.Errorf("server: read response: %w", err)
	}

	var body []byte
	if (op == OpGet || op == OpLast) && hdr.status == StatusOK {
		body, err = readPayload(conn, hdr.arg)
	} else if hdr.status == StatusError {
		body, err = readPayload(conn, hdr.arg)
	}
	if err != nil {
		c.pool.MarkBad(conn)
		return nil, fmt.Errorf("server: read payload: %w", err)
	}

	c.pool.Put(conn)
	return &response{status: hdr.status, arg: hdr.arg, payload: body}, nil
}

// pooledConn remembers when a connection last returned to the pool, so Get
// can discard one that has sat idle past idleTimeout instead of handing back
// a peer-closed socket.
type pooledConn struct {
	net.Conn
	lastUsed time.Time
}

// connPool is a small fixed-capacity pool of persistent TCP connections.
type connPool struct {
	address     string
	log         logger.Logger
	idleTimeout time.Duration

	mu    sync.Mutex
	idle  []*pooledConn
	limit int
}

func newConnPool(address string, limit int, idleTimeout time.Duration, log logger.Logger) *connPool {
	return &connPool{address: address, limit: limit, idleTimeout: idleTimeout, log: log}
}

func (p *connPool) Get() (net.Conn, error) {
	p.mu.Lock()
	for n := len(p.idle); n > 0; n = len(p.idle) {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		if time.Since(conn.lastUsed) > p.idleTimeout {
			conn.Close()
			continue
		}
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()
	conn, err := net.DialTimeout("tcp", p.address, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return &pooledConn{Conn: conn}, nil
}

func (p *connPool) Put(conn net.Conn) {
	pc, ok := conn.(*pooledConn)
	if !ok {
		conn.Close()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) >= p.limit {
		pc.Close()
		return
	}
	pc.lastUsed = time.Now()
	p.idle = append(p.idle, pc)
}

func (p *connPool) MarkBad(conn net.Conn) {
	conn.Close()
}

func (p *connPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, conn := range p.idle {
		conn.Close()
	}
	p.idle = nil
	return nil
}
