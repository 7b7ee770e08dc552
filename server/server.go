package server

import (
	"context"
	"errors"
	"net"
	"runtime"
	"sync"

	"github.com/nomasters/flatstore"
	"github.com/nomasters/flatstore/logger"
)

// Config holds the options accepted by New.
type Config struct {
	// DB is the store every connection is served from.
	DB *flatstore.Database

	// Logger receives connection and protocol diagnostics. Defaults to a
	// no-op logger.
	Logger logger.Logger

	// Workers is the number of goroutines processing accepted connections
	// concurrently. Defaults to runtime.NumCPU().
	Workers int
}

// Server fronts a Database with the TCP protocol in protocol.go: an
// accept loop dispatches each connection to a worker pool that reads
// length-prefixed requests and writes length-prefixed responses until
// the connection closes.
type Server struct {
	db      *flatstore.Database
	log     logger.Logger
	workers int

	mu       sync.Mutex
	listener net.Listener
	connChan chan net.Conn
	doneChan chan struct{}
}

// New constructs a Server. It does not start listening; call
// ListenAndServe.
func New(cfg *Config) (*Server, error) {
	if cfg == nil || cfg.DB == nil {
		return nil, errors.New("server: Config.DB is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNoOp()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Server{db: cfg.DB, log: log, workers: workers}, nil
}

// ListenAndServe listens on addr and serves connections until ctx is
// canceled or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.connChan = make(chan net.Conn, 1024)
	s.doneChan = make(chan struct{}, s.workers)
	s.mu.Unlock()

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i := 0; i < s.workers; i++ {
		go s.worker(workerCtx)
	}

	s.log.Infof("server: listening on %s with %d workers", addr, s.workers)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				if !errors.Is(err, net.ErrClosed) {
					s.log.Errorf("server: accept error: %v", err)
					continue
				}
			}
			close(s.connChan)
			s.awaitWorkers()
			return nil
		}
		s.connChan <- conn
	}
}

func (s *Server) awaitWorkers() {
	for i := 0; i < s.workers; i++ {
		<-s.doneChan
	}
}

// Shutdown closes the listener, after which ListenAndServe stops accepting
// and returns once its workers have finished. Shutdown itself returns as
// soon as the listener is closed or ctx is done, whichever comes first; it
// does not wait for in-flight connections to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		ln.Close()
		done <- struct{}{}
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.doneChan <- struct{}{}
			return
		case conn, ok := <-s.connChan:
			if !ok {
				s.doneChan <- struct{}{}
				return
			}
			s.handleConn(conn)
		}
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	req, err := readRequest(conn)
	if err != nil {
		s.log.Debugf("server: read request: %v", err)
		return
	}

	switch req.op {
	case OpAppend:
		seqno, err := s.db.Append(req.payload)
		if err != nil {
			s.writeErr(conn, err)
			return
		}
		writeResponse(conn, StatusOK, seqno, nil)

	case OpGet:
		record, ok, err := s.db.GetBySeqno(req.arg)
		if err != nil {
			s.writeErr(conn, err)
			return
		}
		if !ok {
			writeResponse(conn, StatusNotFound, 0, nil)
			return
		}
		writeResponse(conn, StatusOK, uint64(len(record)), record)

	case OpLen:
		writeResponse(conn, StatusOK, s.db.Len(), nil)

	case OpLast:
		record, ok, err := s.db.Last()
		if err != nil {
			s.writeErr(conn, err)
			return
		}
		if !ok {
			writeResponse(conn, StatusNotFound, 0, nil)
			return
		}
		writeResponse(conn, StatusOK, uint64(len(record)), record)

	default:
		msg := []byte("unknown op")
		writeResponse(conn, StatusError, uint64(len(msg)), msg)
	}
}

func (s *Server) writeErr(conn net.Conn, err error) {
	s.log.Errorf("server: %v", err)
	msg := []byte(err.Error())
	writeResponse(conn, StatusError, uint64(len(msg)), msg)
}
