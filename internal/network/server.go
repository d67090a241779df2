package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"primetime/internal/config"
	"primetime/internal/logger"
	"primetime/internal/metrics"
	"sync"
	"time"

	"github.com/libp2p/go-reuseport"
	"golang.org/x/time/rate"
)

// Submitter hands a primality query to the compute tier and waits for the
// answer.
type Submitter interface {
	Submit(ctx context.Context, value int64) (bool, error)
}

type Server struct {
	Addr         string
	Pool         Submitter
	Metrics      *metrics.Metrics
	MaxLineBytes int
	IdleTimeout  time.Duration

	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	conns    sync.WaitGroup
}

func NewServer(cfg config.Config, pool Submitter, m *metrics.Metrics) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Addr:         cfg.Addr(),
		Pool:         pool,
		Metrics:      m,
		MaxLineBytes: cfg.MaxLineBytes,
		IdleTimeout:  cfg.IdleTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	if cfg.AcceptRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), cfg.AcceptBurst)
	}
	return s
}

// Listen binds the server address with SO_REUSEADDR and SO_REUSEPORT set.
// The accept backlog is the kernel maximum (somaxconn).
func (s *Server) Listen() error {
	lc := net.ListenConfig{Control: reuseport.Control}
	ln, err := lc.Listen(s.ctx, "tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// ListenAddr returns the bound address, or nil before Listen.
func (s *Server) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds and serves until Shutdown.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections on the bound listener, one goroutine each. It
// returns nil after Shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("serve called before listen")
	}
	logger.Info("Prime server listening on %s", ln.Addr())

	var backoff time.Duration
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(s.ctx); err != nil {
				return nil
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Typically EMFILE; back off rather than spin.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff < time.Second {
				backoff *= 2
			}
			logger.Error("Accept error: %v; retrying in %v", err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		// Add happens under mu so it cannot race Shutdown's Wait.
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return nil
		}
		s.conns.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.conns.Done()
			s.handleConnection(conn)
		}()
	}
}

// Shutdown stops accepting, releases handlers waiting on the compute pool and
// waits for every connection goroutine to return.
func (s *Server) Shutdown() {
	s.cancel()
	s.mu.Lock()
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()
	s.conns.Wait()
}
